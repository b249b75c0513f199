package rxtest

import (
	"github.com/stretchr/testify/assert"
)

// AssertMessages 比较记录的通知序列；nil 与空切片视为相等
func AssertMessages[T any](t assert.TestingT, expected, actual []Recorded[T], msgAndArgs ...any) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	if len(expected) == 0 && len(actual) == 0 {
		return true
	}
	return assert.Equal(t, expected, actual, msgAndArgs...)
}

// AssertSubscriptions 比较订阅区间；nil 与空切片视为相等
func AssertSubscriptions(t assert.TestingT, expected, actual []Subscription, msgAndArgs ...any) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	if len(expected) == 0 && len(actual) == 0 {
		return true
	}
	return assert.Equal(t, expected, actual, msgAndArgs...)
}
