package rxtest

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ScriptError 脚本中声明的错误通知
type ScriptError string

func (e ScriptError) Error() string { return string(e) }

// scriptEntry 脚本中的一条通知，next/error/completed 三者恰好出现一个
type scriptEntry struct {
	Time      int64     `yaml:"time"`
	Next      yaml.Node `yaml:"next"`
	Error     string    `yaml:"error"`
	Completed bool      `yaml:"completed"`
}

// ParseScript 从YAML解析通知脚本，例如：
//
//	- {time: 210, next: 2}
//	- {time: 250, error: boom}
//	- {time: 300, completed: true}
//
// error 条目生成 ScriptError
func ParseScript[T any](data []byte) ([]Recorded[T], error) {
	var entries []scriptEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("rxtest: parse script: %w", err)
	}

	messages := make([]Recorded[T], 0, len(entries))
	for i, entry := range entries {
		hasNext := entry.Next.Kind != 0
		set := 0
		for _, b := range []bool{hasNext, entry.Error != "", entry.Completed} {
			if b {
				set++
			}
		}
		if set != 1 {
			return nil, fmt.Errorf("rxtest: script entry %d: exactly one of next, error, completed is required", i)
		}
		if entry.Time < 0 {
			return nil, fmt.Errorf("rxtest: script entry %d: negative time %d", i, entry.Time)
		}

		switch {
		case hasNext:
			var value T
			if err := entry.Next.Decode(&value); err != nil {
				return nil, fmt.Errorf("rxtest: script entry %d: %w", i, err)
			}
			messages = append(messages, OnNext(entry.Time, value))
		case entry.Error != "":
			messages = append(messages, OnError[T](entry.Time, ScriptError(entry.Error)))
		default:
			messages = append(messages, OnCompleted[T](entry.Time))
		}
	}
	return messages, nil
}

// MustParseScript 与 ParseScript 相同，出错时panic
func MustParseScript[T any](data []byte) []Recorded[T] {
	messages, err := ParseScript[T](data)
	if err != nil {
		panic(errors.Join(errors.New("rxtest: invalid script"), err))
	}
	return messages
}
