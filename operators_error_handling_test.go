package rxgo_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rxgo "github.com/xinjiayu/rxgo/v2"
	"github.com/xinjiayu/rxgo/v2/rxtest"
)

var errBoom = errors.New("boom")

func TestRetry(t *testing.T) {
	t.Run("出错后重新订阅", func(t *testing.T) {
		s := rxtest.NewTestScheduler()
		xs := rxtest.CreateColdObservable(s,
			rxtest.OnNext(150, 1),
			rxtest.OnNext(210, 2),
			rxtest.OnNext(220, 3),
			rxtest.OnError[int](250, errBoom),
		)

		res := rxtest.Start(s, func() rxgo.Observable[int] { return rxgo.Retry[int](xs) })

		rxtest.AssertMessages(t, []rxtest.Recorded[int]{
			rxtest.OnNext(350, 1),
			rxtest.OnNext(410, 2),
			rxtest.OnNext(420, 3),
			rxtest.OnNext(600, 1),
			rxtest.OnNext(660, 2),
			rxtest.OnNext(670, 3),
			rxtest.OnNext(850, 1),
			rxtest.OnNext(910, 2),
			rxtest.OnNext(920, 3),
		}, res.Messages())
		rxtest.AssertSubscriptions(t, []rxtest.Subscription{
			rxtest.Subscribe(200, 450),
			rxtest.Subscribe(450, 700),
			rxtest.Subscribe(700, 950),
			rxtest.Subscribe(950, 1000),
		}, xs.Subscriptions())
	})

	t.Run("完成时不重试", func(t *testing.T) {
		s := rxtest.NewTestScheduler()
		xs := rxtest.CreateColdObservable(s,
			rxtest.OnNext(100, 1),
			rxtest.OnCompleted[int](250),
		)

		res := rxtest.Start(s, func() rxgo.Observable[int] { return rxgo.Retry[int](xs) })

		rxtest.AssertMessages(t, []rxtest.Recorded[int]{
			rxtest.OnNext(300, 1),
			rxtest.OnCompleted[int](450),
		}, res.Messages())
		rxtest.AssertSubscriptions(t, []rxtest.Subscription{
			rxtest.Subscribe(200, 450),
		}, xs.Subscriptions())
	})

	t.Run("下游终止后停止同步重试", func(t *testing.T) {
		var attempts atomic.Int32
		flaky := rxgo.Create(func(observer rxgo.Observer[int]) rxgo.Disposable {
			observer.OnNext(int(attempts.Add(1)))
			observer.OnError(errBoom)
			return rxgo.EmptyDisposable()
		})

		done := make(chan struct{})
		var values []int
		go func() {
			defer close(done)
			values, _ = rxgo.ToSlice(context.Background(), rxgo.Take(rxgo.Retry(flaky), 3))
		}()
		waitOrFail(t, done)
		assert.Equal(t, []int{1, 2, 3}, values)
		assert.Equal(t, int32(3), attempts.Load())
	})
}

func TestRetryCount(t *testing.T) {
	t.Run("用尽次数后转发错误", func(t *testing.T) {
		s := rxtest.NewTestScheduler()
		xs := rxtest.CreateColdObservable(s,
			rxtest.OnNext(10, 1),
			rxtest.OnError[int](20, errBoom),
		)

		res := rxtest.Start(s, func() rxgo.Observable[int] { return rxgo.RetryCount[int](xs, 3) })

		rxtest.AssertMessages(t, []rxtest.Recorded[int]{
			rxtest.OnNext(210, 1),
			rxtest.OnNext(230, 1),
			rxtest.OnNext(250, 1),
			rxtest.OnError[int](260, errBoom),
		}, res.Messages())
		rxtest.AssertSubscriptions(t, []rxtest.Subscription{
			rxtest.Subscribe(200, 220),
			rxtest.Subscribe(220, 240),
			rxtest.Subscribe(240, 260),
		}, xs.Subscriptions())
	})

	t.Run("次数为0时直接完成", func(t *testing.T) {
		values, err := rxgo.ToSlice(context.Background(), rxgo.RetryCount(rxgo.Throw[int](errBoom), 0))
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("同步源", func(t *testing.T) {
		attempts := 0
		source := rxgo.Defer(func() (rxgo.Observable[int], error) {
			attempts++
			if attempts < 3 {
				return rxgo.Throw[int](errBoom), nil
			}
			return rxgo.Just(attempts), nil
		})

		values, err := rxgo.ToSlice(context.Background(), rxgo.RetryCount(source, 5))
		require.NoError(t, err)
		assert.Equal(t, []int{3}, values)
	})

	t.Run("负数panic", func(t *testing.T) {
		assert.Panics(t, func() { rxgo.RetryCount(rxgo.Never[int](), -1) })
	})
}

func retryWhenSource(s *rxtest.TestScheduler) *rxtest.ColdObservable[int] {
	return rxtest.CreateColdObservable(s,
		rxtest.OnNext(10, 1),
		rxtest.OnNext(20, 2),
		rxtest.OnError[int](30, errBoom),
	)
}

var retryWhenMessages = []rxtest.Recorded[int]{
	rxtest.OnNext(210, 1),
	rxtest.OnNext(220, 2),
	rxtest.OnNext(340, 1),
	rxtest.OnNext(350, 2),
	rxtest.OnNext(470, 1),
	rxtest.OnNext(480, 2),
	rxtest.OnError[int](490, errBoom),
}

var retryWhenSubscriptions = []rxtest.Subscription{
	rxtest.Subscribe(200, 230),
	rxtest.Subscribe(330, 360),
	rxtest.Subscribe(460, 490),
}

func TestRetryWhen(t *testing.T) {
	t.Run("通知源发射时重新订阅", func(t *testing.T) {
		s := rxtest.NewTestScheduler()
		xs := retryWhenSource(s)

		res := rxtest.Start(s, func() rxgo.Observable[int] {
			return rxgo.RetryWhen[int](xs, func(errs rxgo.Observable[error]) rxgo.Observable[int64] {
				attempts := 0
				return rxgo.FlatMap(errs, func(err error) (rxgo.Observable[int64], error) {
					if attempts >= 2 {
						return nil, err
					}
					attempts++
					return rxgo.Timer(100*time.Nanosecond, s), nil
				})
			})
		})

		rxtest.AssertMessages(t, retryWhenMessages, res.Messages())
		rxtest.AssertSubscriptions(t, retryWhenSubscriptions, xs.Subscriptions())
	})

	t.Run("通知源不发射时不再重试", func(t *testing.T) {
		s := rxtest.NewTestScheduler()
		xs := retryWhenSource(s)

		res := rxtest.Start(s, func() rxgo.Observable[int] {
			return rxgo.RetryWhen[int](xs, func(errs rxgo.Observable[error]) rxgo.Observable[error] {
				return rxgo.IgnoreElements(errs)
			})
		})

		rxtest.AssertMessages(t, []rxtest.Recorded[int]{
			rxtest.OnNext(210, 1),
			rxtest.OnNext(220, 2),
		}, res.Messages())
		rxtest.AssertSubscriptions(t, []rxtest.Subscription{
			rxtest.Subscribe(200, 230),
		}, xs.Subscriptions())
	})

	t.Run("通知源出错时出错", func(t *testing.T) {
		s := rxtest.NewTestScheduler()
		xs := retryWhenSource(s)
		fatal := errors.New("fatal")

		res := rxtest.Start(s, func() rxgo.Observable[int] {
			return rxgo.RetryWhen[int](xs, func(errs rxgo.Observable[error]) rxgo.Observable[error] {
				return rxgo.FlatMap(errs, func(error) (rxgo.Observable[error], error) {
					return rxgo.Throw[error](fatal), nil
				})
			})
		})

		rxtest.AssertMessages(t, []rxtest.Recorded[int]{
			rxtest.OnNext(210, 1),
			rxtest.OnNext(220, 2),
			rxtest.OnError[int](230, fatal),
		}, res.Messages())
	})
}

func TestRetryBackoff(t *testing.T) {
	t.Run("按策略延迟重试", func(t *testing.T) {
		s := rxtest.NewTestScheduler()
		xs := retryWhenSource(s)

		res := rxtest.Start(s, func() rxgo.Observable[int] {
			return rxgo.RetryBackoff[int](xs, backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Nanosecond), 2), s)
		})

		rxtest.AssertMessages(t, retryWhenMessages, res.Messages())
		rxtest.AssertSubscriptions(t, retryWhenSubscriptions, xs.Subscriptions())
	})

	t.Run("永久错误不重试", func(t *testing.T) {
		subscriptions := 0
		source := rxgo.Defer(func() (rxgo.Observable[int], error) {
			subscriptions++
			return rxgo.Throw[int](backoff.Permanent(errBoom)), nil
		})

		_, err := rxgo.ToSlice(context.Background(), rxgo.RetryBackoff(source, backoff.NewConstantBackOff(time.Millisecond), rxgo.Immediate))
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 1, subscriptions)
	})
}

func TestCatch(t *testing.T) {
	ctx := context.Background()

	t.Run("出错时切换到备用源", func(t *testing.T) {
		s := rxtest.NewTestScheduler()
		xs := rxtest.CreateHotObservable(s,
			rxtest.OnNext(210, 1),
			rxtest.OnError[int](230, errBoom),
		)
		ys := rxtest.CreateColdObservable(s,
			rxtest.OnNext(10, 2),
			rxtest.OnCompleted[int](20),
		)

		var caught error
		res := rxtest.Start(s, func() rxgo.Observable[int] {
			return rxgo.Catch[int](xs, func(err error) (rxgo.Observable[int], error) {
				caught = err
				return ys, nil
			})
		})

		rxtest.AssertMessages(t, []rxtest.Recorded[int]{
			rxtest.OnNext(210, 1),
			rxtest.OnNext(240, 2),
			rxtest.OnCompleted[int](250),
		}, res.Messages())
		assert.Equal(t, errBoom, caught)
		rxtest.AssertSubscriptions(t, []rxtest.Subscription{rxtest.Subscribe(200, 230)}, xs.Subscriptions())
		rxtest.AssertSubscriptions(t, []rxtest.Subscription{rxtest.Subscribe(230, 250)}, ys.Subscriptions())
	})

	t.Run("处理函数出错", func(t *testing.T) {
		other := errors.New("other")
		_, err := rxgo.ToSlice(ctx, rxgo.Catch(rxgo.Throw[int](errBoom), func(error) (rxgo.Observable[int], error) {
			return nil, other
		}))
		assert.ErrorIs(t, err, other)
	})

	t.Run("OnErrorReturn", func(t *testing.T) {
		values, err := rxgo.ToSlice(ctx, rxgo.OnErrorReturn(rxgo.Concat(rxgo.Just(1), rxgo.Throw[int](errBoom)), -1))
		require.NoError(t, err)
		assert.Equal(t, []int{1, -1}, values)
	})

	t.Run("CatchWith", func(t *testing.T) {
		last := errors.New("last")
		_, err := rxgo.ToSlice(ctx, rxgo.CatchWith(rxgo.Throw[int](errBoom), rxgo.Throw[int](last)))
		assert.ErrorIs(t, err, last)

		values, err := rxgo.ToSlice(ctx, rxgo.CatchWith(rxgo.Throw[int](errBoom), rxgo.Just(1, 2)))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, values)
	})
}
