package rxgo_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	rxgo "github.com/xinjiayu/rxgo/v2"
)

func ExampleScan() {
	sums := rxgo.Scan(rxgo.Just(1, 2, 3, 4), 0, func(acc, v int) (int, error) {
		return acc + v, nil
	})

	values, _ := rxgo.ToSlice(context.Background(), sums)
	fmt.Println(values)
	// Output: [1 3 6 10]
}

func ExampleAmb() {
	vs := rxgo.NewVirtualTimeScheduler()
	label := func(name string, due time.Duration) rxgo.Observable[string] {
		return rxgo.Map(rxgo.Timer(due, vs), func(int64) (string, error) { return name, nil })
	}

	rxgo.SubscribeWithCallbacks(rxgo.Amb(label("slow", 30), label("fast", 10)),
		func(name string) { fmt.Println(name, "at", vs.Clock()) },
		nil,
		func() { fmt.Println("completed") },
	)
	vs.Start()
	// Output:
	// fast at 10
	// completed
}

func ExamplePublish() {
	published := rxgo.Publish(rxgo.Just(1, 2))
	for _, name := range []string{"a", "b"} {
		rxgo.SubscribeWithCallbacks[int](published, func(v int) { fmt.Println(name, v) }, nil, nil)
	}

	published.Connect()
	// Output:
	// a 1
	// b 1
	// a 2
	// b 2
}

func ExampleRetryCount() {
	attempts := 0
	flaky := rxgo.Defer(func() (rxgo.Observable[string], error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("unavailable")
		}
		return rxgo.Just("ok"), nil
	})

	value, err := rxgo.BlockingFirst(context.Background(), rxgo.RetryCount(flaky, 5))
	fmt.Println(value, err, attempts)
	// Output: ok <nil> 3
}
