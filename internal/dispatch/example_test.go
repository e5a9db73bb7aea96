package dispatch_test

import (
	"fmt"

	"lbsim/internal/dispatch"
)

func ExampleDispatcher_Next() {
	d, err := dispatch.NewFromConfig(3, 1)
	if err != nil {
		fmt.Println(err)
		return
	}

	for i := 0; i < 4; i++ {
		fmt.Printf("Request %d sent to %s\n", i, d.Next().Name())
	}
	// Output:
	// Request 0 sent to Worker1
	// Request 1 sent to Worker2
	// Request 2 sent to Worker3
	// Request 3 sent to Worker1
}

func ExampleNew_emptyPool() {
	_, err := dispatch.New(nil)
	fmt.Println(err)
	// Output: invalid configuration pool.workers: at least one worker is required: worker pool is empty
}
