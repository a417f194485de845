package mapview

import "fmt"

// guard runs fn and turns a panic into an error so no engine or aggregator
// failure reaches the host.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", op, r)
		}
	}()
	return fn()
}
