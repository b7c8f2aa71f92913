package funcutils

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// PanicOrLogOnErr does what its name suggests.
func PanicOrLogOnErr(f func() error, panicOnErr bool, msg string) {
	if err := f(); err != nil {
		if panicOnErr {
			panic(fmt.Sprintf("%s: %s", msg, err))
		}
		log.WithError(err).Error(msg)
	}
}

// Unwrap returns t or panics if err is not nil.
// Only use it for values that cannot fail at runtime, e.g. constant durations.
func Unwrap[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}
	return t
}

// RecoverToError turns a recovered panic value into an error, nil stays nil.
func RecoverToError(r any) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
