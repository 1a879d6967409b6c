package resilience

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type fatalError struct{ err error }

func (f fatalError) Error() string { return f.err.Error() }
func (f fatalError) Unwrap() error { return f.err }

// Fatal marks err so that FailGracefully propagates it instead of logging it away.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

// IsFatal reports whether err, or anything it wraps, was marked with Fatal.
func IsFatal(err error) bool {
	var f fatalError
	return errors.As(err, &f)
}

// FailGracefully runs fn and turns ordinary failures and panics into a logged miss.
// ok is false on a miss. Errors marked with Fatal come back as err.
func FailGracefully[T any](log *zap.Logger, what string, fn func() (T, error)) (result T, ok bool, err error) {
	if log == nil {
		log = zap.NewNop()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic", zap.String("unit", what), zap.Any("panic", r), zap.Stack("stack"))
			var zero T
			result, ok, err = zero, false, nil
		}
	}()

	value, fnErr := fn()
	if fnErr == nil {
		return value, true, nil
	}
	if IsFatal(fnErr) {
		var zero T
		return zero, false, fmt.Errorf("%s: %w", what, fnErr)
	}

	log.Error("unit failed", zap.String("unit", what), zap.Error(fnErr))
	var zero T
	return zero, false, nil
}
