package enhance

import "errors"

// FatalBatchError marks a service failure that retrying cannot fix, such as
// an authentication or invalid-request rejection. The batch is abandoned
// immediately without consuming retry attempts.
type FatalBatchError struct {
	Err error
}

func (e *FatalBatchError) Error() string {
	return "fatal batch error: " + e.Err.Error()
}

func (e *FatalBatchError) Unwrap() error {
	return e.Err
}

// NewFatalBatchError wraps err as a fatal, non-retryable batch failure.
func NewFatalBatchError(err error) *FatalBatchError {
	return &FatalBatchError{Err: err}
}

// IsFatal reports whether err is a FatalBatchError anywhere in its chain.
func IsFatal(err error) bool {
	var fatal *FatalBatchError
	return errors.As(err, &fatal)
}
