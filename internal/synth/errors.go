package synth

import (
	"errors"
	"fmt"
)

// TransientError marks a synthesis failure worth retrying: timeouts,
// rate limits, flaky network. The scheduler retries these with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient synthesis error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that will not improve on retry, such as a
// malformed request. The scheduler fails these fast.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent synthesis error: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
