package collab

import (
	"context"
	"errors"
	"fmt"
)

// ConfigurationError reports a required preference that is unset or invalid.
// It is fatal for the current run and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration: %s is not set", e.Field)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// FetchError wraps a failed collaborator call (calendar, weather, transit, places).
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the call was cut off by its deadline.
func (e *FetchError) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

// Fetch wraps err as a FetchError unless it already is one or is a ConfigurationError.
func Fetch(source string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return err
	}
	return &FetchError{Source: source, Err: err}
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
