package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid")
	ErrConfiguration = errors.New("configuration error")
	ErrBackendInit   = errors.New("backend init failed")
	ErrBackendCall   = errors.New("backend call failed")
	ErrConflict      = errors.New("conflict")
)

// AggregateError reports that every candidate in a fallback chain failed.
type AggregateError struct {
	Names []string
	Errs  []error
}

func NewAggregateError(names []string, errs []error) *AggregateError {
	return &AggregateError{Names: names, Errs: errs}
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("failed with %s: %s", strings.Join(e.Names, " and "), strings.Join(msgs, " / "))
}

func (e *AggregateError) Unwrap() []error {
	return e.Errs
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsBackendInit(err error) bool {
	return errors.Is(err, ErrBackendInit)
}

func IsAggregate(err error) bool {
	var agg *AggregateError
	return errors.As(err, &agg)
}
