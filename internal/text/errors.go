package text

import (
	"errors"
	"fmt"
)

var ErrVisitorNotFound = errors.New("token visitor not found")

type VisitorNotFoundError struct {
	Kind Kind
}

func (e *VisitorNotFoundError) Error() string {
	return fmt.Sprintf("token visitor for kind %s not found", e.Kind)
}

func (e *VisitorNotFoundError) Unwrap() error {
	return ErrVisitorNotFound
}
