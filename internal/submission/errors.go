package submission

import (
	"errors"
	"fmt"
)

var (
	ErrMissingItem  = errors.New("missing item")
	ErrInvalidValue = errors.New("invalid value")
)

// MissingItemError names the first required key absent from a submission.
type MissingItemError struct {
	Item string
}

func (e *MissingItemError) Error() string { return fmt.Sprintf("missing item: %s", e.Item) }

func (e *MissingItemError) Is(target error) bool { return target == ErrMissingItem }

func invalid(item string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidValue, item, err)
}
