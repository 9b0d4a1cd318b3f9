package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the course does not resolve for the owner
	ErrNotFound = errors.New("course not found")
	// ErrStorage wraps any failure of the record store
	ErrStorage = errors.New("storage error")
	// ErrInvalidCourse means the course cannot be scheduled
	ErrInvalidCourse = errors.New("invalid course")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
