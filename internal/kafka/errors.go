package kafka

import (
	"errors"
	"fmt"
)

// ErrMalformed marks a message that can never be processed. The consumer commits it without retry.
var ErrMalformed = errors.New("malformed message")

func Malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}
