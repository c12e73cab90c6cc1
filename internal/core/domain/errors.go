package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrTemporary         = errors.New("temporary failure")
	ErrSessionNotFound   = errors.New("session not found")
	ErrOracleUnavailable = errors.New("query expansion unavailable")
	ErrOracleContract    = errors.New("query expansion contract violation")
	ErrEmbedding         = errors.New("embedding failure")
	ErrVectorIndex       = errors.New("vector index unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
