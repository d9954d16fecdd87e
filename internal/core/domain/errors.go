package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
	ErrIndexUnavailable = errors.New("semantic index unavailable")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrCorpusIntegrity  = errors.New("corpus integrity violation")
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

// KindOf returns a stable short name for the first known error kind in err's chain.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrInvalidInput):
		return "invalid_input"
	case IsKind(err, ErrUnauthorized):
		return "unauthorized"
	case IsKind(err, ErrIndexUnavailable):
		return "index_unavailable"
	case IsKind(err, ErrModelUnavailable):
		return "model_unavailable"
	case IsKind(err, ErrCorpusIntegrity):
		return "corpus_integrity"
	case IsKind(err, ErrTemporary):
		return "temporary"
	default:
		return "internal"
	}
}
