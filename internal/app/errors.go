package app

import (
	"errors"
	"fmt"

	"chatpdf/internal/ai"
	"chatpdf/internal/repository"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrProvider          = errors.New("external provider failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrInvalidTransition = errors.New("invalid document status transition")
	ErrEnqueue           = errors.New("ingestion enqueue failed")
)

// AnswerFailedError is returned by StreamAsk when the question was already
// recorded and the answer could not be delivered.
type AnswerFailedError struct {
	Err error
}

func (e *AnswerFailedError) Error() string { return e.Err.Error() }

func (e *AnswerFailedError) Unwrap() error { return e.Err }

// classify tags err with the sentinel of the layer it came from.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDocumentNotFound),
		errors.Is(err, ErrProvider), errors.Is(err, ErrPersistence),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrEnqueue):
		return err
	case errors.Is(err, ai.ErrProvider), errors.Is(err, ai.ErrDimensionMismatch):
		return fmt.Errorf("%w: %w", ErrProvider, err)
	case errors.Is(err, repository.ErrStatusConflict):
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
