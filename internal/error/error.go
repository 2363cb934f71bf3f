// internal/error/error.go

package error

import (
	"errors"
	"fmt"
)

type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

type ErrorType int

const (
	ConfigError ErrorType = iota
	ConnectionError
	AuthenticationError
	StalenessError
	ClipboardError
	CapacityError
	CryptoError
	ValidationError
)

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Is sprawdza czy błąd (także opakowany) jest AppError danego typu
func Is(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}
