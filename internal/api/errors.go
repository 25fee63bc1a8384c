package api

import (
	"errors"
	"log"

	"github.com/Yates-Labs/lore/internal/config"
	"github.com/Yates-Labs/lore/internal/narrative"
	"github.com/Yates-Labs/lore/internal/orchestrator"
	"github.com/Yates-Labs/lore/internal/rag"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders every error returned by a handler as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiError Error
	if errors.As(err, &apiError) {
		return c.Status(apiError.Code).JSON(apiError)
	}
	var valError ValidationError
	if errors.As(err, &valError) {
		return c.Status(valError.Status).JSON(valError)
	}
	var fiberError *fiber.Error
	if errors.As(err, &fiberError) {
		return c.Status(fiberError.Code).JSON(NewError(fiberError.Code, fiberError.Message))
	}

	apiError = FromDomainError(err)
	log.Printf("[API] %s %s failed with code %d: %v", c.Method(), c.Path(), apiError.Code, err)
	return c.Status(apiError.Code).JSON(apiError)
}

// FromDomainError maps pipeline errors to HTTP status codes.
func FromDomainError(err error) Error {
	switch {
	case errors.Is(err, orchestrator.ErrNoMatches), errors.Is(err, narrative.ErrCharacterNotFound):
		return NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, rag.ErrEmptyQuery):
		return NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, rag.ErrEmbedderMismatch):
		return NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, config.ErrMissingCredential):
		return NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		// extraction and search failures
		return NewError(fiber.StatusBadGateway, err.Error())
	}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}
