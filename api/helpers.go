package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lendcore/agentd/domain"
)

// errorResponse maps a domain error to an HTTP response.
func errorResponse(c echo.Context, err error) error {
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": notFound.Error()})
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": validation.Error()})
	}

	var invalidState *domain.InvalidStateError
	if errors.As(err, &invalidState) {
		return c.JSON(http.StatusConflict, map[string]string{"error": invalidState.Error()})
	}

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return c.JSON(http.StatusConflict, map[string]string{"error": conflict.Error()})
	}

	var configuration *domain.ConfigurationError
	if errors.As(err, &configuration) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": configuration.Error()})
	}

	if errors.Is(err, domain.ErrQueueFull) {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "run queue is full, retry later"})
	}

	log.Printf("ERROR: request failed: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
