package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	"github.com/jhoicas/ledger-api/internal/domain"
)

// errorMapping status y código estable por error de dominio; gana la primera coincidencia.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "VALIDATION"},
	{domain.ErrInvalidAmount, fiber.StatusBadRequest, "INVALID_AMOUNT"},
	{domain.ErrInvalidCost, fiber.StatusBadRequest, "INVALID_COST"},
	{domain.ErrInsufficientStock, fiber.StatusConflict, "INSUFFICIENT_STOCK"},
	{domain.ErrOverpayment, fiber.StatusConflict, "OVERPAYMENT"},
	{domain.ErrInvalidStateTransition, fiber.StatusConflict, "INVALID_STATE_TRANSITION"},
	{domain.ErrDuplicate, fiber.StatusConflict, "DUPLICATE"},
	{domain.ErrIdempotencyConflict, fiber.StatusUnprocessableEntity, "IDEMPOTENCY_CONFLICT"},
	{domain.ErrBusy, fiber.StatusServiceUnavailable, "BUSY"},
	{domain.ErrUnauthorized, fiber.StatusUnauthorized, "UNAUTHORIZED"},
	{domain.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
}

// ErrorHandler handler de errores de la app Fiber: errores de request, de dominio y de Fiber.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: reqErr.code, Message: reqErr.message})
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(dto.ErrorResponse{Code: "HTTP_ERROR", Message: fe.Message})
	}
	return respondError(c, err)
}

// respondError traduce un error de los casos de uso a status HTTP y dto.ErrorResponse.
func respondError(c *fiber.Ctx, err error) error {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			if m.status == fiber.StatusServiceUnavailable {
				c.Set(fiber.HeaderRetryAfter, "1")
			}
			return c.Status(m.status).JSON(dto.ErrorResponse{Code: m.code, Message: err.Error()})
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}
