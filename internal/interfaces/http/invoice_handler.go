package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ledger-api/internal/application/billing"
	"github.com/jhoicas/ledger-api/internal/application/dto"
)

// HeaderIdempotencyKey header con la clave de idempotencia de un pago.
const HeaderIdempotencyKey = "Idempotency-Key"

// InvoiceHandler maneja el ciclo de vida de facturas y sus pagos.
type InvoiceHandler struct {
	ledger   *billing.InvoiceLedger
	payments *billing.PaymentProcessor
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(ledger *billing.InvoiceLedger, payments *billing.PaymentProcessor) *InvoiceHandler {
	return &InvoiceHandler{ledger: ledger, payments: payments}
}

// Create godoc
// @Summary      Crear factura en borrador
// @Description  No toca el stock; los costos se fijan al emitir.
// @Tags         invoices
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateInvoiceRequest  true  "customer_id, lines, discount"
// @Success      201   {object}  dto.InvoiceResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/invoices [post]
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateInvoiceRequest
	if err := bindAndValidate(c, &in); err != nil {
		return ErrorHandler(c, err)
	}
	inv, err := h.ledger.Create(c.Context(), GetUserID(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// GetByID GET /api/invoices/:id
func (h *InvoiceHandler) GetByID(c *fiber.Ctx) error {
	inv, err := h.ledger.Get(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

// Issue POST /api/invoices/:id/issue
func (h *InvoiceHandler) Issue(c *fiber.Ctx) error {
	inv, err := h.ledger.Issue(c.Context(), c.Params("id"), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

// Void POST /api/invoices/:id/void
func (h *InvoiceHandler) Void(c *fiber.Ctx) error {
	var in dto.VoidInvoiceRequest
	if len(c.Body()) > 0 {
		if err := bindAndValidate(c, &in); err != nil {
			return ErrorHandler(c, err)
		}
	}
	inv, err := h.ledger.Void(c.Context(), c.Params("id"), in.Reason, GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

// Return godoc
// @Summary      Devolución parcial de mercancía
// @Description  Reingresa stock al costo de las porciones vendidas más recientes. No cambia montos ni estado.
// @Tags         invoices
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                    true  "ID de la factura"
// @Param        body  body  dto.ReturnInvoiceRequest  true  "lines[{item_id, quantity}], reason"
// @Success      201   {object}  dto.InvoiceReturnResponse
// @Failure      400   {object}  dto.ErrorResponse  "INVALID_AMOUNT si supera lo pendiente por devolver"
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse  "INVALID_STATE_TRANSITION"
// @Router       /api/invoices/{id}/return [post]
func (h *InvoiceHandler) Return(c *fiber.Ctx) error {
	var in dto.ReturnInvoiceRequest
	if err := bindAndValidate(c, &in); err != nil {
		return ErrorHandler(c, err)
	}
	res, err := h.ledger.Return(c.Context(), c.Params("id"), GetUserID(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Payments GET /api/invoices/:id/payments
func (h *InvoiceHandler) Payments(c *fiber.Ctx) error {
	res, err := h.ledger.Payments(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Pay godoc
// @Summary      Pagar factura
// @Tags         invoices
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id               path    string              true   "ID de la factura"
// @Param        Idempotency-Key  header  string              false  "Clave de idempotencia (o idempotency_key en el body)"
// @Param        body             body    dto.PaymentRequest  true   "amount, method"
// @Success      201  {object}  dto.PaymentResponse
// @Success      200  {object}  dto.PaymentResponse  "reintento con la misma clave"
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse  "OVERPAYMENT o INVALID_STATE_TRANSITION"
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/pay [post]
func (h *InvoiceHandler) Pay(c *fiber.Ctx) error {
	var in dto.PaymentRequest
	if err := bindAndValidate(c, &in); err != nil {
		return ErrorHandler(c, err)
	}
	res, err := h.payments.ApplyPayment(c.Context(), billing.PaymentInput{
		InvoiceID:      c.Params("id"),
		Amount:         in.Amount,
		Method:         in.Method,
		IdempotencyKey: idempotencyKey(c, in.IdempotencyKey),
		UserID:         GetUserID(c),
	})
	return paymentResult(c, res, err)
}

// MarkOverdue POST /api/invoices/mark-overdue. Ejecuta el barrido a demanda.
func (h *InvoiceHandler) MarkOverdue(c *fiber.Ctx) error {
	res, err := h.ledger.MarkOverdue(c.Context(), time.Now().UTC())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// idempotencyKey el header tiene prioridad sobre el body.
func idempotencyKey(c *fiber.Ctx, fromBody string) string {
	if k := strings.TrimSpace(c.Get(HeaderIdempotencyKey)); k != "" {
		return k
	}
	return strings.TrimSpace(fromBody)
}

// paymentResult 201 para un pago nuevo, 200 para un reintento.
func paymentResult(c *fiber.Ctx, res *dto.PaymentResponse, err error) error {
	if err != nil {
		return respondError(c, err)
	}
	if res.Replayed {
		return c.JSON(res)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}
