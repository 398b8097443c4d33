package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ledger-api/internal/application/billing"
	"github.com/jhoicas/ledger-api/internal/application/dto"
)

// CustomerHandler maneja clientes, sus saldos y pagos a nivel de cliente.
type CustomerHandler struct {
	uc       *billing.CustomerUseCase
	invoices *billing.InvoiceLedger
	payments *billing.PaymentProcessor
	balances *billing.CustomerBalanceAggregator
}

// NewCustomerHandler construye el handler.
func NewCustomerHandler(uc *billing.CustomerUseCase, invoices *billing.InvoiceLedger, payments *billing.PaymentProcessor, balances *billing.CustomerBalanceAggregator) *CustomerHandler {
	return &CustomerHandler{uc: uc, invoices: invoices, payments: payments, balances: balances}
}

// Create POST /api/customers
func (h *CustomerHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateCustomerRequest
	if err := bindAndValidate(c, &in); err != nil {
		return ErrorHandler(c, err)
	}
	customer, err := h.uc.Create(c.Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(customer)
}

// List GET /api/customers?limit=20&offset=0
func (h *CustomerHandler) List(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	list, err := h.uc.List(c.Context(), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// GetByID GET /api/customers/:id
func (h *CustomerHandler) GetByID(c *fiber.Ctx) error {
	customer, err := h.uc.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(customer)
}

// Summary godoc
// @Summary      Saldo del cliente
// @Description  Pendiente, crédito disponible y totales reconciliados. Los borradores y anuladas no cuentan.
// @Tags         customers
// @Produce      json
// @Param        id   path  string  true  "ID del cliente"
// @Success      200  {object}  dto.CustomerSummaryResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/customers/{id}/summary [get]
func (h *CustomerHandler) Summary(c *fiber.Ctx) error {
	res, err := h.balances.Summary(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Invoices GET /api/customers/:id/invoices
func (h *CustomerHandler) Invoices(c *fiber.Ctx) error {
	list, err := h.invoices.ListByCustomer(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// Payment godoc
// @Summary      Pago a nivel de cliente
// @Description  Se aplica a las facturas abiertas por vencimiento más antiguo; el excedente queda como crédito.
// @Tags         customers
// @Accept       json
// @Produce      json
// @Param        id               path    string              true   "ID del cliente"
// @Param        Idempotency-Key  header  string              false  "Clave de idempotencia (o idempotency_key en el body)"
// @Param        body             body    dto.PaymentRequest  true   "amount, method"
// @Success      201  {object}  dto.PaymentResponse
// @Success      200  {object}  dto.PaymentResponse  "reintento con la misma clave"
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/customers/{id}/payment [post]
func (h *CustomerHandler) Payment(c *fiber.Ctx) error {
	var in dto.PaymentRequest
	if err := bindAndValidate(c, &in); err != nil {
		return ErrorHandler(c, err)
	}
	res, err := h.payments.ApplyCustomerPayment(c.Context(), billing.PaymentInput{
		CustomerID:     c.Params("id"),
		Amount:         in.Amount,
		Method:         in.Method,
		IdempotencyKey: idempotencyKey(c, in.IdempotencyKey),
		UserID:         GetUserID(c),
	})
	return paymentResult(c, res, err)
}

// ApplyCredit POST /api/customers/:id/apply-credit
func (h *CustomerHandler) ApplyCredit(c *fiber.Ctx) error {
	var in dto.ApplyCreditRequest
	if len(c.Body()) > 0 {
		if err := bindAndValidate(c, &in); err != nil {
			return ErrorHandler(c, err)
		}
	}
	res, err := h.payments.ApplyCustomerCredit(c.Context(), c.Params("id"), idempotencyKey(c, in.IdempotencyKey), GetUserID(c))
	return paymentResult(c, res, err)
}
