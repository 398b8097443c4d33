package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	"github.com/jhoicas/ledger-api/internal/application/inventory"
)

// InventoryHandler maneja artículos, movimientos de stock y sus proyecciones.
type InventoryHandler struct {
	items  *inventory.ItemUseCase
	ledger *inventory.StockLedger
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(items *inventory.ItemUseCase, ledger *inventory.StockLedger) *InventoryHandler {
	return &InventoryHandler{items: items, ledger: ledger}
}

// ListItems GET /api/items?limit=20&offset=0
func (h *InventoryHandler) ListItems(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return ErrorHandler(c, &requestError{code: "VALIDATION", message: "limit/offset inválidos"})
	}
	if err := validate.Struct(page); err != nil {
		return ErrorHandler(c, &requestError{code: "VALIDATION", message: validationMessage(err)})
	}
	list, err := h.items.List(c.Context(), page)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// CreateItem POST /api/items
func (h *InventoryHandler) CreateItem(c *fiber.Ctx) error {
	var in dto.CreateItemRequest
	if err := bindAndValidate(c, &in); err != nil {
		return ErrorHandler(c, err)
	}
	item, err := h.items.Create(c.Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// GetItem GET /api/items/:id
func (h *InventoryHandler) GetItem(c *fiber.Ctx) error {
	item, err := h.items.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

// UpdateItem PUT /api/items/:id
func (h *InventoryHandler) UpdateItem(c *fiber.Ctx) error {
	var in dto.UpdateItemRequest
	if err := bindAndValidate(c, &in); err != nil {
		return ErrorHandler(c, err)
	}
	item, err := h.items.Update(c.Context(), c.Params("id"), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

// AdjustStock godoc
// @Summary      Registrar movimiento de stock de un artículo
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                     true  "ID del artículo"
// @Param        body  body  dto.RecordMovementRequest  true  "quantity_change (+ entrada, - salida), reason, unit_cost (entradas)"
// @Success      201   {object}  dto.StockMovementResult
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/items/{id}/adjust-stock [post]
func (h *InventoryHandler) AdjustStock(c *fiber.Ctx) error {
	var in dto.RecordMovementRequest
	if err := bindAndValidate(c, &in); err != nil {
		return ErrorHandler(c, err)
	}
	in.ItemID = c.Params("id")
	return h.record(c, in)
}

// RecordMovement POST /api/stock-movements. Con sku y sin item_id crea el artículo en su primera entrada.
func (h *InventoryHandler) RecordMovement(c *fiber.Ctx) error {
	var in dto.RecordMovementRequest
	if err := bindAndValidate(c, &in); err != nil {
		return ErrorHandler(c, err)
	}
	return h.record(c, in)
}

func (h *InventoryHandler) record(c *fiber.Ctx, in dto.RecordMovementRequest) error {
	res, err := h.ledger.Record(c.Context(), inventory.FromRequest(GetUserID(c), in))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Ledger godoc
// @Summary      Libro de movimientos del artículo
// @Tags         inventory
// @Produce      json
// @Param        id    path   string  true   "ID del artículo"
// @Param        from  query  string  false  "RFC3339 o YYYY-MM-DD (inclusivo)"
// @Param        to    query  string  false  "RFC3339 o YYYY-MM-DD (inclusivo, fin del día)"
// @Success      200   {object}  dto.LedgerResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/items/{id}/ledger [get]
func (h *InventoryHandler) Ledger(c *fiber.Ctx) error {
	from, err := parseDateParam(c.Query("from"), false)
	if err != nil {
		return ErrorHandler(c, &requestError{code: "VALIDATION", message: "from inválido: use RFC3339 o YYYY-MM-DD"})
	}
	to, err := parseDateParam(c.Query("to"), true)
	if err != nil {
		return ErrorHandler(c, &requestError{code: "VALIDATION", message: "to inválido: use RFC3339 o YYYY-MM-DD"})
	}
	res, err := h.ledger.Ledger(c.Context(), c.Params("id"), from, to)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// CostLayers GET /api/items/:id/cost-layers
func (h *InventoryHandler) CostLayers(c *fiber.Ctx) error {
	res, err := h.ledger.CostLayers(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Valuation GET /api/items/:id/valuation
func (h *InventoryHandler) Valuation(c *fiber.Ctx) error {
	res, err := h.ledger.Valuation(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// parseDateParam acepta RFC3339 o YYYY-MM-DD (UTC). Con endOfDay una fecha sin hora
// cubre el día completo.
func parseDateParam(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
