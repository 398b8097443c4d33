package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ledger-api/internal/application/billing"
	"github.com/jhoicas/ledger-api/internal/application/inventory"
	"github.com/jhoicas/ledger-api/pkg/jwt"
)

// AuthConfig autenticación de las rutas /api. Con Enabled en false las rutas quedan abiertas
// y las operaciones se registran sin usuario.
type AuthConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
}

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Items     *inventory.ItemUseCase
	Stock     *inventory.StockLedger
	Customers *billing.CustomerUseCase
	Invoices  *billing.InvoiceLedger
	Payments  *billing.PaymentProcessor
	Balances  *billing.CustomerBalanceAggregator
	Auth      AuthConfig
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// roles devuelve RequireRole si hay autenticación; sin ella no hay rol que validar.
	roles := func(allowed ...string) fiber.Handler {
		if !deps.Auth.Enabled {
			return func(c *fiber.Ctx) error { return c.Next() }
		}
		return RequireRole(allowed...)
	}
	if deps.Auth.Enabled {
		api.Use(AuthMiddleware(deps.Auth.Secret, deps.Auth.Issuer))
	}
	stockWriter := roles(jwt.RoleAdmin, jwt.RoleBodeguero)
	billingWriter := roles(jwt.RoleAdmin, jwt.RoleVendedor)

	// Items y movimientos de stock
	inventoryHandler := NewInventoryHandler(deps.Items, deps.Stock)
	items := api.Group("/items")
	items.Get("/", inventoryHandler.ListItems)
	items.Post("/", stockWriter, inventoryHandler.CreateItem)
	items.Get("/:id", inventoryHandler.GetItem)
	items.Put("/:id", stockWriter, inventoryHandler.UpdateItem)
	items.Get("/:id/ledger", inventoryHandler.Ledger)
	items.Get("/:id/cost-layers", inventoryHandler.CostLayers)
	items.Get("/:id/valuation", inventoryHandler.Valuation)
	items.Post("/:id/adjust-stock", stockWriter, inventoryHandler.AdjustStock)
	api.Post("/stock-movements", stockWriter, inventoryHandler.RecordMovement)

	// Clientes
	customerHandler := NewCustomerHandler(deps.Customers, deps.Invoices, deps.Payments, deps.Balances)
	customers := api.Group("/customers")
	customers.Get("/", customerHandler.List)
	customers.Post("/", billingWriter, customerHandler.Create)
	customers.Get("/:id", customerHandler.GetByID)
	customers.Get("/:id/summary", customerHandler.Summary)
	customers.Get("/:id/invoices", customerHandler.Invoices)
	customers.Post("/:id/payment", billingWriter, customerHandler.Payment)
	customers.Post("/:id/apply-credit", billingWriter, customerHandler.ApplyCredit)

	// Facturas
	invoiceHandler := NewInvoiceHandler(deps.Invoices, deps.Payments)
	invoices := api.Group("/invoices")
	invoices.Post("/", billingWriter, invoiceHandler.Create)
	invoices.Post("/mark-overdue", roles(jwt.RoleAdmin), invoiceHandler.MarkOverdue)
	invoices.Get("/:id", invoiceHandler.GetByID)
	invoices.Post("/:id/issue", billingWriter, invoiceHandler.Issue)
	invoices.Post("/:id/pay", billingWriter, invoiceHandler.Pay)
	invoices.Post("/:id/void", billingWriter, invoiceHandler.Void)
	invoices.Post("/:id/return", billingWriter, invoiceHandler.Return)
	invoices.Get("/:id/payments", invoiceHandler.Payments)
}
