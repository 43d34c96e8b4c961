package handlers

import (
	"github.com/labstack/echo/v4"

	"estate_backoffice/internal/middleware"
)

// Handlers groups every route handler
type Handlers struct {
	Auth      *AuthHandler
	Inventory *InventoryHandler
	Sales     *SalesHandler
	Reconcile *ReconcileHandler
	Expenses  *ExpenseHandler
	Users     *UserHandler
	Console   *ConsoleHandler
}

// RegisterRoutes mounts the public auth routes and the operator API behind authMW
func RegisterRoutes(e *echo.Echo, h Handlers, authMW echo.MiddlewareFunc) {
	e.POST("/auth/login", h.Auth.HandleLogin)
	e.POST("/auth/logout", h.Auth.HandleLogout)

	api := e.Group("", authMW)
	api.GET("/auth/me", h.Auth.Me)

	api.GET("/projects", h.Inventory.ListProjects)
	api.POST("/projects", h.Inventory.CreateProject)
	api.POST("/projects/:id/plots", h.Inventory.CreatePlot)
	api.GET("/plots", h.Inventory.ListPlots)

	api.GET("/clients", h.Sales.ListClients)
	api.POST("/clients", h.Sales.CreateSale)
	api.GET("/clients/:id", h.Sales.GetClient)
	api.GET("/clients/:id/payments", h.Sales.ListPayments)
	api.POST("/clients/:id/payments", h.Sales.RecordPayment)
	api.GET("/clients/:id/schedule", h.Sales.Schedule)

	api.POST("/plots/:id/cancel", h.Reconcile.CancelSale)
	api.POST("/plots/:id/transfer", h.Reconcile.TransferSale)
	api.GET("/cancelled-sales", h.Reconcile.ListCancelledSales)
	api.GET("/cancelled-sales/:id", h.Reconcile.GetCancelledSale)
	api.PATCH("/cancelled-sales/:id/refund", h.Reconcile.UpdateRefund)
	api.GET("/workflows/:id", h.Reconcile.GetWorkflow)

	api.GET("/expenses", h.Expenses.ListExpenses)
	api.POST("/expenses", h.Expenses.CreateExpense)
	api.GET("/reports/summary", h.Expenses.Summary)

	api.GET("/users", h.Users.ListUsers)
	api.POST("/users", h.Users.CreateUser)
	api.GET("/users/:id/preference", h.Users.GetUserPreference)
	api.PUT("/users/:id/preference", h.Users.UpdateUserPreference)

	console := api.Group("/console", middleware.RequireSuperAdmin())
	console.GET("/tenants", h.Console.ListTenants)
	console.POST("/tenants", h.Console.CreateTenant)
}
