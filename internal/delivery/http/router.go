package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	custommiddleware "leverledger/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	AuthHandler   *AuthHandler
	UserHandler   *UserHandler
	AdminHandler  *AdminHandler
	MarketHandler *MarketHandler
	JWT           *custommiddleware.JWTManager
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	e.HTTPErrorHandler = HTTPErrorHandler

	// Middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Price polling is too frequent to log
			return c.Request().URL.Path == "/api/prices" || c.Request().URL.Path == "/health"
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return SuccessResponse(c, map[string]interface{}{
			"status":    "healthy",
			"service":   "leverledger-api",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// API group
	api := e.Group("/api")

	// Public routes
	api.GET("/prices", config.MarketHandler.GetPrices)
	api.GET("/leaderboard", config.MarketHandler.GetLeaderboard)

	auth := api.Group("/auth")
	{
		auth.POST("/login", config.AuthHandler.Login)
		auth.POST("/logout", config.AuthHandler.Logout)
		auth.POST("/register", config.AuthHandler.Register)
	}

	// User routes (protected with AuthMiddleware)
	user := api.Group("/user", config.JWT.AuthMiddleware)
	{
		user.GET("/me", config.UserHandler.GetMe)
		user.GET("/positions", config.UserHandler.GetPositions)
		user.POST("/positions", config.UserHandler.OpenPosition)
		user.POST("/positions/:id/close", config.UserHandler.ClosePosition)
		user.POST("/deposits", config.UserHandler.RequestDeposit)
		user.GET("/deposits", config.UserHandler.ListDeposits)
		user.POST("/withdrawals", config.UserHandler.RequestWithdrawal)
		user.GET("/withdrawals", config.UserHandler.ListWithdrawals)
	}

	// Admin routes (protected with Auth + Admin middleware)
	admin := api.Group("/admin", config.JWT.AuthMiddleware, custommiddleware.AdminMiddleware)
	{
		admin.GET("/dashboard", config.AdminHandler.GetDashboard)
		admin.GET("/users/:id", config.AdminHandler.GetUser)
		admin.PUT("/users/:id", config.AdminHandler.UpdateUser)
		admin.POST("/users/:id/ban", config.AdminHandler.BanUser)
		admin.POST("/users/:id/unban", config.AdminHandler.UnbanUser)
		admin.GET("/requests", config.AdminHandler.GetPendingRequests)
		admin.POST("/deposits/:id/approve", config.AdminHandler.ApproveDeposit)
		admin.POST("/deposits/:id/reject", config.AdminHandler.RejectDeposit)
		admin.POST("/withdrawals/:id/approve", config.AdminHandler.ApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", config.AdminHandler.RejectWithdrawal)
		admin.POST("/prices", config.AdminHandler.SetPrice)
		admin.GET("/positions", config.AdminHandler.GetPositions)
	}
}
