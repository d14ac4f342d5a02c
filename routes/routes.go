package routes

import (
	"cryptovision_backend/controllers"
	"cryptovision_backend/middleware"
	"cryptovision_backend/models"
	"cryptovision_backend/security"
	"cryptovision_backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the shared services the route handlers depend on
type Deps struct {
	DB      *gorm.DB
	Tokens  *security.TokenMaker
	Limiter *middleware.LoginRateLimiter
	Prices  *services.PriceService
	Alerts  *services.AlertService
	Models  *services.ModelService
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Deps) {
	auth := middleware.NewAuthenticator(deps.DB, deps.Tokens)

	// Initialize controllers
	authController := controllers.NewAuthController(deps.DB, deps.Tokens, deps.Limiter)
	userController := controllers.NewUserController(deps.DB)
	cryptoController := controllers.NewCryptoController(deps.DB, deps.Prices)
	modelController := controllers.NewModelController(deps.DB, deps.Models)
	alertController := controllers.NewAlertController(deps.DB, deps.Alerts)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := api.Group("/auth")
		{
			if deps.Limiter != nil {
				authGroup.POST("/login/access-token", deps.Limiter.Middleware(), authController.Login)
			} else {
				authGroup.POST("/login/access-token", authController.Login)
			}
			authGroup.POST("/login/test-token", auth.RequireUser(), authController.TestToken)
			authGroup.POST("/refresh-token", authController.RefreshToken)
		}

		// User routes
		users := api.Group("/users")
		{
			users.POST("", userController.CreateUser) // open registration
			users.GET("/me", auth.RequireUser(), userController.GetMe)
			users.PUT("/me", auth.RequireUser(), userController.UpdateMe)
			users.GET("", auth.RequireUser(), auth.RequireSuperuser(), userController.GetUsers)
			users.GET("/:id", auth.RequireUser(), userController.GetUser)
			users.PUT("/:id", auth.RequireUser(), userController.UpdateUser)
			users.DELETE("/:id", auth.RequireUser(), auth.RequireSuperuser(), userController.DeleteUser)
			users.POST("/:id/roles/:role", auth.RequireUser(), auth.RequireSuperuser(), userController.AddUserRole)
			users.DELETE("/:id/roles/:role", auth.RequireUser(), auth.RequireSuperuser(), userController.RemoveUserRole)
		}

		// Market data routes
		crypto := api.Group("/crypto", auth.RequireUser())
		{
			crypto.GET("/cryptocurrencies", cryptoController.GetCryptocurrencies)
			crypto.GET("/cryptocurrencies/active", cryptoController.GetActiveCryptocurrencies)
			crypto.GET("/cryptocurrencies/:id", cryptoController.GetCryptocurrency)
			crypto.POST("/cryptocurrencies", auth.RequireSuperuser(), cryptoController.CreateCryptocurrency)
			crypto.PUT("/cryptocurrencies/:id", auth.RequireSuperuser(), cryptoController.UpdateCryptocurrency)

			crypto.GET("/price-history", cryptoController.GetPriceHistory)
			crypto.GET("/price-history/latest", cryptoController.GetLatestPrice)
			crypto.POST("/price-history", auth.RequireRole(models.RoleAnalyst), cryptoController.CreatePriceHistory)

			crypto.GET("/predictions", cryptoController.GetPredictions)
			crypto.GET("/predictions/latest", cryptoController.GetLatestPrediction)
			crypto.POST("/predictions", auth.RequireRole(models.RoleAnalyst), cryptoController.CreatePrediction)
		}

		// Model registry routes
		modelGroup := api.Group("/models", auth.RequireUser())
		{
			modelGroup.GET("", modelController.GetModelVersions)
			modelGroup.GET("/:id", modelController.GetModelVersion)
			modelGroup.GET("/production/:name", modelController.GetProductionVersion)
			modelGroup.POST("", auth.RequireRole(models.RoleAnalyst), modelController.CreateModelVersion)
			modelGroup.PUT("/:id", auth.RequireRole(models.RoleAnalyst), modelController.UpdateModelVersion)
			modelGroup.POST("/:id/production", auth.RequireRole(models.RoleAnalyst), modelController.SetProduction)
		}

		// Alert routes
		alerts := api.Group("/alerts", auth.RequireUser())
		{
			alerts.GET("", alertController.GetAlerts)
			alerts.GET("/active", alertController.GetActiveAlerts)
			alerts.GET("/:id", alertController.GetAlert)
			alerts.POST("", alertController.CreateAlert)
			alerts.PUT("/:id", alertController.UpdateAlert)
			alerts.POST("/:id/cancel", alertController.CancelAlert)
			alerts.DELETE("/:id", alertController.DeleteAlert)
		}
	}
}
