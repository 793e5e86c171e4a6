package routes

import (
	"RatedApp/cache"
	"RatedApp/cliniko"
	"RatedApp/config"
	"RatedApp/controllers"
	"RatedApp/handlers"
	"RatedApp/middlewares"
	"RatedApp/repositories"
	"RatedApp/services"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes initializes the routes and middleware for the server
func SetupRoutes(cache *cache.Cache, config *config.AppConfig, db *gorm.DB, api cliniko.API, location *time.Location) http.Handler {
	// Set Gin to release mode
	gin.SetMode(gin.ReleaseMode)

	// Create a Gin router
	router := gin.Default()

	// Apply Bearer token validation to all routes
	router.Use(middlewares.ValidateBearerToken(config.GetBearerToken()))

	// Create and apply CORS middleware configuration
	corsConfig := &middlewares.CorsConfig{
		AllowedOrigins:   []string{"http://localhost:3000", "https://www.example.com", "https://example-dev.com"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}
	router.Use(middlewares.CorsMiddleware(corsConfig))

	// Apply rate limiter middleware
	router.Use(middlewares.NewRateLimiterMiddleware(middlewares.RateLimiterConfig{
		RequestsPerSecond: 15, // 15 requests per second
		Burst:             30, // Burst of 30
	}))

	// Apply logging middleware
	router.Use(middlewares.LoggingMiddleware())

	// Initialize repositories, services, and handlers
	configRepo := repositories.NewConfigRepository(db, cache)
	patientRepo := repositories.NewPatientRepository(db, cache)
	jobRepo := repositories.NewJobRepository(db)
	emailLogRepo := repositories.NewEmailLogRepository(db)
	userRepo := repositories.NewUserRepository(db, cache)

	scoringService := services.NewScoringService(api, configRepo, patientRepo, cache, location)
	patientService := services.NewPatientService(patientRepo, cache)
	presetService := services.NewPresetService(configRepo)
	analyticsService := services.NewAnalyticsService(api, jobRepo, configRepo, emailLogRepo, scoringService, config.AdminEmail)
	userService := services.NewUserService(userRepo)

	patientHandler := handlers.NewPatientHandler(patientService, scoringService)
	configHandler := handlers.NewConfigHandler(presetService)
	jobHandler := handlers.NewJobHandler(analyticsService)
	authHandler := handlers.NewAuthHandler(userService)

	// Register routes
	controllers.SetupRatedRoutes(router, patientHandler, configHandler, jobHandler)

	authController := controllers.NewAuthController(authHandler)
	authController.RegisterRoutes(router)

	controllers.SetupRootRoute(router)

	return router
}
