package main

import (
	"RatedApp/cache"
	"RatedApp/cliniko"
	"RatedApp/config"
	"RatedApp/database"
	"RatedApp/routes"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env in development; real deployments set the environment directly
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	// Load configuration from config package
	config, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize the database
	db, err := database.InitDB(context.Background(), config.DBURL)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// Initialize Redis
	if err := database.InitializeRedis(); err != nil {
		log.Fatalf("failed to initialize Redis client: %v", err)
	}

	// Initialize the cache utility
	cache, err := cache.NewCache()
	if err != nil {
		log.Fatalf("failed to initialize cache: %v", err)
	}

	// All age and date arithmetic happens in the clinic's local timezone
	location, err := time.LoadLocation(config.ClinicTimezone)
	if err != nil {
		log.Fatalf("failed to load clinic timezone %q: %v", config.ClinicTimezone, err)
	}

	// Cliniko REST client shared by on-demand scoring and analytics runs
	api := cliniko.NewClient(cliniko.Config{
		BaseURL:           config.ClinikoBaseURL,
		APIKey:            config.ClinikoAPIKey,
		UserAgent:         config.ClinikoUserAgent,
		RequestsPerSecond: config.ClinikoRateLimit,
	})

	// Pass the config to SetupRoutes
	handler := routes.SetupRoutes(cache, config, db, api, location)

	// Configure and start the server
	srv := &http.Server{
		Addr:           ":8930",
		Handler:        handler,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
		IdleTimeout:    30 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		log.Println("Starting server on :8930")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listenAndServe(): %v", err)
		}
	}()

	// Graceful shutdown handling
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	// Create a context with a timeout for shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	log.Println("Shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown failed: %+v", err)
	}

	wg.Wait() // Wait for all goroutines to finish before exiting
	log.Println("Server exited gracefully")
}

// loadConfig loads configuration from environment variables.
func loadConfig() (*config.AppConfig, error) {
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return nil, errors.New("missing DB_URL environment variable")
	}

	redisAddress := os.Getenv("REDIS_URL")
	if redisAddress == "" {
		return nil, errors.New("missing REDIS_URL environment variable")
	}

	bearerToken := os.Getenv("BEARER_TOKEN")
	if bearerToken == "" {
		return nil, errors.New("missing BEARER_TOKEN environment variable")
	}

	clinikoAPIKey := os.Getenv("CLINIKO_API_KEY")
	if clinikoAPIKey == "" {
		return nil, errors.New("missing CLINIKO_API_KEY environment variable")
	}

	clinikoBaseURL := os.Getenv("CLINIKO_BASE_URL")
	if clinikoBaseURL == "" {
		clinikoBaseURL = "https://api.au1.cliniko.com/v1"
	}

	clinikoUserAgent := os.Getenv("CLINIKO_USER_AGENT")
	if clinikoUserAgent == "" {
		return nil, errors.New("missing CLINIKO_USER_AGENT environment variable")
	}

	clinikoRateLimit := 1.0
	if v := os.Getenv("CLINIKO_RATE_LIMIT"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.New("invalid CLINIKO_RATE_LIMIT value")
		}
		clinikoRateLimit = parsed
	}

	clinicTimezone := os.Getenv("CLINIC_TIMEZONE")
	if clinicTimezone == "" {
		clinicTimezone = "Australia/Sydney"
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")

	return &config.AppConfig{
		DBURL:            dbURL,
		RedisAddress:     redisAddress,
		BearerToken:      bearerToken,
		ClinikoAPIKey:    clinikoAPIKey,
		ClinikoBaseURL:   clinikoBaseURL,
		ClinikoUserAgent: clinikoUserAgent,
		ClinikoRateLimit: clinikoRateLimit,
		ClinicTimezone:   clinicTimezone,
		AdminEmail:       adminEmail,
	}, nil
}
