package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/dpup/prefab"
	"github.com/dpup/prefab/logging"
	"github.com/joho/godotenv"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/cache"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/clients/elevation"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/clients/google"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/config"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/services"
)

func main() {
	// API keys usually live in .env during development
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	appConfig := loadConfig()
	if appConfig.Google.APIKey == "" {
		log.Fatalf("Google Maps API key is required (google.api_key or %s)", config.APIKeyEnv)
	}

	ctx, cancel := context.WithCancel(logging.With(context.Background(), logging.NewProdLogger()))
	defer cancel()

	cacheInstance := cache.NewCache()
	cacheInstance.StartPeriodicCleanup(ctx, time.Minute)

	httpClient := &http.Client{Timeout: appConfig.Google.Timeout}
	googleClient := google.NewClientWithHTTPDoer(appConfig.Google.APIKey, appConfig.Google.BaseURL, httpClient).
		WithRegion(appConfig.Google.Region).
		WithLanguage(appConfig.Google.Language)
	elevationClient := elevation.NewClientWithHTTPDoer(appConfig.Google.APIKey, appConfig.Google.BaseURL, httpClient)

	manager := services.NewSessionManager(ctx, appConfig, services.Providers{
		Routes:     googleClient,
		Geocoder:   googleClient,
		Elevation:  elevationClient,
		Candidates: cache.NewCandidateStore(cacheInstance, appConfig.Google.CandidateTTL),
	})
	defer manager.CloseAll()

	reaper := services.NewSessionReaper(manager, appConfig.Server.ReapInterval, appConfig.Server.SessionIdleTimeout)
	reaper.Start(ctx)
	defer reaper.Stop()

	handler := services.NewNavigationAPI(manager, appConfig.Server.CorsOrigins).Routes()

	log.Printf("Walking navigation server starting")
	log.Printf("Routing language: %s, fallback origin: %.6f,%.6f", appConfig.Navigation.Language,
		appConfig.Navigation.FallbackOrigin.Latitude, appConfig.Navigation.FallbackOrigin.Longitude)

	// Server configuration (port, etc.) is loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithHTTPHandlerFunc("/v1/", handler.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/ws/", handler.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
	)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig starts from the defaults and overlays the walknav section of prefab's config
// (prefab.yaml plus PF__ environment variables)
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	if err := prefab.Config.Unmarshal("walknav", appConfig); err != nil {
		log.Fatalf("Failed to unmarshal walknav section: %v", err)
	}
	appConfig.ApplyEnv()
	appConfig.Validate()

	return appConfig
}

// homepageHandler serves a short plain-text description of the API at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	text := `Walking navigation for visually impaired pedestrians in Hong Kong

Sessions:
  POST   /v1/sessions                      create a session
  GET    /v1/sessions/{id}                 navigation state
  POST   /v1/sessions/{id}/start           {"destination": "HKU" | "22.28,114.13"}
  POST   /v1/sessions/{id}/recalculate     re-route from the current position
  POST   /v1/sessions/{id}/alternative     switch to the next candidate route
  POST   /v1/sessions/{id}/next            advance one step
  POST   /v1/sessions/{id}/previous        go back one step
  POST   /v1/sessions/{id}/end             end navigation
  POST   /v1/sessions/{id}/stay            cancel the automatic end after arrival
  GET    /v1/sessions/{id}/position        fused position and dead reckoning state
  GET    /v1/sessions/{id}/route.kml       active route as KML
  DELETE /v1/sessions/{id}                 discard the session

Device stream:
  GET    /ws/sessions/{id}                 websocket; send location/accelerometer/magnetometer,
                                           receive state/position/notification
`

	if _, err := fmt.Fprint(w, text); err != nil {
		slog.Error("Failed to write homepage", "error", err)
	}
}
