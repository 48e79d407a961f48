package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/strefethen/sonos-dial-go/internal/api"
	"github.com/strefethen/sonos-dial-go/internal/auth"
	"github.com/strefethen/sonos-dial-go/internal/commandlog"
)

// Options carries the components the status API reports on. Nil components
// leave their routes answering SERVICE_DISABLED.
type Options struct {
	Instances  InstanceProvider
	Groups     GroupProvider
	Discovery  SpeakerDiscoverer
	CommandLog *commandlog.Service
	// Secret enables bearer-token auth when non-empty.
	Secret string
	Logger zerolog.Logger
}

// NewHandler builds the status API router.
func NewHandler(options Options) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(options.Secret))

	registerHealthRoutes(router, options.CommandLog)
	registerInstanceRoutes(router, options.Instances)
	registerSpeakerRoutes(router, options.Groups, options.Discovery, options.Logger)
	if options.CommandLog != nil {
		commandlog.RegisterRoutes(router, options.CommandLog)
	}

	return router
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func registerHealthRoutes(router chi.Router, commandLog *commandlog.Service) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		status := "healthy"
		commandLogStatus := "disabled"
		if commandLog != nil {
			commandLogStatus = "ok"
			if !commandLog.IsHealthy() {
				commandLogStatus = "failing"
				status = "degraded"
			}
		}
		response := map[string]any{
			"status":      status,
			"service":     "sonos-dial",
			"command_log": commandLogStatus,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
}
