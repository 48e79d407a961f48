package commandlog

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/sonos-dial-go/internal/api"
	"github.com/strefethen/sonos-dial-go/internal/apperrors"
)

// RegisterRoutes wires command log routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/commands", api.Handler(queryCommands(service)))
	router.Method(http.MethodGet, "/v1/commands/{entry_id}", api.Handler(getCommand(service)))
}

// queryCommands lists recent commands, newest first.
// GET /v1/commands?limit=&host=&failed=
func queryCommands(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		entries, err := service.Query(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query command log")
		}

		formatted := make([]map[string]any, 0, len(entries))
		for i := range entries {
			formatted = append(formatted, formatEntry(&entries[i]))
		}
		return api.WriteList(w, "/v1/commands", formatted, len(entries) == filters.Limit)
	}
}

// getCommand returns one command.
// GET /v1/commands/{entry_id}
func getCommand(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		entryID := chi.URLParam(r, "entry_id")

		entry, err := service.Get(entryID)
		if err != nil {
			var notFoundErr *EntryNotFoundError
			if errors.As(err, &notFoundErr) {
				return apperrors.NewAppError(apperrors.ErrorCodeCommandNotFound, "Command not found", http.StatusNotFound, map[string]any{
					"entry_id": entryID,
				}, nil)
			}
			return apperrors.NewInternalError("Failed to get command")
		}

		return api.WriteResource(w, http.StatusOK, formatEntry(entry))
	}
}

func parseQueryFilters(r *http.Request) (QueryFilters, error) {
	filters := QueryFilters{Limit: DefaultQueryLimit}
	query := r.URL.Query()

	if host := query.Get("host"); host != "" {
		filters.Host = &host
	}

	if failed := query.Get("failed"); failed != "" {
		parsed, err := strconv.ParseBool(failed)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid failed, must be true or false", map[string]any{
				"failed": failed,
			})
		}
		filters.FailedOnly = parsed
	}

	// 1-1000, default 100
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{
				"limit": limitStr,
			})
		}
		filters.Limit = limit
	}

	return filters, nil
}

func formatEntry(entry *Entry) map[string]any {
	result := map[string]any{
		"object":      "command",
		"id":          entry.EntryID,
		"started_at":  entry.StartedAt.UTC().Format(time.RFC3339Nano),
		"host":        entry.Host,
		"service":     entry.Service,
		"action":      entry.Action,
		"duration_ms": entry.DurationMs,
		"succeeded":   entry.Succeeded,
	}
	if entry.Error != nil {
		result["error"] = *entry.Error
	}
	if entry.StatusCode != nil {
		result["status_code"] = *entry.StatusCode
	}
	if entry.FaultCode != nil {
		result["fault_code"] = *entry.FaultCode
	}
	return result
}
