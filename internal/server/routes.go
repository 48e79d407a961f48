package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/strefethen/sonos-dial-go/internal/api"
	"github.com/strefethen/sonos-dial-go/internal/apperrors"
	"github.com/strefethen/sonos-dial-go/internal/dial"
	"github.com/strefethen/sonos-dial-go/internal/sonos/soap"
	"github.com/strefethen/sonos-dial-go/internal/sonos/topology"
)

func registerInstanceRoutes(router chi.Router, instances InstanceProvider) {
	router.Method(http.MethodGet, "/v1/instances", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if instances == nil {
			return apperrors.NewServiceDisabledError("Dial controller is not running")
		}
		snapshot := instances.Snapshot()
		formatted := make([]map[string]any, 0, len(snapshot))
		for _, status := range snapshot {
			formatted = append(formatted, formatInstance(status))
		}
		return api.WriteList(w, "/v1/instances", formatted, false)
	}))

	router.Method(http.MethodGet, "/v1/instances/{id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if instances == nil {
			return apperrors.NewServiceDisabledError("Dial controller is not running")
		}
		id := chi.URLParam(r, "id")
		status, ok := instances.Status(id)
		if !ok {
			return apperrors.NewAppError(apperrors.ErrorCodeInstanceNotFound, "Instance not found", http.StatusNotFound, map[string]any{
				"id": id,
			}, nil)
		}
		return api.WriteResource(w, http.StatusOK, formatInstance(status))
	}))
}

func registerSpeakerRoutes(router chi.Router, groups GroupProvider, discoverer SpeakerDiscoverer, logger zerolog.Logger) {
	router.Method(http.MethodGet, "/v1/speakers/discover", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if discoverer == nil {
			return apperrors.NewServiceDisabledError("Speaker discovery is disabled")
		}
		speakers, err := discoverer.Discover(r.Context())
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("Speaker discovery failed")
			return apperrors.NewBadGatewayError(apperrors.ErrorCodeDiscoveryFailed, "Speaker discovery failed", map[string]any{
				"reason": err.Error(),
			})
		}
		return api.WriteList(w, "/v1/speakers/discover", speakers, false)
	}))

	router.Method(http.MethodGet, "/v1/speakers/{host}/groups", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if groups == nil {
			return apperrors.NewServiceDisabledError("Group lookup is disabled")
		}
		host := strings.TrimSpace(chi.URLParam(r, "host"))
		if host == "" {
			return apperrors.NewValidationError("host is required", map[string]any{"field": "host"})
		}

		zoneGroups, err := groups.Groups(r.Context(), host)
		if err != nil {
			logger.Debug().Err(err).Str("host", host).Msg("Group lookup failed")
			return sonosError(err, host)
		}

		formatted := make([]map[string]any, 0, len(zoneGroups))
		for _, group := range zoneGroups {
			formatted = append(formatted, formatGroup(group))
		}
		return api.WriteList(w, "/v1/speakers/"+host+"/groups", formatted, false)
	}))
}

// sonosError maps a device failure onto the API error that describes it.
func sonosError(err error, host string) error {
	details := map[string]any{"host": host}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewGatewayTimeoutError("Speaker did not respond in time", details)
	}

	var transportErr *soap.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.StatusCode != 0 {
			details["status_code"] = transportErr.StatusCode
			if transportErr.FaultCode != "" {
				details["fault_code"] = transportErr.FaultCode
			}
			return apperrors.NewBadGatewayError(apperrors.ErrorCodeSonosRejected, "Speaker rejected the request", details)
		}
		return apperrors.NewBadGatewayError(apperrors.ErrorCodeSonosUnreachable, "Speaker is unreachable", details)
	}

	var protocolErr *soap.ProtocolError
	if errors.As(err, &protocolErr) {
		return apperrors.NewBadGatewayError(apperrors.ErrorCodeSonosProtocol, "Speaker sent an unexpected response", details)
	}

	return apperrors.NewBadGatewayError(apperrors.ErrorCodeSonosUnreachable, err.Error(), details)
}

func formatInstance(status dial.InstanceStatus) map[string]any {
	return map[string]any{
		"object":      "instance",
		"id":          status.ID,
		"state":       status.State,
		"speaker":     status.Settings.SpeakerHost,
		"volume_step": status.Settings.VolumeStep,
		"mode":        status.Mode,
		"volume":      status.Volume,
		"muted":       status.Muted,
		"rotating":    status.Rotating,
		"connected":   status.Connected,
		"polling":     status.Polling,
		"pending_set": status.PendingSet,
	}
}

func formatGroup(group topology.ZoneGroup) map[string]any {
	members := group.MemberHosts
	if members == nil {
		members = []string{}
	}
	return map[string]any{
		"object":           "zone_group",
		"id":               group.ID,
		"name":             group.Name,
		"coordinator_uuid": group.CoordinatorUUID,
		"coordinator_host": group.CoordinatorHost,
		"members":          members,
	}
}
