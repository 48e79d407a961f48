// Package discovery finds Sonos players on the local network so a dial can be
// pointed at one. mDNS is tried first; SSDP is the fallback for networks that
// filter multicast DNS.
package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds each discovery pass.
const DefaultTimeout = 3 * time.Second

const (
	SourceMDNS = "mdns"
	SourceSSDP = "ssdp"
)

// Speaker is one discovered player.
type Speaker struct {
	UUID   string `json:"uuid,omitempty"`
	Name   string `json:"name,omitempty"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Source string `json:"source"`
}

// Scanner runs discovery passes.
type Scanner struct {
	timeout time.Duration
	logger  zerolog.Logger

	queryMDNS  func(params *mdns.QueryParam) error
	searchSSDP func(ctx context.Context, timeout time.Duration) ([]Response, error)
	describe   func(ctx context.Context, location string) (string, error)
}

// NewScanner creates a scanner whose passes each last at most timeout.
func NewScanner(timeout time.Duration, logger zerolog.Logger) *Scanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scanner{
		timeout:    timeout,
		logger:     logger.With().Str("component", "discovery").Logger(),
		queryMDNS:  mdns.Query,
		searchSSDP: searchSSDP,
		describe:   describeRoom,
	}
}

// Discover returns every player found, one per host, ordered by name then
// host. SSDP runs only when mDNS finds nothing.
func (s *Scanner) Discover(ctx context.Context) ([]Speaker, error) {
	speakers := s.discoverMDNS(ctx)
	s.logger.Debug().Int("count", len(speakers)).Msg("mDNS discovery finished")

	if len(speakers) == 0 && ctx.Err() == nil {
		found, err := s.discoverSSDP(ctx)
		if err != nil {
			return nil, err
		}
		speakers = found
		s.logger.Debug().Int("count", len(speakers)).Msg("SSDP discovery finished")
	}

	return dedupe(speakers), ctx.Err()
}

func dedupe(speakers []Speaker) []Speaker {
	byHost := make(map[string]Speaker, len(speakers))
	for _, speaker := range speakers {
		existing, ok := byHost[speaker.Host]
		if !ok || (existing.Name == "" && speaker.Name != "") {
			byHost[speaker.Host] = speaker
		}
	}

	result := make([]Speaker, 0, len(byHost))
	for _, speaker := range byHost {
		result = append(result, speaker)
	}
	sort.Slice(result, func(a, b int) bool {
		nameA, nameB := strings.ToLower(result[a].Name), strings.ToLower(result[b].Name)
		if nameA != nameB {
			return nameA < nameB
		}
		return result[a].Host < result[b].Host
	})
	return result
}
