package discovery

import (
	"context"
	"strings"

	"github.com/hashicorp/mdns"

	"github.com/strefethen/sonos-dial-go/internal/sonos/soap"
	"github.com/strefethen/sonos-dial-go/internal/sonos/topology"
)

const mdnsService = "_sonos._tcp"

func (s *Scanner) discoverMDNS(ctx context.Context) []Speaker {
	entries := make(chan *mdns.ServiceEntry, 16)

	go func() {
		params := &mdns.QueryParam{
			Service:             mdnsService,
			Domain:              "local",
			Timeout:             s.timeout,
			Entries:             entries,
			DisableIPv6:         true,
			WantUnicastResponse: true,
		}
		if err := s.queryMDNS(params); err != nil {
			s.logger.Debug().Err(err).Msg("mDNS query failed")
		}
		close(entries)
	}()

	var speakers []Speaker
	for entry := range entries {
		if ctx.Err() != nil {
			// Keep draining so the query goroutine can finish.
			continue
		}
		speaker, ok := speakerFromEntry(entry)
		if !ok {
			continue
		}
		speakers = append(speakers, speaker)
	}
	return speakers
}

// speakerFromEntry reads a Sonos mDNS answer. The instance name has the form
// "RINCON_xxx@Room Name"; the TXT record may carry the device location.
func speakerFromEntry(entry *mdns.ServiceEntry) (Speaker, bool) {
	if entry == nil {
		return Speaker{}, false
	}

	// The advertised port is the secure API; control stays on DefaultPort.
	speaker := Speaker{Port: soap.DefaultPort, Source: SourceMDNS}
	if entry.AddrV4 != nil {
		speaker.Host = entry.AddrV4.String()
	}

	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if ok && strings.EqualFold(key, "location") && speaker.Host == "" {
			speaker.Host = topology.HostFromLocation(value)
		}
	}
	if speaker.Host == "" {
		return Speaker{}, false
	}

	instance := entry.Name
	if idx := strings.Index(instance, "."+mdnsService); idx >= 0 {
		instance = instance[:idx]
	}
	instance = strings.ReplaceAll(instance, `\ `, " ")
	if id, name, ok := strings.Cut(instance, "@"); ok {
		speaker.UUID = id
		speaker.Name = name
	} else {
		speaker.Name = instance
	}
	return speaker, true
}
