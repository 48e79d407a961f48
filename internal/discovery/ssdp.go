package discovery

import (
	"bufio"
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/strefethen/sonos-dial-go/internal/sonos/soap"
	"github.com/strefethen/sonos-dial-go/internal/sonos/topology"
)

const (
	ssdpAddr   = "239.255.255.250:1900"
	ssdpTarget = "urn:schemas-upnp-org:device:ZonePlayer:1"
)

// Response is one SSDP answer.
type Response struct {
	Location string
	USN      string
	Headers  map[string]string
}

func (s *Scanner) discoverSSDP(ctx context.Context) ([]Speaker, error) {
	responses, err := s.searchSSDP(ctx, s.timeout)
	if err != nil {
		return nil, err
	}

	speakers := make([]Speaker, 0, len(responses))
	for _, resp := range responses {
		speaker, ok := speakerFromResponse(resp)
		if !ok {
			continue
		}
		describeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		name, err := s.describe(describeCtx, resp.Location)
		cancel()
		if err != nil {
			s.logger.Debug().Err(err).Str("host", speaker.Host).Msg("Device description unavailable")
		}
		speaker.Name = name
		speakers = append(speakers, speaker)
	}
	return speakers, nil
}

// searchSSDP sends one M-SEARCH and collects answers until timeout.
func searchSSDP(ctx context.Context, timeout time.Duration) ([]Response, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, err
	}
	if err := sendSearch(conn, addr); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	responses := make(map[string]Response)
	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return mapToSlice(responses), err
		}

		resp := parseResponse(string(buf[:n]))
		if resp.Location == "" || resp.USN == "" {
			continue
		}
		// Deduplicate by USN
		if _, exists := responses[resp.USN]; !exists {
			responses[resp.USN] = resp
		}
	}

	return mapToSlice(responses), nil
}

func sendSearch(conn net.PacketConn, addr *net.UDPAddr) error {
	msg := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + ssdpAddr,
		"MAN: \"ssdp:discover\"",
		"MX: 2",
		"ST: " + ssdpTarget,
		"",
		"",
	}, "\r\n")

	_, err := conn.WriteTo([]byte(msg), addr)
	return err
}

func parseResponse(raw string) Response {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	headers := make(map[string]string)

	// status line
	scanner.Scan()

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	return Response{
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		Headers:  headers,
	}
}

func speakerFromResponse(resp Response) (Speaker, bool) {
	host := topology.HostFromLocation(resp.Location)
	if host == "" {
		return Speaker{}, false
	}

	port := soap.DefaultPort
	if parsed, err := url.Parse(resp.Location); err == nil && parsed.Port() != "" {
		if value, err := strconv.Atoi(parsed.Port()); err == nil {
			port = value
		}
	}

	return Speaker{
		UUID:   uuidFromUSN(resp.USN),
		Host:   host,
		Port:   port,
		Source: SourceSSDP,
	}, true
}

// uuidFromUSN extracts RINCON_xxx from "uuid:RINCON_xxx::urn:...".
func uuidFromUSN(usn string) string {
	id := strings.TrimPrefix(usn, "uuid:")
	if idx := strings.Index(id, "::"); idx >= 0 {
		id = id[:idx]
	}
	return id
}

func mapToSlice(responses map[string]Response) []Response {
	result := make([]Response, 0, len(responses))
	for _, r := range responses {
		result = append(result, r)
	}
	return result
}
