package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/strefethen/sonos-dial-go/internal/sonos/xmldoc"
)

// httpClient is a shared client with reasonable timeouts to prevent hanging on unreachable devices.
var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 3 * time.Second}).DialContext,
		IdleConnTimeout: 30 * time.Second,
	},
}

// describeRoom fetches the device description at location and returns the
// player's room name.
func describeRoom(ctx context.Context, location string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("device description: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return roomNameFromDescription(body)
}

// roomNameFromDescription prefers roomName and falls back to the part of
// friendlyName before " - ".
func roomNameFromDescription(body []byte) (string, error) {
	doc, err := xmldoc.Parse(body)
	if err != nil {
		return "", err
	}

	device, ok := doc.Find("device")
	if !ok {
		return "", nil
	}
	device = device.Items()[0]
	if room := device.Text("roomName"); room != "" {
		return room, nil
	}
	friendly := device.Text("friendlyName")
	if name, _, ok := strings.Cut(friendly, " - "); ok {
		return strings.TrimSpace(name), nil
	}
	return friendly, nil
}
