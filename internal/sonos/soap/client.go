package soap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/strefethen/sonos-dial-go/internal/sonos/xmldoc"
)

// ActionRecord describes one executed action for observers.
type ActionRecord struct {
	Host     string
	Service  Service
	Action   string
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Observer is notified after every action, successful or not.
type Observer interface {
	ObserveAction(record ActionRecord)
}

// Client handles SOAP requests to Sonos devices.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	observers  []Observer
}

// NewClient creates a SOAP client with the given timeout.
// Uses connection pooling for better performance when making multiple requests.
func NewClient(timeout time.Duration, observers ...Observer) *Client {
	return &Client{
		timeout:   timeout,
		observers: observers,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// ExecuteAction posts a SOAP envelope to the player and returns the parsed
// {action}Response element.
func (c *Client) ExecuteAction(
	ctx context.Context,
	endpoint Endpoint,
	service Service,
	action string,
	args []Arg,
) (*xmldoc.Node, error) {
	started := time.Now()
	response, err := c.execute(ctx, endpoint, service, action, args)
	record := ActionRecord{
		Host:     endpoint.Host,
		Service:  service,
		Action:   action,
		Started:  started,
		Duration: time.Since(started),
		Err:      err,
	}
	for _, observer := range c.observers {
		observer.ObserveAction(record)
	}
	return response, err
}

func (c *Client) execute(ctx context.Context, endpoint Endpoint, service Service, action string, args []Arg) (*xmldoc.Node, error) {
	controlPath := service.ControlPath()
	if controlPath == "" {
		return nil, fmt.Errorf("unknown service: %s", service)
	}

	body := buildEnvelope(service.ServiceType(), action, args)
	url := "http://" + endpoint.String() + controlPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Action: action, Host: endpoint.Host, Err: err}
	}

	req.Header.Set("Content-Type", "text/xml; charset=\"utf-8\"")
	req.Header.Set("SOAPAction", fmt.Sprintf("\"%s#%s\"", service.ServiceType(), action))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Action: action, Host: endpoint.Host, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Action: action, Host: endpoint.Host, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Action:     action,
			Host:       endpoint.Host,
			StatusCode: resp.StatusCode,
			Body:       string(payload),
			FaultCode:  parseFaultCode(payload),
		}
	}

	doc, err := xmldoc.Parse(payload)
	if err != nil {
		return nil, &ProtocolError{Action: action, Reason: "unparsable response body", Err: err}
	}
	response, ok := doc.Find(action + "Response")
	if !ok {
		return nil, &ProtocolError{Action: action, Reason: "missing " + action + "Response element"}
	}
	if response.Kind == xmldoc.KindScalar {
		// <u:SetVolumeResponse/> carries no fields.
		response = xmldoc.NewMap()
	}
	return response, nil
}

func buildEnvelope(serviceType, action string, args []Arg) []byte {
	var buf strings.Builder
	buf.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>")
	buf.WriteString("<s:Envelope xmlns:s=\"http://schemas.xmlsoap.org/soap/envelope/\" s:encodingStyle=\"http://schemas.xmlsoap.org/soap/encoding/\">")
	buf.WriteString("<s:Body>")
	buf.WriteString("<u:")
	buf.WriteString(action)
	buf.WriteString(" xmlns:u=\"")
	buf.WriteString(serviceType)
	buf.WriteString("\">")

	for _, arg := range args {
		buf.WriteString("<")
		buf.WriteString(arg.Name)
		buf.WriteString(">")
		buf.WriteString(escapeXML(arg.Value))
		buf.WriteString("</")
		buf.WriteString(arg.Name)
		buf.WriteString(">")
	}

	buf.WriteString("</u:")
	buf.WriteString(action)
	buf.WriteString(">")
	buf.WriteString("</s:Body>")
	buf.WriteString("</s:Envelope>")

	return []byte(buf.String())
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

func escapeXML(input string) string {
	return xmlEscaper.Replace(input)
}

func parseFaultCode(payload []byte) string {
	doc, err := xmldoc.Parse(payload)
	if err != nil {
		return ""
	}
	code, ok := doc.Find("errorCode")
	if !ok || code.Kind != xmldoc.KindScalar {
		return ""
	}
	return strings.TrimSpace(code.Scalar)
}
