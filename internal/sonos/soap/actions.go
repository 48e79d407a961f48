package soap

import (
	"context"
	"strconv"
	"strings"

	"github.com/strefethen/sonos-dial-go/internal/sonos/xmldoc"
)

var masterChannel = []Arg{
	{Name: "InstanceID", Value: "0"},
	{Name: "Channel", Value: "Master"},
}

// RenderingControl Actions
func (c *Client) GetVolume(ctx context.Context, endpoint Endpoint) (int, error) {
	response, err := c.ExecuteAction(ctx, endpoint, ServiceRenderingControl, "GetVolume", masterChannel)
	if err != nil {
		return 0, err
	}
	raw, err := requireField(response, "GetVolume", "CurrentVolume")
	if err != nil {
		return 0, err
	}
	volume, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ProtocolError{Action: "GetVolume", Reason: "CurrentVolume is not a number", Err: err}
	}
	return volume, nil
}

func (c *Client) SetVolume(ctx context.Context, endpoint Endpoint, level int) error {
	args := append(append([]Arg{}, masterChannel...), Arg{Name: "DesiredVolume", Value: strconv.Itoa(level)})
	_, err := c.ExecuteAction(ctx, endpoint, ServiceRenderingControl, "SetVolume", args)
	return err
}

func (c *Client) GetMute(ctx context.Context, endpoint Endpoint) (bool, error) {
	response, err := c.ExecuteAction(ctx, endpoint, ServiceRenderingControl, "GetMute", masterChannel)
	if err != nil {
		return false, err
	}
	raw, err := requireField(response, "GetMute", "CurrentMute")
	if err != nil {
		return false, err
	}
	return raw == "1" || strings.EqualFold(raw, "true"), nil
}

func (c *Client) SetMute(ctx context.Context, endpoint Endpoint, mute bool) error {
	desired := "0"
	if mute {
		desired = "1"
	}
	args := append(append([]Arg{}, masterChannel...), Arg{Name: "DesiredMute", Value: desired})
	_, err := c.ExecuteAction(ctx, endpoint, ServiceRenderingControl, "SetMute", args)
	return err
}

// ZoneGroupTopology Actions

// GetZoneGroupState returns the topology document. Players send it as escaped
// XML text inside the ZoneGroupState field; it is parsed into its own tree.
func (c *Client) GetZoneGroupState(ctx context.Context, endpoint Endpoint) (*xmldoc.Node, error) {
	response, err := c.ExecuteAction(ctx, endpoint, ServiceZoneGroupTopology, "GetZoneGroupState", nil)
	if err != nil {
		return nil, err
	}
	field, ok := response.Get("ZoneGroupState")
	if !ok {
		return nil, &ProtocolError{Action: "GetZoneGroupState", Reason: "missing ZoneGroupState"}
	}
	if field.Kind != xmldoc.KindScalar {
		return field, nil
	}
	doc, err := xmldoc.Parse([]byte(field.Scalar))
	if err != nil {
		return nil, &ProtocolError{Action: "GetZoneGroupState", Reason: "unparsable topology", Err: err}
	}
	return doc, nil
}

func requireField(response *xmldoc.Node, action, field string) (string, error) {
	if _, ok := response.Get(field); !ok {
		return "", &ProtocolError{Action: action, Reason: "missing " + field}
	}
	return response.Text(field), nil
}
