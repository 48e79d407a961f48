package soap

import (
	"net"
	"strconv"
)

// Service identifies a Sonos UPnP service.
type Service string

const (
	ServiceAVTransport       Service = "AVTransport"
	ServiceRenderingControl  Service = "RenderingControl"
	ServiceContentDirectory  Service = "ContentDirectory"
	ServiceZoneGroupTopology Service = "ZoneGroupTopology"
)

// DefaultPort is the port Sonos players serve UPnP control on.
const DefaultPort = 1400

var servicePaths = map[Service]string{
	ServiceAVTransport:       "/MediaRenderer/AVTransport",
	ServiceRenderingControl:  "/MediaRenderer/RenderingControl",
	ServiceContentDirectory:  "/MediaServer/ContentDirectory",
	ServiceZoneGroupTopology: "/ZoneGroupTopology",
}

// ServiceType returns the UPnP service type URN used in SOAPAction headers.
func (s Service) ServiceType() string {
	return "urn:schemas-upnp-org:service:" + string(s) + ":1"
}

// ControlPath returns the control URL path for the service, or "" if unknown.
func (s Service) ControlPath() string {
	path, ok := servicePaths[s]
	if !ok {
		return ""
	}
	return path + "/Control"
}

// Endpoint addresses one player.
type Endpoint struct {
	Host string
	Port int
}

// String returns host:port.
func (e Endpoint) String() string {
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// Arg is one named action argument. Arguments are sent in slice order.
type Arg struct {
	Name  string
	Value string
}
