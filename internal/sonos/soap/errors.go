package soap

import "fmt"

// TransportError means the request never produced a usable HTTP response:
// the player was unreachable, timed out, or answered with a non-2xx status.
type TransportError struct {
	Action     string
	Host       string
	StatusCode int
	Body       string
	// FaultCode is the UPnP errorCode from a SOAP fault body, if any.
	FaultCode string
	Err       error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.FaultCode != "":
		return fmt.Sprintf("sonos action %s on %s failed: http %d (upnp error %s)", e.Action, e.Host, e.StatusCode, e.FaultCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("sonos action %s on %s failed: http %d", e.Action, e.Host, e.StatusCode)
	default:
		return fmt.Sprintf("sonos action %s on %s unreachable: %v", e.Action, e.Host, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError means the player answered 2xx but the body could not be parsed
// or lacked the expected response element or field.
type ProtocolError struct {
	Action string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sonos action %s: %s: %v", e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("sonos action %s: %s", e.Action, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
