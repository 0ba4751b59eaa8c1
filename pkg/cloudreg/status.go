package cloudreg

import "strings"

// Status is the short classification token returned by a send operation.
// Tokens produced by the cloud service ("online", "offline", "timeout", ...)
// are treated as opaque pass-through data; tokens synthesised locally carry
// the "E#" prefix so callers can tell the two apart.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusTimeout Status = "timeout"

	// StatusNoRegistry is returned when no registry has been initialised
	// (no login yet, or already closed).
	StatusNoRegistry Status = "E#NoRegistry"
)

const localErrorPrefix = "E#"

// StatusDeviceNotFound builds the token for a device id that is not in the
// last discovered list.  The requested id is embedded verbatim.
func StatusDeviceNotFound(deviceID string) Status {
	return Status("E#DeviceNotFound:" + deviceID)
}

// IsLocalError reports whether the token was synthesised by this module
// rather than supplied by the cloud service.
func (s Status) IsLocalError() bool {
	return strings.HasPrefix(string(s), localErrorPrefix)
}
