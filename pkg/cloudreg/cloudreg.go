package cloudreg

import "context"

// Session is the reusable network context that a Registry is bound to for
// its lifetime.  Close must be safe to call once; Closed reports whether the
// session has already been released.
type Session interface {
	Close() error
	Closed() bool
}

// Registry is the cloud registry collaborator: it owns authentication, the
// persistent command channel and the wire protocol.  Implementations handle
// their own retry and reconnect behaviour; callers never do.
type Registry interface {
	// Login authenticates with the cloud service.  regionHint selects the
	// account region (the original service keys this off a telephone
	// country code such as "+1").
	Login(ctx context.Context, identity, secret, regionHint string) error

	// Start begins the background task that maintains the persistent
	// command channel.  It does not block waiting for the channel to
	// establish.
	Start()

	// Stop halts the background channel task.  It must be safe to call
	// even if the channel never fully connected.
	Stop(ctx context.Context) error

	// Homes returns the home groupings visible to the authenticated
	// account, keyed by home identifier.
	Homes(ctx context.Context) (map[string]Home, error)

	// Devices returns the device records belonging to the given homes, in
	// the order the cloud service enumerates them.
	Devices(ctx context.Context, homeIDs []string) ([]Device, error)

	// Send dispatches a command to a device over the persistent channel
	// and returns the service's short status token ("online", "offline",
	// "timeout", ...).
	Send(ctx context.Context, device Device, cmd Command) (Status, error)
}

// ChannelReadier is optionally implemented by registries whose persistent
// channel can report when it has established.  Callers that find this
// interface can wait on Ready instead of sleeping a fixed grace period.
type ChannelReadier interface {
	Ready() <-chan struct{}
}
