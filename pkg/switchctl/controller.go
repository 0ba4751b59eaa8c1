package switchctl

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/ewelink-switches/internal/pkg/logging"
	"github.com/jake-scott/ewelink-switches/pkg/cloudreg"
)

const (
	// DefaultStartupGrace is how long Login allows the persistent channel
	// to establish before returning.
	DefaultStartupGrace = time.Second * 2

	// DefaultRegionHint is used when the caller supplies an empty region.
	DefaultRegionHint = "+1"
)

// ErrAlreadyInitialized is returned by Login when a session/registry pair
// already exists.  Call Close first.
var ErrAlreadyInitialized = errors.New("controller already initialised, Close it before logging in again")

// Controller is a convenience façade over a cloud registry driver.  It logs
// in, starts the registry's persistent command channel, discovers the
// switch-capable devices of the account and issues on/off commands by
// device id.
//
// Lifecycle is uninitialised → Login → (DiscoverSwitches / TurnOn /
// TurnOff)* → Close; Close returns the controller to uninitialised so a
// fresh Login is allowed.  Calls on one controller must be sequenced by the
// caller; there is no internal serialisation.
type Controller struct {
	driver cloudreg.Driver
	logger logrus.FieldLogger
	grace  time.Duration

	session  cloudreg.Session
	registry cloudreg.Registry
	devices  []cloudreg.Device
}

// New returns a controller over the given registry driver.
func New(driver cloudreg.Driver) *Controller {
	return &Controller{
		driver: driver,
		logger: logging.Logger(nil),
		grace:  DefaultStartupGrace,
	}
}

// WithLogger replaces the diagnostic logger.  Useful for tests that want to
// capture or silence output.
func (c *Controller) WithLogger(logger logrus.FieldLogger) *Controller {
	nc := *c
	nc.logger = logger
	return &nc
}

// WithStartupGrace replaces the channel-establishment grace period used by
// Login.  Zero disables the wait entirely.
func (c *Controller) WithStartupGrace(d time.Duration) *Controller {
	nc := *c
	nc.grace = d
	return &nc
}

// Login acquires a session, constructs a registry bound to it,
// authenticates and starts the registry's background channel task.  On
// successful return the registry is authenticated and its channel task is
// running; there is no guarantee the channel has actually connected yet, so
// early sends may still see timeout-class statuses.
//
// Authentication and session failures from the collaborator are returned
// unmodified.  A second Login without an intervening Close fails with
// ErrAlreadyInitialized rather than leaking the first session.
func (c *Controller) Login(ctx context.Context, identity, secret, regionHint string) error {
	if c.registry != nil || c.session != nil {
		return ErrAlreadyInitialized
	}

	if regionHint == "" {
		regionHint = DefaultRegionHint
	}

	c.logger.Debug("creating registry session")
	session, err := c.driver.NewSession()
	if err != nil {
		return err
	}

	registry := c.driver.NewRegistry(session)

	c.logger.Debug("logging in to the cloud registry")
	if err := registry.Login(ctx, identity, secret, regionHint); err != nil {
		if cerr := session.Close(); cerr != nil {
			c.logger.WithError(cerr).Warn("closing session after failed login")
		}
		return err
	}

	c.logger.Debug("starting the persistent command channel")
	registry.Start()

	c.session = session
	c.registry = registry

	if err := c.waitForChannel(ctx, registry); err != nil {
		// cancelled mid-grace; unwind so the caller is not left holding a
		// half-initialised controller
		if cerr := c.Close(context.Background()); cerr != nil {
			c.logger.WithError(cerr).Warn("cleaning up after cancelled login")
		}
		return err
	}

	return nil
}

// waitForChannel gives the freshly started channel task a chance to
// establish.  Registries that expose a readiness signal are waited on up to
// the grace period; the rest just get the grace period as a head start.
func (c *Controller) waitForChannel(ctx context.Context, registry cloudreg.Registry) error {
	if c.grace <= 0 {
		return nil
	}

	timer := time.NewTimer(c.grace)
	defer timer.Stop()

	r, ok := registry.(cloudreg.ChannelReadier)
	if !ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.Ready():
		c.logger.Debug("persistent command channel is ready")
		return nil
	case <-timer.C:
		c.logger.Warnf("command channel not ready after %s, continuing; early sends may time out", c.grace)
		return nil
	}
}

// DiscoverSwitches fetches the homes visible to the account, enumerates
// their devices and keeps only the switch-capable records (a "switch" or
// "switches" parameter).  The stored device list is replaced wholesale, in
// the order the registry enumerated the devices, without deduplication.
//
// Without a registry it logs the condition and returns an empty list with
// no error.  Enumeration failures from the collaborator are returned
// unmodified.
func (c *Controller) DiscoverSwitches(ctx context.Context) ([]cloudreg.Device, error) {
	if c.registry == nil {
		c.logger.Error("cannot discover devices; registry not initialised")
		return nil, nil
	}

	c.logger.Debug("fetching homes")
	homes, err := c.registry.Homes(ctx)
	if err != nil {
		return nil, err
	}

	homeIDs := make([]string, 0, len(homes))
	for id := range homes {
		homeIDs = append(homeIDs, id)
	}

	c.logger.Debugf("fetching devices for %d home(s)", len(homeIDs))
	all, err := c.registry.Devices(ctx, homeIDs)
	if err != nil {
		return nil, err
	}

	switches := make([]cloudreg.Device, 0, len(all))
	for _, dev := range all {
		if err := dev.Validate(); err != nil {
			return nil, errors.Wrap(err, "validating discovered device")
		}
		if dev.IsSwitch() {
			switches = append(switches, dev)
		}
	}

	c.devices = switches
	c.logger.Debugf("discovered %d switch device(s)", len(switches))

	return switches, nil
}

// Switches returns a copy of the device list built by the last
// DiscoverSwitches call.
func (c *Controller) Switches() []cloudreg.Device {
	devices := make([]cloudreg.Device, len(c.devices))
	copy(devices, c.devices)
	return devices
}

// TurnOn turns on the discovered device with the given id and returns the
// registry's status token.  Local failures (no registry, unknown id) are
// reported as E#-prefixed tokens without touching the registry.
func (c *Controller) TurnOn(ctx context.Context, deviceID string) (cloudreg.Status, error) {
	return c.setSwitch(ctx, deviceID, cloudreg.SwitchOn())
}

// TurnOff turns off the discovered device with the given id and returns the
// registry's status token.
func (c *Controller) TurnOff(ctx context.Context, deviceID string) (cloudreg.Status, error) {
	return c.setSwitch(ctx, deviceID, cloudreg.SwitchOff())
}

func (c *Controller) setSwitch(ctx context.Context, deviceID string, cmd cloudreg.Command) (cloudreg.Status, error) {
	if c.registry == nil {
		return cloudreg.StatusNoRegistry, nil
	}

	device, ok := c.findDevice(deviceID)
	if !ok {
		return cloudreg.StatusDeviceNotFound(deviceID), nil
	}

	c.logger.Debugf("sending switch=%s to %q (deviceid=%s)", cmd.Switch, device.Name, device.ID)
	return c.registry.Send(ctx, device, cmd)
}

// findDevice scans the current device list for an exact deviceid match.
// Linear is fine; accounts hold tens of devices, not thousands.
func (c *Controller) findDevice(deviceID string) (cloudreg.Device, bool) {
	for _, d := range c.devices {
		if d.ID == deviceID {
			return d, true
		}
	}

	return cloudreg.Device{}, false
}

// Close stops the registry's background channel task and closes the session
// if it is still open, then clears both handles so a fresh Login is
// permitted.  Without a registry it is a no-op.
func (c *Controller) Close(ctx context.Context) error {
	if c.registry == nil {
		return nil
	}

	c.logger.Debug("stopping the persistent command channel")
	err := c.registry.Stop(ctx)

	if c.session != nil && !c.session.Closed() {
		c.logger.Debug("closing registry session")
		if cerr := c.session.Close(); err == nil {
			err = cerr
		}
	}

	c.registry = nil
	c.session = nil
	c.devices = nil

	return err
}
