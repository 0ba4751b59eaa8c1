// Package simreg provides an in-memory registry driver for development and
// integration testing.  It honours the full cloudreg contract, including the
// channel readiness signal, against a JSON fixture of homes and devices.
//
// Real cloud drivers live with the external SDKs; this one exists so the
// façade and its callers can be exercised without an account.
package simreg

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/ewelink-switches/internal/pkg/logging"
	"github.com/jake-scott/ewelink-switches/pkg/cloudreg"
)

// DriverName is the name the simulator registers itself under.
const DriverName = "sim"

func init() {
	cloudreg.Register(DriverName, func(source string) (cloudreg.Driver, error) {
		if source == "" {
			return nil, errors.New("sim driver needs a fixture file as its source")
		}
		return &Driver{fixturePath: source}, nil
	})
}

// Driver builds simulated session/registry pairs from one fixture file.
type Driver struct {
	fixturePath string
}

// NewDriver returns a simulator driver over the given fixture file.
func NewDriver(fixturePath string) *Driver {
	return &Driver{fixturePath: fixturePath}
}

func (d *Driver) NewSession() (cloudreg.Session, error) {
	return &session{}, nil
}

func (d *Driver) NewRegistry(s cloudreg.Session) cloudreg.Registry {
	return &Registry{
		session:     s,
		fixturePath: d.fixturePath,
		logger:      logging.Logger(nil),
		ready:       make(chan struct{}),
	}
}

type session struct {
	mu     sync.Mutex
	closed bool
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Registry simulates the cloud registry collaborator.  Device state is held
// in memory; Send flips switch parameters in place and reports the status
// vocabulary of the real service.
type Registry struct {
	session     cloudreg.Session
	fixturePath string
	logger      logrus.FieldLogger

	mu      sync.Mutex
	authed  bool
	started bool
	ready   chan struct{}
	fixture *fixture
}

var _ cloudreg.ChannelReadier = (*Registry)(nil)

// WithLogger replaces the diagnostic logger.
func (r *Registry) WithLogger(logger logrus.FieldLogger) *Registry {
	r.logger = logger
	return r
}

// Login loads the fixture and checks the supplied credentials are present.
// The simulator accepts any non-empty identity/secret pair.
func (r *Registry) Login(ctx context.Context, identity, secret, regionHint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.session != nil && r.session.Closed() {
		return errors.New("session is closed")
	}
	if identity == "" || secret == "" {
		return errors.New("authentication failed: empty identity or secret")
	}

	fx, err := loadFixture(r.fixturePath)
	if err != nil {
		return errors.Wrap(err, "loading device fixture")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixture = fx
	r.authed = true

	r.logger.Debugf("simulated login for %s (region %s): %d home(s)", identity, regionHint, len(fx.Homes))
	return nil
}

// Start marks the persistent channel as established.  The simulator has no
// real connection to make, so readiness is immediate.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.started = true

	// readiness is sticky; a stop/start cycle must not close it twice
	select {
	case <-r.ready:
	default:
		close(r.ready)
	}
}

// Ready reports channel establishment; closed as soon as Start runs.
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

// Stop halts the simulated channel.  Safe to call at any point in the
// lifecycle, including before Start.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	return nil
}

func (r *Registry) Homes(ctx context.Context) (map[string]cloudreg.Home, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.authed {
		return nil, errors.New("not authenticated")
	}

	homes := make(map[string]cloudreg.Home, len(r.fixture.Homes))
	for _, h := range r.fixture.Homes {
		homes[h.ID] = cloudreg.Home{ID: h.ID, Name: h.Name}
	}

	return homes, nil
}

// Devices returns the device records of the requested homes, preserving the
// fixture's enumeration order.  Unknown home ids are ignored, as the cloud
// service simply has nothing to return for them.
func (r *Registry) Devices(ctx context.Context, homeIDs []string) ([]cloudreg.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.authed {
		return nil, errors.New("not authenticated")
	}

	requested := make(map[string]bool, len(homeIDs))
	for _, id := range homeIDs {
		requested[id] = true
	}

	var devices []cloudreg.Device
	for _, h := range r.fixture.Homes {
		if !requested[h.ID] {
			continue
		}
		for _, d := range h.Devices {
			devices = append(devices, d.record())
		}
	}

	return devices, nil
}

// Send applies a switch command to the fixture state and returns the status
// token the real service would: "online" on acknowledgement, "offline" when
// the device is unreachable, "timeout" when nothing answers at all.
func (r *Registry) Send(ctx context.Context, device cloudreg.Device, cmd cloudreg.Command) (cloudreg.Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := cmd.Validate(); err != nil {
		return "", errors.Wrap(err, "validating command payload")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	txnID := uuid.New().String()
	log := r.logger.WithFields(logrus.Fields{"txnid": txnID, "deviceid": device.ID})

	if !r.started || r.fixture == nil {
		log.Debug("send with no channel running")
		return cloudreg.StatusTimeout, nil
	}

	target := r.fixture.device(device.ID)
	if target == nil {
		log.Debug("send to device unknown to the cloud")
		return cloudreg.StatusTimeout, nil
	}
	if !target.Online {
		log.Debug("send to offline device")
		return cloudreg.StatusOffline, nil
	}

	target.Params["switch"] = string(cmd.Switch)
	log.Debugf("applied switch=%s", cmd.Switch)

	return cloudreg.StatusOnline, nil
}
