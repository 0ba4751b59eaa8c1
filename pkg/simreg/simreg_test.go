package simreg_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/jake-scott/ewelink-switches/pkg/cloudreg"
	"github.com/jake-scott/ewelink-switches/pkg/simreg"
	"github.com/jake-scott/ewelink-switches/pkg/switchctl"
)

const testFixture = `{
  "homes": [
    {
      "id": "home-1",
      "name": "Main",
      "devices": [
        {"deviceid": "1000abc", "name": "Lamp", "online": true,
         "params": {"switch": "off"}},
        {"deviceid": "1000def", "name": "Sensor", "online": true,
         "params": {"temperature": 20}}
      ]
    },
    {
      "id": "home-2",
      "name": "Garage",
      "devices": [
        {"deviceid": "1000ghi", "name": "Heater", "online": false,
         "params": {"switch": "off"}}
      ]
    }
  ]
}`

func writeFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "devices.json")
	if err := ioutil.WriteFile(path, []byte(testFixture), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	return path
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return l
}

func openRegistry(t *testing.T) (cloudreg.Session, cloudreg.Registry) {
	t.Helper()

	driver, err := cloudreg.Open(simreg.DriverName, writeFixture(t))
	if err != nil {
		t.Fatalf("opening sim driver: %v", err)
	}

	session, err := driver.NewSession()
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	registry := driver.NewRegistry(session)
	registry.(*simreg.Registry).WithLogger(quietLogger())

	return session, registry
}

func TestOpenWithoutSource(t *testing.T) {
	if _, err := cloudreg.Open(simreg.DriverName, ""); err == nil {
		t.Error("expected an error when no fixture file is given")
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	_, registry := openRegistry(t)

	if err := registry.Login(context.Background(), "", "", "+1"); err == nil {
		t.Error("empty credentials accepted")
	}
}

func TestLoginRequiresOpenSession(t *testing.T) {
	session, registry := openRegistry(t)

	if err := session.Close(); err != nil {
		t.Fatalf("closing session: %v", err)
	}

	if err := registry.Login(context.Background(), "user", "pass", "+1"); err == nil {
		t.Error("login succeeded over a closed session")
	}
}

func TestEnumeration(t *testing.T) {
	_, registry := openRegistry(t)
	ctx := context.Background()

	if err := registry.Login(ctx, "user", "pass", "+1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	homes, err := registry.Homes(ctx)
	if err != nil {
		t.Fatalf("homes: %v", err)
	}
	if len(homes) != 2 {
		t.Fatalf("home count: got %d, want 2", len(homes))
	}
	if homes["home-2"].Name != "Garage" {
		t.Errorf("home-2 name: got %q, want Garage", homes["home-2"].Name)
	}

	devices, err := registry.Devices(ctx, []string{"home-1", "home-2", "home-unknown"})
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("device count: got %d, want 3", len(devices))
	}

	// fixture enumeration order is preserved
	want := []string{"1000abc", "1000def", "1000ghi"}
	for i, id := range want {
		if devices[i].ID != id {
			t.Errorf("device %d: got %s, want %s", i, devices[i].ID, id)
		}
	}
}

func TestEnumerationRequiresLogin(t *testing.T) {
	_, registry := openRegistry(t)

	if _, err := registry.Homes(context.Background()); err == nil {
		t.Error("homes served before authentication")
	}
}

func TestSendAppliesSwitchState(t *testing.T) {
	_, registry := openRegistry(t)
	ctx := context.Background()

	if err := registry.Login(ctx, "user", "pass", "+1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	registry.Start()

	select {
	case <-registry.(*simreg.Registry).Ready():
	default:
		t.Fatal("channel not ready after Start")
	}

	lamp := cloudreg.Device{ID: "1000abc", Name: "Lamp"}
	status, err := registry.Send(ctx, lamp, cloudreg.SwitchOn())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if status != cloudreg.StatusOnline {
		t.Errorf("status: got %q, want online", status)
	}

	// re-enumeration reflects the new state
	devices, err := registry.Devices(ctx, []string{"home-1"})
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if state, _ := devices[0].Params.Switch(); state != "on" {
		t.Errorf("lamp state after send: got %q, want on", state)
	}
}

func TestSendToOfflineDevice(t *testing.T) {
	_, registry := openRegistry(t)
	ctx := context.Background()

	if err := registry.Login(ctx, "user", "pass", "+1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	registry.Start()

	heater := cloudreg.Device{ID: "1000ghi", Name: "Heater"}
	status, err := registry.Send(ctx, heater, cloudreg.SwitchOn())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if status != cloudreg.StatusOffline {
		t.Errorf("status: got %q, want offline", status)
	}
}

func TestSendUnknownDevice(t *testing.T) {
	_, registry := openRegistry(t)
	ctx := context.Background()

	if err := registry.Login(ctx, "user", "pass", "+1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	registry.Start()

	ghost := cloudreg.Device{ID: "ghost", Name: "Ghost"}
	status, err := registry.Send(ctx, ghost, cloudreg.SwitchOff())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if status != cloudreg.StatusTimeout {
		t.Errorf("status: got %q, want timeout", status)
	}
}

func TestSendBeforeStart(t *testing.T) {
	_, registry := openRegistry(t)
	ctx := context.Background()

	if err := registry.Login(ctx, "user", "pass", "+1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	lamp := cloudreg.Device{ID: "1000abc", Name: "Lamp"}
	status, err := registry.Send(ctx, lamp, cloudreg.SwitchOn())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if status != cloudreg.StatusTimeout {
		t.Errorf("status: got %q, want timeout", status)
	}
}

func TestSendRejectsBadPayload(t *testing.T) {
	_, registry := openRegistry(t)
	ctx := context.Background()

	if err := registry.Login(ctx, "user", "pass", "+1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	registry.Start()

	lamp := cloudreg.Device{ID: "1000abc", Name: "Lamp"}
	if _, err := registry.Send(ctx, lamp, cloudreg.Command{Switch: "dimmed"}); err == nil {
		t.Error("invalid payload accepted")
	}
}

func TestStopBeforeStart(t *testing.T) {
	_, registry := openRegistry(t)

	if err := registry.Stop(context.Background()); err != nil {
		t.Errorf("stop before start: %v", err)
	}
}

// Full lifecycle through the façade, the way the CLI drives it.
func TestControllerOverSimDriver(t *testing.T) {
	driver := simreg.NewDriver(writeFixture(t))
	ctrl := switchctl.New(driver).WithLogger(quietLogger())

	ctx := context.Background()
	if err := ctrl.Login(ctx, "user", "pass", "+1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	devices, err := ctrl.DiscoverSwitches(ctx)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	// the sensor is filtered out; both switch devices survive
	if len(devices) != 2 {
		t.Fatalf("discovered: got %d device(s), want 2", len(devices))
	}

	status, err := ctrl.TurnOn(ctx, "1000abc")
	if err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	if status != cloudreg.StatusOnline {
		t.Errorf("lamp status: got %q, want online", status)
	}

	status, err = ctrl.TurnOn(ctx, "1000ghi")
	if err != nil {
		t.Fatalf("TurnOn offline device: %v", err)
	}
	if status != cloudreg.StatusOffline {
		t.Errorf("heater status: got %q, want offline", status)
	}

	if err := ctrl.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	// after close, commands degrade to the no-registry token
	status, err = ctrl.TurnOff(ctx, "1000abc")
	if err != nil {
		t.Fatalf("TurnOff after close: %v", err)
	}
	if status != cloudreg.StatusNoRegistry {
		t.Errorf("status after close: got %q, want %q", status, cloudreg.StatusNoRegistry)
	}
}
