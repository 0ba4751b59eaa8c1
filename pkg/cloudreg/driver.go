package cloudreg

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Driver produces the session/registry pair for one login lifecycle.  A
// registry is always bound to the session it was created with.
type Driver interface {
	NewSession() (Session, error)
	NewRegistry(s Session) Registry
}

// DriverFactory builds a driver from an opaque source string; what the
// string means (a fixture path, a DSN, ...) is up to the driver.
type DriverFactory func(source string) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register makes a driver factory available under the given name, in the
// manner of database/sql.  It panics on a duplicate or nil registration;
// both indicate a programming error.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if factory == nil {
		panic("cloudreg: Register called with nil factory")
	}
	if _, dup := drivers[name]; dup {
		panic("cloudreg: Register called twice for driver " + name)
	}
	drivers[name] = factory
}

// Open constructs the named driver from the given source.
func Open(name, source string) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, errors.Errorf("unknown registry driver %q (registered: %v)", name, DriverNames())
	}

	return factory(source)
}

// DriverNames returns the sorted names of the registered drivers.
func DriverNames() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
