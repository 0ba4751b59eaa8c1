package simreg

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/jake-scott/ewelink-switches/pkg/cloudreg"
)

/*
 * Fixture file format:
 *
 * {
 *   "homes": [
 *     {
 *       "id": "home-1",
 *       "name": "Main",
 *       "devices": [
 *         {"deviceid": "1000abc", "name": "Lamp", "online": true,
 *          "params": {"switch": "off"}}
 *       ]
 *     }
 *   ]
 * }
 */

type fixture struct {
	Homes []fixtureHome `json:"homes"`
}

type fixtureHome struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Devices []*fixtureDevice `json:"devices"`
}

type fixtureDevice struct {
	ID     string                 `json:"deviceid"`
	Name   string                 `json:"name"`
	Online bool                   `json:"online"`
	Params map[string]interface{} `json:"params"`
}

func loadFixture(path string) (*fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening fixture %s", path)
	}
	defer file.Close()

	var fx fixture
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&fx); err != nil {
		return nil, errors.Wrapf(err, "decoding fixture %s", path)
	}

	for _, h := range fx.Homes {
		for _, d := range h.Devices {
			if d.Params == nil {
				d.Params = map[string]interface{}{}
			}
		}
	}

	return &fx, nil
}

// device returns the mutable fixture entry for a device id, or nil.
func (fx *fixture) device(deviceID string) *fixtureDevice {
	for _, h := range fx.Homes {
		for _, d := range h.Devices {
			if d.ID == deviceID {
				return d
			}
		}
	}

	return nil
}

func (d *fixtureDevice) record() cloudreg.Device {
	params := make(cloudreg.Params, len(d.Params))
	for k, v := range d.Params {
		params[k] = v
	}

	return cloudreg.Device{
		ID:     d.ID,
		Name:   d.Name,
		Online: d.Online,
		Params: params,
	}
}
