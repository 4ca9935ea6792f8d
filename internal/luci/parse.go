package luci

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/micro-ha/mwan3-status/internal/model"
)

// InterfacesField is the top-level key of the interface_status document.
const InterfacesField = "interfaces"

// ParseStatus converts an interface_status body into a snapshot. Missing or
// null fields take the defaults of model.DefaultInterfaceStatus; values of an
// unexpected JSON type are coerced because the schema differs between
// firmware releases.
func ParseStatus(body []byte) (model.Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidResponse)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrInvalidResponse)
	}
	interfaces := root.Get(InterfacesField)
	if !interfaces.Exists() {
		return nil, fmt.Errorf("%w: missing %q field", ErrInvalidResponse, InterfacesField)
	}
	// LuCI encodes an empty table as [].
	if interfaces.IsArray() && len(interfaces.Array()) == 0 {
		return model.Snapshot{}, nil
	}
	if !interfaces.IsObject() {
		return nil, fmt.Errorf("%w: %q is not an object", ErrInvalidResponse, InterfacesField)
	}

	snapshot := model.Snapshot{}
	interfaces.ForEach(func(name, value gjson.Result) bool {
		snapshot[name.String()] = parseInterface(value)
		return true
	})
	return snapshot, nil
}

func parseInterface(v gjson.Result) model.InterfaceStatus {
	item := model.DefaultInterfaceStatus()
	if !v.IsObject() {
		return item
	}
	if f := v.Get("status"); present(f) {
		item.Status = f.String()
	}
	item.Enabled = boolField(v, "enabled")
	item.Score = intField(v, "score")
	item.Up = boolField(v, "up")
	item.Age = intField(v, "age")
	item.Turn = intField(v, "turn")
	item.Online = intField(v, "online")
	item.Uptime = intField(v, "uptime")
	item.Lost = intField(v, "lost")
	item.Offline = intField(v, "offline")
	item.Running = boolField(v, "running")
	if f := v.Get("track_ip"); f.IsArray() {
		for _, ip := range f.Array() {
			if present(ip) {
				item.TrackIP = append(item.TrackIP, ip.String())
			}
		}
	}
	return item
}

func present(f gjson.Result) bool {
	return f.Exists() && f.Type != gjson.Null
}

func intField(v gjson.Result, key string) int {
	f := v.Get(key)
	if !present(f) {
		return 0
	}
	return int(f.Int())
}

func boolField(v gjson.Result, key string) bool {
	f := v.Get(key)
	if !present(f) {
		return false
	}
	return f.Bool()
}
