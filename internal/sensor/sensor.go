package sensor

import (
	"sort"
	"sync"

	"github.com/micro-ha/mwan3-status/internal/model"
)

const (
	StateClassMeasurement = "measurement"
	uniqueIDPrefix        = "mwan3_"
)

// Source serves the latest interface snapshot, usually a *poller.Poller.
type Source interface {
	Data() model.Snapshot
}

// Sensor exposes one MWAN3 interface. Its identity is fixed at creation; the
// value is read from the source on every access.
type Sensor struct {
	Router     string
	Interface  string
	Name       string
	UniqueID   string
	StateClass string

	source Source
}

func New(source Source, displayName, iface string) *Sensor {
	return &Sensor{
		Router:     displayName,
		Interface:  iface,
		Name:       displayName + " " + iface,
		UniqueID:   uniqueIDPrefix + iface,
		StateClass: StateClassMeasurement,
		source:     source,
	}
}

// FromSnapshot creates one sensor per interface in snapshot, ordered by name.
func FromSnapshot(source Source, displayName string, snapshot model.Snapshot) []*Sensor {
	names := snapshot.Names()
	out := make([]*Sensor, 0, len(names))
	for _, name := range names {
		out = append(out, New(source, displayName, name))
	}
	return out
}

// Value returns the current record and whether the interface is in the latest snapshot.
func (s *Sensor) Value() (model.InterfaceStatus, bool) {
	if s.source == nil {
		return model.DefaultInterfaceStatus(), false
	}
	return s.source.Data().Get(s.Interface)
}

func (s *Sensor) Available() bool {
	_, ok := s.Value()
	return ok
}

func (s *Sensor) State() string {
	item, _ := s.Value()
	if item.Status == "" {
		return model.StatusUnknown
	}
	return item.Status
}

func (s *Sensor) Attributes() map[string]any {
	item, _ := s.Value()
	return attributes(item)
}

func attributes(item model.InterfaceStatus) map[string]any {
	trackIP := item.TrackIP
	if trackIP == nil {
		trackIP = []string{}
	}
	return map[string]any{
		"enabled":  item.Enabled,
		"score":    item.Score,
		"up":       item.Up,
		"age":      item.Age,
		"turn":     item.Turn,
		"online":   item.Online,
		"uptime":   item.Uptime,
		"lost":     item.Lost,
		"offline":  item.Offline,
		"running":  item.Running,
		"track_ip": trackIP,
	}
}

// View is the JSON form of a sensor.
type View struct {
	UniqueID   string         `json:"unique_id"`
	Name       string         `json:"name"`
	Router     string         `json:"router"`
	Interface  string         `json:"interface"`
	State      string         `json:"state"`
	StateClass string         `json:"state_class"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes"`
}

func (s *Sensor) View() View {
	item, ok := s.Value()
	state := item.Status
	if state == "" {
		state = model.StatusUnknown
	}
	return View{
		UniqueID:   s.UniqueID,
		Name:       s.Name,
		Router:     s.Router,
		Interface:  s.Interface,
		State:      state,
		StateClass: s.StateClass,
		Available:  ok,
		Attributes: attributes(item),
	}
}

// Registrar receives the sensor set after the first refresh. A later call
// replaces the previous set.
type Registrar interface {
	RegisterSensors(sensors []*Sensor)
}

type RegistrarFunc func([]*Sensor)

func (f RegistrarFunc) RegisterSensors(sensors []*Sensor) {
	f(sensors)
}

// Registry keeps the registered sensor set for lookups.
type Registry struct {
	mu      sync.RWMutex
	sensors []*Sensor
	byID    map[string]*Sensor
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]*Sensor{}}
}

func (r *Registry) RegisterSensors(sensors []*Sensor) {
	byID := make(map[string]*Sensor, len(sensors))
	for _, s := range sensors {
		byID[s.UniqueID] = s
	}
	list := append([]*Sensor{}, sensors...)
	sort.Slice(list, func(i, j int) bool { return list[i].UniqueID < list[j].UniqueID })

	r.mu.Lock()
	r.sensors = list
	r.byID = byID
	r.mu.Unlock()
}

func (r *Registry) Sensors() []*Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Sensor{}, r.sensors...)
}

// ByInterface looks up a sensor by interface name.
func (r *Registry) ByInterface(iface string) (*Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[uniqueIDPrefix+iface]
	return s, ok
}
