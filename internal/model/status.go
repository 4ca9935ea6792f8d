package model

import "sort"

// StatusUnknown is reported when the router omits an interface status.
const StatusUnknown = "unknown"

// InterfaceStatus is one MWAN3 interface as reported by the router.
type InterfaceStatus struct {
	Status  string   `json:"status"`
	Enabled bool     `json:"enabled"`
	Score   int      `json:"score"`
	Up      bool     `json:"up"`
	Age     int      `json:"age"`
	Turn    int      `json:"turn"`
	Online  int      `json:"online"`
	Uptime  int      `json:"uptime"`
	Lost    int      `json:"lost"`
	Offline int      `json:"offline"`
	Running bool     `json:"running"`
	TrackIP []string `json:"track_ip"`
}

// DefaultInterfaceStatus is the value of an interface whose fields are all absent.
func DefaultInterfaceStatus() InterfaceStatus {
	return InterfaceStatus{Status: StatusUnknown, TrackIP: []string{}}
}

// Snapshot maps interface name to status for one poll cycle.
type Snapshot map[string]InterfaceStatus

// Names returns interface names in lexical order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named interface or the defaults when it is missing.
func (s Snapshot) Get(name string) (InterfaceStatus, bool) {
	item, ok := s[name]
	if !ok {
		return DefaultInterfaceStatus(), false
	}
	return item, true
}

func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for name, item := range s {
		item.TrackIP = append([]string{}, item.TrackIP...)
		out[name] = item
	}
	return out
}
