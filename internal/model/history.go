package model

import "time"

// PollRun is one recorded status poll.
type PollRun struct {
	ID         string    `json:"id"`
	Router     string    `json:"router"`
	At         time.Time `json:"at"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Interfaces int       `json:"interfaces"`
	Error      string    `json:"error,omitempty"`
}

// InterfaceEvent is one recorded interface status transition.
type InterfaceEvent struct {
	ID        string    `json:"id"`
	Router    string    `json:"router"`
	Interface string    `json:"interface"`
	Previous  string    `json:"previous"`
	Current   string    `json:"current"`
	At        time.Time `json:"at"`
}
