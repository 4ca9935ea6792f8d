package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/micro-ha/mwan3-status/internal/events"
	"github.com/micro-ha/mwan3-status/internal/model"
)

const recordTimeout = 5 * time.Second

type Subscriber interface {
	Subscribe(handler events.Handler, types ...events.EventType)
}

// Recorder persists poll outcomes and interface transitions published on the bus.
type Recorder struct {
	repo   *Repository
	logger *slog.Logger
}

func NewRecorder(repo *Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) Attach(bus Subscriber) {
	bus.Subscribe(r.Handle, events.PollSucceeded, events.PollFailed, events.InterfaceStatusChanged)
}

func (r *Recorder) Handle(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	var err error
	switch e.Type {
	case events.PollSucceeded, events.PollFailed:
		run := model.PollRun{
			ID:         e.ID,
			Router:     e.Router,
			At:         e.Timestamp,
			DurationMS: e.Duration.Milliseconds(),
			Success:    e.Type == events.PollSucceeded,
			Interfaces: e.Interfaces,
		}
		if !run.Success {
			run.Error = e.Message
		}
		err = r.repo.RecordPoll(ctx, run)
	case events.InterfaceStatusChanged:
		err = r.repo.RecordEvent(ctx, model.InterfaceEvent{
			ID:        e.ID,
			Router:    e.Router,
			Interface: e.Interface,
			Previous:  e.Previous,
			Current:   e.Current,
			At:        e.Timestamp,
		})
	default:
		return
	}
	if err != nil {
		r.logger.Error("failed to record history", "type", e.Type, "err", err)
	}
}
