package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"time"
)

const defaultReportInterval = time.Minute

// PresenceReporter periodically logs how busy the relay is.
type PresenceReporter struct {
	log        *slog.Logger
	presence   contract.IPresenceRegistry
	membership contract.IRoomMembership
	interval   time.Duration
}

func NewPresenceReporter(log *slog.Logger, presence contract.IPresenceRegistry,
	membership contract.IRoomMembership, interval time.Duration) *PresenceReporter {
	if interval <= 0 {
		interval = defaultReportInterval
	}
	return &PresenceReporter{log: log, presence: presence, membership: membership, interval: interval}
}

func (w *PresenceReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.report()
			return nil
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *PresenceReporter) report() {
	w.log.Info("Relay stats",
		"online_users", w.presence.Count(),
		"connections", len(w.membership.All()),
		"active_rooms", w.membership.Rooms())
}
