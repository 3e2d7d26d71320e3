package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

// IndexWorker feeds the full-text index with messages once they are durable.
// Indexing is best effort: a failure is logged and the message stays searchable
// only through history.
type IndexWorker struct {
	log       *slog.Logger
	index     contract.IMessageIndex
	persisted <-chan event.DomainEvent
}

func NewIndexWorker(log *slog.Logger, index contract.IMessageIndex, persisted <-chan event.DomainEvent) *IndexWorker {
	return &IndexWorker{log: log, index: index, persisted: persisted}
}

func (w *IndexWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping indexing")
			return nil
		case evt, ok := <-w.persisted:
			if !ok {
				return nil
			}
			w.consume(ctx, evt)
		}
	}
}

func (w *IndexWorker) consume(ctx context.Context, evt event.DomainEvent) {
	persisted, ok := evt.(event.MessagePersisted)
	if !ok {
		w.log.Debug("Ignoring event", "type", evt.Type())
		return
	}
	if err := w.index.Index(ctx, persisted.Key, persisted.Message); err != nil {
		w.log.Warn("Failed to index message",
			"thread", persisted.Key.String(),
			"message_id", persisted.Message.ID,
			"error", err)
	}
}
