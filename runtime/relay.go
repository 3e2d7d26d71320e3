// Package runtime tracks who is reachable and routes messages to them.
// It orchestrates the store and the live connections without owning either.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	relayerr "chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"
)

var _ contract.IRelay = (*Relay)(nil)

const defaultStoreTimeout = 5 * time.Second

// Relay persists every message in its thread, then pushes it to the live recipients.
// Nothing is pushed when persistence fails.
type Relay struct {
	log          *slog.Logger
	store        contract.IConversationStore
	index        contract.IMessageIndex
	presence     contract.IPresenceRegistry
	membership   contract.IRoomMembership
	persisted    chan<- event.DomainEvent
	storeTimeout time.Duration
	now          func() time.Time
}

// NewRelay wires the relay. index and persisted may be nil, which disables search.
func NewRelay(log *slog.Logger,
	store contract.IConversationStore,
	index contract.IMessageIndex,
	presence contract.IPresenceRegistry,
	membership contract.IRoomMembership,
	persisted chan<- event.DomainEvent,
	storeTimeout time.Duration) *Relay {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Relay{
		log:          log,
		store:        store,
		index:        index,
		presence:     presence,
		membership:   membership,
		persisted:    persisted,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// SendPrivate appends the message to the thread of the pair {From, To} and pushes it to To
// if To is online. An offline recipient is not an error: the message stays in the thread.
func (r *Relay) SendPrivate(ctx context.Context, cmd domain.PrivateMessageCommand) (contract.Delivery, error) {
	if err := domain.Validate(cmd); err != nil {
		return contract.Delivery{}, err
	}
	stored, err := r.persist(ctx, domain.DirectThread(cmd.From, cmd.To), domain.NewMessage(cmd.From, cmd.Content, r.now()))
	if err != nil {
		return contract.Delivery{}, err
	}

	delivery := contract.Delivery{Message: stored}
	id, online := r.presence.Get(cmd.To)
	if !online {
		r.log.Debug("Recipient offline, message stored only", "from", cmd.From, "to", cmd.To)
		return delivery, nil
	}
	conn, ok := r.membership.Connection(id)
	if !ok {
		return delivery, nil
	}
	if r.deliver(context.WithoutCancel(ctx), conn, event.NewPrivateMessageDelivered(stored)) {
		delivery.Recipients = 1
	}
	return delivery, nil
}

// SendRoomMessage appends the message to the room thread and broadcasts it to every
// connection joined to the room, the sender's own connection included.
func (r *Relay) SendRoomMessage(ctx context.Context, cmd domain.RoomMessageCommand) (contract.Delivery, error) {
	if err := domain.Validate(cmd); err != nil {
		return contract.Delivery{}, err
	}
	stored, err := r.persist(ctx, domain.RoomThread(cmd.Room), domain.NewMessage(cmd.From, cmd.Content, r.now()))
	if err != nil {
		return contract.Delivery{}, err
	}

	delivery := contract.Delivery{Message: stored}
	evt := event.RoomMessageDelivered{Room: cmd.Room, Message: stored}
	fanoutCtx := context.WithoutCancel(ctx)
	for _, conn := range r.membership.Members(cmd.Room) {
		if r.deliver(fanoutCtx, conn, evt) {
			delivery.Recipients++
		}
	}
	r.log.Debug("Room message relayed", "room_id", cmd.Room, "from", cmd.From, "recipients", delivery.Recipients)
	return delivery, nil
}

// History returns one page of a thread, newest first.
func (r *Relay) History(ctx context.Context, query domain.HistoryQuery) (event.HistoryPage, error) {
	if err := r.checkReadable(query); err != nil {
		return event.HistoryPage{}, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	messages, cursor, err := r.store.GetMessages(storeCtx, query.Key, query.Cursor)
	if err != nil {
		return event.HistoryPage{}, relayerr.NewStorageError("history", err)
	}
	return event.HistoryPage{Key: query.Key, Messages: messages, Cursor: cursor}, nil
}

func (r *Relay) Search(ctx context.Context, query domain.SearchQuery) (event.SearchResult, error) {
	if err := r.checkReadable(query); err != nil {
		return event.SearchResult{}, err
	}
	result := event.SearchResult{Key: query.Key, Query: query.Query}
	if r.index == nil {
		return result, nil
	}
	hits, err := r.index.Search(ctx, query.Key, query.Query)
	if err != nil {
		return event.SearchResult{}, fmt.Errorf("search %s: %w", query.Key, err)
	}
	result.Hits = hits
	return result, nil
}

func (r *Relay) checkReadable(query domain.Command) error {
	if err := domain.Validate(query); err != nil {
		return err
	}
	var requester string
	var key domain.ThreadKey
	switch q := query.(type) {
	case domain.HistoryQuery:
		requester, key = q.Requester, q.Key
	case domain.SearchQuery:
		requester, key = q.Requester, q.Key
	}
	if key.Kind() == domain.ThreadKindDirect && !key.Includes(requester) {
		return relayerr.ErrForbiddenThread
	}
	return nil
}

// persist resolves or creates the thread and appends the message atomically.
// Every store call shares one deadline so a slow store surfaces as a StorageError.
func (r *Relay) persist(ctx context.Context, key domain.ThreadKey, message domain.Message) (domain.Message, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	thread, err := r.getOrCreateThread(storeCtx, key)
	if err != nil {
		r.log.Error("Failed to resolve thread", "thread", key.String(), "error", err)
		return domain.Message{}, relayerr.NewStorageError("resolve thread", err)
	}
	stored, err := r.store.AppendAndSave(storeCtx, thread, message)
	if err != nil {
		r.log.Error("Failed to append message", "thread", key.String(), "error", err)
		return domain.Message{}, relayerr.NewStorageError("append", err)
	}
	r.publish(event.MessagePersisted{Key: key, Message: stored})
	return stored, nil
}

// getOrCreateThread never fails on absence: a missing thread is created.
func (r *Relay) getOrCreateThread(ctx context.Context, key domain.ThreadKey) (domain.Thread, error) {
	var (
		thread domain.Thread
		found  bool
		err    error
	)
	switch key.Kind() {
	case domain.ThreadKindRoom:
		thread, found, err = r.store.FindThreadByRoom(ctx, key.Room())
	case domain.ThreadKindDirect:
		users := key.Users()
		thread, found, err = r.store.FindThreadByUserPair(ctx, users[0], users[1])
	default:
		return domain.Thread{}, fmt.Errorf("invalid thread key")
	}
	if err != nil {
		return domain.Thread{}, err
	}
	if found {
		return thread, nil
	}
	return r.store.CreateThread(ctx, key)
}

func (r *Relay) publish(evt event.DomainEvent) {
	if r.persisted == nil {
		return
	}
	select {
	case r.persisted <- evt:
	default:
		r.log.Warn("Index buffer full, message will not be searchable")
	}
}

func (r *Relay) deliver(ctx context.Context, conn contract.Connection, evt event.DomainEvent) bool {
	if err := conn.Consume(ctx, evt); err != nil {
		r.log.Warn("Failed to push event to connection",
			"connection_id", conn.ID(),
			"username", conn.Username(),
			"event", evt.Type(),
			"error", err)
		return false
	}
	return true
}
