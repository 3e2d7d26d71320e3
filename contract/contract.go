//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// It is only used for logging during supervision.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is the relay's view of one live transport session.
// Username is fixed at handshake time and may be empty for anonymous sessions.
type Connection interface {
	EventSink
	ID() domain.ConnectionID
	Username() string
}

// IConversationStore is the only component allowed to perform durable writes.
// Find operations return false when the thread does not exist yet; this is not an error.
type IConversationStore interface {
	FindThreadByRoom(ctx context.Context, room domain.RoomID) (domain.Thread, bool, error)
	FindThreadByUserPair(ctx context.Context, a, b string) (domain.Thread, bool, error)
	CreateThread(ctx context.Context, key domain.ThreadKey) (domain.Thread, error)
	AppendAndSave(ctx context.Context, thread domain.Thread, message domain.Message) (domain.Message, error)
	GetMessages(ctx context.Context, key domain.ThreadKey, cursor *string) ([]domain.Message, *string, error)
}

type IMessageIndex interface {
	Index(ctx context.Context, key domain.ThreadKey, message domain.Message) error
	Search(ctx context.Context, key domain.ThreadKey, query string) ([]domain.SearchHit, error)
}

type IPresenceRegistry interface {
	Set(username string, id domain.ConnectionID)
	Get(username string) (domain.ConnectionID, bool)
	Remove(username string, expected domain.ConnectionID) bool
	Count() int
}

type IRoomMembership interface {
	Attach(conn Connection)
	Detach(id domain.ConnectionID)
	Join(id domain.ConnectionID, room domain.RoomID) bool
	CurrentRoom(id domain.ConnectionID) (domain.RoomID, bool)
	Connection(id domain.ConnectionID) (Connection, bool)
	Members(room domain.RoomID) []Connection
	All() []Connection
	Rooms() int
}

type IRelay interface {
	SendPrivate(ctx context.Context, cmd domain.PrivateMessageCommand) (Delivery, error)
	SendRoomMessage(ctx context.Context, cmd domain.RoomMessageCommand) (Delivery, error)
	History(ctx context.Context, query domain.HistoryQuery) (event.HistoryPage, error)
	Search(ctx context.Context, query domain.SearchQuery) (event.SearchResult, error)
}

type ILifecycleManager interface {
	OnConnect(ctx context.Context, conn Connection)
	OnJoinRoom(ctx context.Context, conn Connection, room domain.RoomID) error
	OnDisconnect(ctx context.Context, conn Connection)
}

// Delivery is the outcome of a successful send.
// Recipients counts the live connections the message was pushed to; zero means stored only.
type Delivery struct {
	Message    domain.Message
	Recipients int
}

func (d Delivery) Delivered() bool {
	return d.Recipients > 0
}
