//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
)

// IChatService is everything a transport needs from the relay.
type IChatService interface {
	Connect(ctx context.Context, conn contract.Connection)
	Disconnect(ctx context.Context, conn contract.Connection)
	JoinRoom(ctx context.Context, conn contract.Connection, room domain.RoomID) error
	SendPrivate(ctx context.Context, cmd domain.PrivateMessageCommand) (contract.Delivery, error)
	SendRoomMessage(ctx context.Context, cmd domain.RoomMessageCommand) (contract.Delivery, error)
	History(ctx context.Context, query domain.HistoryQuery) (event.HistoryPage, error)
	Search(ctx context.Context, query domain.SearchQuery) (event.SearchResult, error)
}

type ChatService struct {
	lifecycle contract.ILifecycleManager
	relay     contract.IRelay
}

func NewChatService(lifecycle contract.ILifecycleManager, relay contract.IRelay) *ChatService {
	return &ChatService{lifecycle: lifecycle, relay: relay}
}

func (s *ChatService) Connect(ctx context.Context, conn contract.Connection) {
	s.lifecycle.OnConnect(ctx, conn)
}

func (s *ChatService) Disconnect(ctx context.Context, conn contract.Connection) {
	s.lifecycle.OnDisconnect(ctx, conn)
}

func (s *ChatService) JoinRoom(ctx context.Context, conn contract.Connection, room domain.RoomID) error {
	return s.lifecycle.OnJoinRoom(ctx, conn, room)
}

func (s *ChatService) SendPrivate(ctx context.Context, cmd domain.PrivateMessageCommand) (contract.Delivery, error) {
	return s.relay.SendPrivate(ctx, cmd)
}

func (s *ChatService) SendRoomMessage(ctx context.Context, cmd domain.RoomMessageCommand) (contract.Delivery, error) {
	return s.relay.SendRoomMessage(ctx, cmd)
}

func (s *ChatService) History(ctx context.Context, query domain.HistoryQuery) (event.HistoryPage, error) {
	return s.relay.History(ctx, query)
}

func (s *ChatService) Search(ctx context.Context, query domain.SearchQuery) (event.SearchResult, error) {
	return s.relay.Search(ctx, query)
}
