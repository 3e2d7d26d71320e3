// Package websocket exposes the relay to clients over gorilla/websocket with a JSON envelope.
package websocket

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/services"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
)

type Options struct {
	BufferSize      int
	MaxMessageSize  int64
	RateLimitBurst  int
	RateLimitWindow time.Duration
	AllowedOrigins  []string
}

// Server upgrades HTTP requests and runs one session per websocket.
// The username is taken from the "username" query parameter at handshake and never changes.
type Server struct {
	log      *slog.Logger
	service  services.IChatService
	limiter  *RateLimiter
	upgrader gws.Upgrader
	options  Options

	mu      sync.Mutex
	clients map[domain.ConnectionID]*Client
}

func NewServer(log *slog.Logger, service services.IChatService, options Options) *Server {
	if options.BufferSize <= 0 {
		options.BufferSize = 256
	}
	if options.MaxMessageSize <= 0 {
		options.MaxMessageSize = 8192
	}
	s := &Server{
		log:     log,
		service: service,
		limiter: NewRateLimiter(options.RateLimitBurst, options.RateLimitWindow),
		options: options,
		clients: make(map[domain.ConnectionID]*Client),
	}
	s.upgrader = gws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin accepts any origin when no allow-list is configured.
// Requests without an Origin header come from non-browser clients and are accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(s.options.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	return slices.Contains(s.options.AllowedOrigins, origin)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(s.log, conn, username, s.options.BufferSize)
	s.track(client)
	go client.writePump()

	ctx := context.WithoutCancel(r.Context())
	s.service.Connect(ctx, client)
	defer func() {
		s.service.Disconnect(ctx, client)
		s.limiter.Forget(string(client.ID()))
		s.untrack(client)
		client.close()
	}()

	client.readPump(s.options.MaxMessageSize, func(env Envelope, err error) {
		if err != nil {
			s.reject(ctx, client, err)
			return
		}
		if !s.limiter.Allow(string(client.ID())) {
			client.log.Warn("Rate limit exceeded", "type", env.Type)
			_ = client.Consume(ctx, event.Failure{Code: CodeRateLimited, Message: "too many events"})
			return
		}
		s.dispatch(ctx, client, env)
	})
}

// CloseAll closes every live session. Hijacked connections are not covered by http.Server.Shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, client := range s.clients {
		client.close()
	}
}

func (s *Server) track(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID()] = client
}

func (s *Server) untrack(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, client.ID())
}

// dispatch runs one inbound event. Only the sender is told about failures.
func (s *Server) dispatch(ctx context.Context, client *Client, env Envelope) {
	cmd, err := decodePayload(client.Username(), env)
	if err != nil {
		s.reject(ctx, client, err)
		return
	}
	client.log.Debug("Event received", "type", env.Type)

	switch c := cmd.(type) {
	case domain.JoinRoomCommand:
		err = s.service.JoinRoom(ctx, client, c.Room)
	case domain.PrivateMessageCommand:
		_, err = s.service.SendPrivate(ctx, c)
	case domain.RoomMessageCommand:
		_, err = s.service.SendRoomMessage(ctx, c)
	case domain.HistoryQuery:
		var page event.HistoryPage
		if page, err = s.service.History(ctx, c); err == nil {
			err = client.Consume(ctx, page)
		}
	case domain.SearchQuery:
		var result event.SearchResult
		if result, err = s.service.Search(ctx, c); err == nil {
			err = client.Consume(ctx, result)
		}
	default:
		err = fmt.Errorf("unhandled command %s", cmd.CommandName())
	}
	if err != nil {
		s.reject(ctx, client, err)
	}
}

func (s *Server) reject(ctx context.Context, client *Client, err error) {
	failure := failureFor(err)
	client.log.Debug("Event rejected", "code", failure.Code, "error", err)
	_ = client.Consume(ctx, failure)
}
