package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	relayerr "chat-relay/errors"
	"chat-relay/infrastructure/storage"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type relayFixture struct {
	store      *storage.ConversationRepository
	presence   *PresenceRegistry
	membership *RoomMembership
	lifecycle  *LifecycleManager
	relay      *Relay
	persisted  chan event.DomainEvent
}

func newRelayFixture(t *testing.T) relayFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	store := storage.NewConversationRepository(db, log, 0)
	presence := NewPresenceRegistry()
	membership := NewRoomMembership()
	persisted := make(chan event.DomainEvent, 100)
	return relayFixture{
		store:      store,
		presence:   presence,
		membership: membership,
		lifecycle:  NewLifecycleManager(log, presence, membership),
		relay:      NewRelay(log, store, nil, presence, membership, persisted, time.Second),
		persisted:  persisted,
	}
}

func (f relayFixture) connect(t *testing.T, username string, room domain.RoomID) *fakeConn {
	t.Helper()
	conn := newFakeConn(username)
	f.lifecycle.OnConnect(context.Background(), conn)
	if room != "" {
		require.NoError(t, f.lifecycle.OnJoinRoom(context.Background(), conn, room))
	}
	return conn
}

func TestRelay_SendRoomMessage_BroadcastsToRoomIncludingSender(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()

	// Given alice and bob in general, carol elsewhere
	alice := f.connect(t, "alice", "general")
	bob := f.connect(t, "bob", "general")
	carol := f.connect(t, "carol", "random")

	// When alice says hi to general
	delivery, err := f.relay.SendRoomMessage(ctx, domain.RoomMessageCommand{
		Room: "general", From: "alice", Content: domain.Content{Text: lo.ToPtr("hi")},
	})

	// Then both members get it, and only them
	req.NoError(err)
	req.Equal(2, delivery.Recipients)
	for _, c := range []*fakeConn{alice, bob} {
		got := c.receivedOfType(event.TypeRoomMessage)
		req.Len(got, 1)
		msg := got[0].(event.RoomMessageDelivered).Message
		req.Equal("hi", msg.Text)
		req.Equal("alice", msg.Username)
		req.False(msg.Seen)
		req.Nil(msg.AudioURL)
	}
	req.Empty(carol.receivedOfType(event.TypeRoomMessage))

	thread, found, err := f.store.FindThreadByRoom(ctx, "general")
	req.NoError(err)
	req.True(found)
	req.Equal(uint64(1), thread.Length)
}

func TestRelay_SendRoomMessage_EmptyRoomStillPersists(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()

	// Sender sits in another room: the event's room wins
	f.connect(t, "alice", "random")

	delivery, err := f.relay.SendRoomMessage(ctx, domain.RoomMessageCommand{
		Room: "general", From: "alice", Content: domain.Content{},
	})

	req.NoError(err)
	req.False(delivery.Delivered())
	req.Equal("", delivery.Message.Text)
	thread, found, err := f.store.FindThreadByRoom(ctx, "general")
	req.NoError(err)
	req.True(found)
	req.Equal(uint64(1), thread.Length)
}

func TestRelay_SendPrivate_OnlineRecipient(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()

	alice := f.connect(t, "alice", "")
	bob := f.connect(t, "bob", "")

	delivery, err := f.relay.SendPrivate(ctx, domain.PrivateMessageCommand{
		From: "alice", To: "bob", Content: domain.Content{AudioURL: lo.ToPtr("https://cdn/a.ogg")},
	})

	req.NoError(err)
	req.Equal(1, delivery.Recipients)
	got := bob.receivedOfType(event.TypePrivateMessage)
	req.Len(got, 1)
	pm := got[0].(event.PrivateMessageDelivered)
	req.Equal("alice", pm.From)
	req.Equal("", pm.Text)
	req.Equal("https://cdn/a.ogg", lo.FromPtr(pm.AudioURL))
	req.Nil(pm.VideoURL)
	// The sender gets no echo
	req.Empty(alice.receivedOfType(event.TypePrivateMessage))
}

func TestRelay_SendPrivate_OfflineRecipientIsStoredOnly(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()

	// Given bob is offline
	f.connect(t, "alice", "")

	// When alice sends him a private message
	delivery, err := f.relay.SendPrivate(ctx, domain.PrivateMessageCommand{
		From: "alice", To: "bob", Content: domain.Content{Text: lo.ToPtr("hey")},
	})

	// Then it is stored, not delivered
	req.NoError(err)
	req.False(delivery.Delivered())
	thread, found, err := f.store.FindThreadByUserPair(ctx, "alice", "bob")
	req.NoError(err)
	req.True(found)
	req.Equal(uint64(1), thread.Length)

	// And bob gets no backfill when he connects
	bob := f.connect(t, "bob", "")
	req.Empty(bob.receivedOfType(event.TypePrivateMessage))
}

func TestRelay_SendPrivate_BothDirectionsShareOneThread(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()

	_, err := f.relay.SendPrivate(ctx, domain.PrivateMessageCommand{From: "alice", To: "bob", Content: domain.Content{Text: lo.ToPtr("ping")}})
	req.NoError(err)
	_, err = f.relay.SendPrivate(ctx, domain.PrivateMessageCommand{From: "bob", To: "alice", Content: domain.Content{Text: lo.ToPtr("pong")}})
	req.NoError(err)

	ab, _, err := f.store.FindThreadByUserPair(ctx, "alice", "bob")
	req.NoError(err)
	ba, _, err := f.store.FindThreadByUserPair(ctx, "bob", "alice")
	req.NoError(err)
	req.Equal(ab.Key, ba.Key)
	req.Equal(uint64(2), ab.Length)
}

func TestRelay_SequentialSends_KeepSendOrder(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()
	const n = 10

	for i := 0; i < n; i++ {
		_, err := f.relay.SendRoomMessage(ctx, domain.RoomMessageCommand{
			Room: "general", From: "alice", Content: domain.Content{Text: lo.ToPtr(fmt.Sprintf("%d", i))},
		})
		req.NoError(err)
	}

	page, err := f.relay.History(ctx, domain.HistoryQuery{Requester: "alice", Key: domain.RoomThread("general")})
	req.NoError(err)
	req.Len(page.Messages, n)
	// Newest first
	for i, m := range page.Messages {
		seq := n - 1 - i
		req.Equal(fmt.Sprintf("%d", seq), m.Text)
		req.Equal(uint64(seq), m.Seq)
	}
}

func TestRelay_ConcurrentSends_NoLostUpdates(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()
	const m = 25

	_, err := f.relay.SendPrivate(ctx, domain.PrivateMessageCommand{From: "alice", To: "bob", Content: domain.Content{Text: lo.ToPtr("first")}})
	req.NoError(err)

	var wg sync.WaitGroup
	errs := make(chan error, m)
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "alice", "bob"
			if i%2 == 0 {
				from, to = to, from
			}
			_, err := f.relay.SendPrivate(ctx, domain.PrivateMessageCommand{From: from, To: to, Content: domain.Content{Text: lo.ToPtr("x")}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	thread, _, err := f.store.FindThreadByUserPair(ctx, "bob", "alice")
	req.NoError(err)
	req.Equal(uint64(1+m), thread.Length)
}

func TestRelay_SendRoomMessage_StorageFailureBroadcastsNothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIConversationStore(ctrl)
	presence := NewPresenceRegistry()
	membership := NewRoomMembership()
	lifecycle := NewLifecycleManager(slog.Default(), presence, membership)
	relay := NewRelay(slog.Default(), store, nil, presence, membership, nil, time.Second)

	alice, bob := newFakeConn("alice"), newFakeConn("bob")
	for _, c := range []*fakeConn{alice, bob} {
		lifecycle.OnConnect(context.Background(), c)
		req.NoError(lifecycle.OnJoinRoom(context.Background(), c, "general"))
	}

	thread := domain.Thread{Key: domain.RoomThread("general"), Length: 3}
	store.EXPECT().FindThreadByRoom(gomock.Any(), domain.RoomID("general")).Return(thread, true, nil)
	store.EXPECT().AppendAndSave(gomock.Any(), thread, gomock.Any()).Return(domain.Message{}, fmt.Errorf("disk full"))

	_, err := relay.SendRoomMessage(context.Background(), domain.RoomMessageCommand{
		Room: "general", From: "alice", Content: domain.Content{Text: lo.ToPtr("hi")},
	})

	req.ErrorIs(err, relayerr.ErrStorage)
	req.Empty(alice.receivedOfType(event.TypeRoomMessage))
	req.Empty(bob.receivedOfType(event.TypeRoomMessage))
}

func TestRelay_SendPrivate_StoreLookupFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIConversationStore(ctrl)
	presence := mocks.NewMockIPresenceRegistry(ctrl)
	membership := mocks.NewMockIRoomMembership(ctrl)
	relay := NewRelay(slog.Default(), store, nil, presence, membership, nil, time.Second)

	store.EXPECT().FindThreadByUserPair(gomock.Any(), "alice", "bob").Return(domain.Thread{}, false, fmt.Errorf("io"))
	// Never reached: no presence lookup, no delivery
	presence.EXPECT().Get(gomock.Any()).Times(0)

	_, err := relay.SendPrivate(context.Background(), domain.PrivateMessageCommand{
		From: "bob", To: "alice", Content: domain.Content{Text: lo.ToPtr("hey")},
	})

	req.ErrorIs(err, relayerr.ErrStorage)
}

func TestRelay_SlowStoreTimesOut(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIConversationStore(ctrl)
	relay := NewRelay(slog.Default(), store, nil, NewPresenceRegistry(), NewRoomMembership(), nil, 20*time.Millisecond)

	store.EXPECT().FindThreadByRoom(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.RoomID) (domain.Thread, bool, error) {
			<-ctx.Done()
			return domain.Thread{}, false, ctx.Err()
		})

	_, err := relay.SendRoomMessage(context.Background(), domain.RoomMessageCommand{Room: "general", From: "alice"})

	req.ErrorIs(err, relayerr.ErrStorage)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestRelay_Send_RejectsMalformedCommands(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()

	_, err := f.relay.SendPrivate(ctx, domain.PrivateMessageCommand{From: "alice", Content: domain.Content{Text: lo.ToPtr("hi")}})
	req.ErrorIs(err, relayerr.ErrMalformedEvent)

	_, err = f.relay.SendRoomMessage(ctx, domain.RoomMessageCommand{Room: "general", Content: domain.Content{Text: lo.ToPtr("hi")}})
	req.ErrorIs(err, relayerr.ErrAnonymousSender)

	threads, err := f.store.ListThreads()
	req.NoError(err)
	req.Empty(threads)
}

func TestRelay_PublishesPersistedMessages(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	delivery, err := f.relay.SendRoomMessage(context.Background(), domain.RoomMessageCommand{
		Room: "general", From: "alice", Content: domain.Content{Text: lo.ToPtr("indexed")},
	})
	req.NoError(err)

	select {
	case evt := <-f.persisted:
		persisted, ok := evt.(event.MessagePersisted)
		req.True(ok)
		req.Equal(domain.RoomThread("general"), persisted.Key)
		req.Equal(delivery.Message.ID, persisted.Message.ID)
	default:
		req.Fail("expected a persisted event")
	}
}

func TestRelay_History_DirectThreadIsPrivate(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()

	_, err := f.relay.SendPrivate(ctx, domain.PrivateMessageCommand{From: "alice", To: "bob", Content: domain.Content{Text: lo.ToPtr("secret")}})
	req.NoError(err)

	_, err = f.relay.History(ctx, domain.HistoryQuery{Requester: "mallory", Key: domain.DirectThread("alice", "bob")})
	req.ErrorIs(err, relayerr.ErrForbiddenThread)

	page, err := f.relay.History(ctx, domain.HistoryQuery{Requester: "bob", Key: domain.DirectThread("bob", "alice")})
	req.NoError(err)
	req.Len(page.Messages, 1)
	req.Equal("secret", page.Messages[0].Text)
}

func TestRelay_Search_UsesIndex(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	index := mocks.NewMockIMessageIndex(ctrl)
	relay := NewRelay(slog.Default(), mocks.NewMockIConversationStore(ctrl), index,
		NewPresenceRegistry(), NewRoomMembership(), nil, time.Second)
	key := domain.RoomThread("general")
	hits := []domain.SearchHit{{Username: "alice", Text: "deploy done", Score: 1.2}}

	index.EXPECT().Search(gomock.Any(), key, "deploy").Return(hits, nil)

	result, err := relay.Search(context.Background(), domain.SearchQuery{Requester: "bob", Key: key, Query: "deploy"})

	req.NoError(err)
	req.Equal(hits, result.Hits)
	req.Equal("deploy", result.Query)
}

var _ contract.Connection = (*fakeConn)(nil)

// abortingStore appends through a context that is already cancelled, so the real badger
// transaction fails after the thread was resolved.
type abortingStore struct {
	*storage.ConversationRepository
}

func (s abortingStore) AppendAndSave(ctx context.Context, thread domain.Thread, message domain.Message) (domain.Message, error) {
	aborted, cancel := context.WithCancel(ctx)
	cancel()
	return s.ConversationRepository.AppendAndSave(aborted, thread, message)
}

func TestRelay_SendRoomMessage_FailedAppendLeavesThreadUnchanged(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()

	// Given a room thread holding one message
	alice := f.connect(t, "alice", "general")
	bob := f.connect(t, "bob", "general")
	_, err := f.relay.SendRoomMessage(ctx, domain.RoomMessageCommand{
		Room: "general", From: "alice", Content: domain.Content{Text: lo.ToPtr("first")},
	})
	req.NoError(err)

	// When the next append fails in the store
	failing := NewRelay(slog.Default(), abortingStore{f.store}, nil, f.presence, f.membership, nil, time.Second)
	_, err = failing.SendRoomMessage(ctx, domain.RoomMessageCommand{
		Room: "general", From: "bob", Content: domain.Content{Text: lo.ToPtr("lost")},
	})

	// Then nothing is broadcast and the thread keeps its length
	req.ErrorIs(err, relayerr.ErrStorage)
	req.ErrorIs(err, context.Canceled)
	req.Len(alice.receivedOfType(event.TypeRoomMessage), 1)
	req.Len(bob.receivedOfType(event.TypeRoomMessage), 1)

	thread, found, err := f.store.FindThreadByRoom(ctx, "general")
	req.NoError(err)
	req.True(found)
	req.Equal(uint64(1), thread.Length)
	messages, _, err := f.store.GetMessages(ctx, thread.Key, nil)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("first", messages[0].Text)
}
