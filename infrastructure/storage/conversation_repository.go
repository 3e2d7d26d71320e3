package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
)

var _ contract.IConversationStore = (*ConversationRepository)(nil)

const (
	threadPrefix       = "thread:"
	messagePrefix      = "msg:"
	lockStripes        = 64
	maxConflictRetries = 5
)

// DefaultHistoryLimit is the page size used when none is configured.
const DefaultHistoryLimit = 50

// ConversationRepository stores threads and their messages in BadgerDB.
//
// Keys:
//   - "thread:{thread_key}" holds the thread header, including its length.
//   - "msg:{thread_key}:{seq_padded}" holds one message. The 19-digit zero padding keeps
//     lexicographical order equal to append order.
//
// An append reads the header, writes the message at seq = length and bumps the length in
// the same transaction, so concurrent appends to one thread can never overwrite each other.
type ConversationRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages int
	locks         [lockStripes]chan struct{}
	now           func() time.Time
}

// NewConversationRepository pages history by limitMessages, DefaultHistoryLimit when not positive.
func NewConversationRepository(db *badger.DB, log *slog.Logger, limitMessages int) *ConversationRepository {
	if limitMessages <= 0 {
		limitMessages = DefaultHistoryLimit
	}
	r := &ConversationRepository{db: db, log: log, limitMessages: limitMessages, now: time.Now}
	for i := range r.locks {
		r.locks[i] = make(chan struct{}, 1)
	}
	return r
}

func (r *ConversationRepository) FindThreadByRoom(ctx context.Context, room domain.RoomID) (domain.Thread, bool, error) {
	return r.findThread(ctx, domain.RoomThread(room))
}

// FindThreadByUserPair matches the pair regardless of argument order.
func (r *ConversationRepository) FindThreadByUserPair(ctx context.Context, a, b string) (domain.Thread, bool, error) {
	return r.findThread(ctx, domain.DirectThread(a, b))
}

func (r *ConversationRepository) findThread(ctx context.Context, key domain.ThreadKey) (domain.Thread, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Thread{}, false, err
	}
	var (
		thread domain.Thread
		found  bool
	)
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		thread, found, err = getThread(txn, key)
		return err
	})
	return thread, found, err
}

// CreateThread is idempotent: if another caller created the thread first, that thread is returned.
func (r *ConversationRepository) CreateThread(ctx context.Context, key domain.ThreadKey) (domain.Thread, error) {
	if !key.IsValid() {
		return domain.Thread{}, fmt.Errorf("create thread: invalid key")
	}
	var thread domain.Thread
	err := r.update(ctx, key, func(txn *badger.Txn) error {
		existing, found, err := getThread(txn, key)
		if err != nil {
			return err
		}
		if found {
			thread = existing
			return nil
		}
		thread = domain.Thread{Key: key, Length: 0, CreatedAt: r.now().UTC()}
		return txn.Set(threadKey(key), encodeThread(thread))
	})
	return thread, err
}

// AppendAndSave appends message at the end of the thread and returns it with its sequence.
// The append is all-or-nothing: a cancelled context before commit leaves the thread untouched.
func (r *ConversationRepository) AppendAndSave(ctx context.Context, thread domain.Thread, message domain.Message) (domain.Message, error) {
	key := thread.Key
	if !key.IsValid() {
		return domain.Message{}, fmt.Errorf("append: invalid thread key")
	}
	var stored domain.Message
	err := r.update(ctx, key, func(txn *badger.Txn) error {
		current, found, err := getThread(txn, key)
		if err != nil {
			return err
		}
		if !found {
			current = domain.Thread{Key: key, CreatedAt: r.now().UTC()}
		}
		stored = message
		stored.Seq = current.Length
		if err := txn.Set(messageKey(key, stored.Seq), encodeMessage(stored)); err != nil {
			return err
		}
		current.Length++
		if err := txn.Set(threadKey(key), encodeThread(current)); err != nil {
			return err
		}
		return ctx.Err()
	})
	if err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

// GetMessages retrieves one page of a thread, newest first, using a reverse prefix scan.
// The returned cursor is the sequence of the last message of the page; pass it back to
// get the next (older) page.
func (r *ConversationRepository) GetMessages(ctx context.Context, key domain.ThreadKey, cursor *string) ([]domain.Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	var byteMessages [][]byte
	var lastKey string
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix + key.String() + ":"
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Highest possible sequence, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[prefixLen:]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(byteMessages) == r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d message reached", r.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				byteMessages = append(byteMessages, value)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(byteMessages))
	for _, b := range byteMessages {
		message, err := decodeMessage(b)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	if len(messages) == 0 {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// ListThreads returns every thread header, ordered by key.
func (r *ConversationRepository) ListThreads() ([]domain.Thread, error) {
	var threads []domain.Thread
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(threadPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				thread, err := decodeThread(value)
				if err != nil {
					return err
				}
				threads = append(threads, thread)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return threads, err
}

// update runs fn in a read-write transaction while holding the stripe of the thread.
// The stripe serializes writers of one thread inside this process; the transaction conflict
// check covers anything that bypasses it, and conflicting commits are retried.
func (r *ConversationRepository) update(ctx context.Context, key domain.ThreadKey, fn func(txn *badger.Txn) error) error {
	unlock, err := r.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err = r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			return err
		}
		r.log.Debug("Transaction conflict, retrying", "thread", key.String(), "attempt", attempt)
	}
}

func (r *ConversationRepository) lock(ctx context.Context, key domain.ThreadKey) (func(), error) {
	stripe := r.locks[xxhash.Sum64String(key.String())%lockStripes]
	select {
	case stripe <- struct{}{}:
		return func() { <-stripe }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func getThread(txn *badger.Txn, key domain.ThreadKey) (domain.Thread, bool, error) {
	item, err := txn.Get(threadKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Thread{}, false, nil
	}
	if err != nil {
		return domain.Thread{}, false, err
	}
	var thread domain.Thread
	err = item.Value(func(value []byte) error {
		thread, err = decodeThread(value)
		return err
	})
	if err != nil {
		return domain.Thread{}, false, err
	}
	return thread, true, nil
}

func threadKey(key domain.ThreadKey) []byte {
	return []byte(threadPrefix + key.String())
}

func messageKey(key domain.ThreadKey, seq uint64) []byte {
	return []byte(messagePrefix + key.String() + ":" + padSeq(seq))
}

func padSeq(seq uint64) string {
	s := strconv.FormatUint(seq, 10)
	if len(s) >= 19 {
		return s
	}
	return "0000000000000000000"[:19-len(s)] + s
}
