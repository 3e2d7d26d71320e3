package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

var _ contract.IMessageIndex = (*MessageIndex)(nil)

const (
	fieldID        = "_id"
	fieldThread    = "thread"
	fieldText      = "text"
	fieldUsername  = "username"
	fieldSeq       = "seq"
	fieldTimestamp = "timestamp"
)

// MessageIndex is the full-text index of message texts, one document per message.
// Documents are partitioned by thread key so a search never leaks across threads.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
	limit  int
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger, limit int) *MessageIndex {
	if limit <= 0 {
		limit = 50
	}
	return &MessageIndex{writer: writer, log: log, limit: limit}
}

// Index adds or replaces the document of message. Messages without text are skipped.
func (i *MessageIndex) Index(ctx context.Context, key domain.ThreadKey, message domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(message.Text) == "" {
		return nil
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldThread, key.String()).StoreValue()).
		AddField(bluge.NewTextField(fieldText, message.Text).StoreValue()).
		AddField(bluge.NewKeywordField(fieldUsername, message.Username).StoreValue()).
		AddField(bluge.NewNumericField(fieldSeq, float64(message.Seq)).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldTimestamp, message.Timestamp).StoreValue())

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", message.ID, err)
	}
	return nil
}

// Search returns the best matching messages of one thread, highest score first.
func (i *MessageIndex) Search(ctx context.Context, key domain.ThreadKey, query string) ([]domain.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.SearchHit{}, nil
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(key.String()).SetField(fieldThread)).
		AddMust(bluge.NewMatchQuery(query).SetField(fieldText))
	request := bluge.NewTopNSearch(i.limit, q)

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", key, err)
	}

	hits := make([]domain.SearchHit, 0)
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := domain.SearchHit{Score: match.Score}
		var decodeErr error
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldID:
				hit.MessageID, decodeErr = uuid.ParseBytes(value)
			case fieldText:
				hit.Text = string(value)
			case fieldUsername:
				hit.Username = string(value)
			case fieldSeq:
				var seq float64
				seq, decodeErr = bluge.DecodeNumericFloat64(value)
				hit.Seq = uint64(seq)
			case fieldTimestamp:
				var at time.Time
				at, decodeErr = bluge.DecodeDateTime(value)
				hit.Timestamp = at.UTC()
			}
			return decodeErr == nil
		})
		if visitErr != nil {
			return nil, visitErr
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("decode search hit: %w", decodeErr)
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}
