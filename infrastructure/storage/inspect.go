package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// Record is a human readable view of one stored key, for operator tooling.
type Record struct {
	Key      string
	Kind     string
	Thread   string
	Seq      string
	Username string
	Detail   string
	At       time.Time
}

// DescribeRecord decodes a raw key/value pair of the conversation store.
// Unknown keys are reported as RAW with their size.
func DescribeRecord(key string, val []byte) (Record, error) {
	record := Record{Key: key, Kind: "RAW", Detail: fmt.Sprintf("Size: %d bytes", len(val))}
	switch {
	case strings.HasPrefix(key, threadPrefix):
		thread, err := decodeThread(val)
		if err != nil {
			return record, err
		}
		record.Kind = "THREAD"
		record.Thread = thread.Key.String()
		record.Seq = fmt.Sprintf("%d", thread.Length)
		record.Detail = fmt.Sprintf("%d messages", thread.Length)
		record.At = thread.CreatedAt
	case strings.HasPrefix(key, messagePrefix):
		message, err := decodeMessage(val)
		if err != nil {
			return record, err
		}
		record.Kind = "MESSAGE"
		record.Thread = strings.TrimSuffix(strings.TrimPrefix(key, messagePrefix), ":"+padSeq(message.Seq))
		record.Seq = fmt.Sprintf("%d", message.Seq)
		record.Username = message.Username
		record.Detail = describeContent(message.Text, message.AudioURL, message.VideoURL)
		record.At = message.Timestamp
	}
	return record, nil
}

func describeContent(text string, audio, video *string) string {
	parts := lo.Compact([]string{
		text,
		lo.Ternary(audio != nil, "[audio] "+lo.FromPtr(audio), ""),
		lo.Ternary(video != nil, "[video] "+lo.FromPtr(video), ""),
	})
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, " ")
}

// ScanRecords walks every key under prefix in key order.
func ScanRecords(db *badger.DB, prefix string, fn func(Record, error)) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(val []byte) error {
				fn(DescribeRecord(key, val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
