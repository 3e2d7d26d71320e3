package storage

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the stored records. They follow protobuf wire rules:
// never reuse a number, unknown fields are skipped on read.
const (
	messageFieldID        protowire.Number = 1
	messageFieldSeq       protowire.Number = 2
	messageFieldUsername  protowire.Number = 3
	messageFieldText      protowire.Number = 4
	messageFieldAudioURL  protowire.Number = 5
	messageFieldVideoURL  protowire.Number = 6
	messageFieldSeen      protowire.Number = 7
	messageFieldTimestamp protowire.Number = 8

	threadFieldKey       protowire.Number = 1
	threadFieldLength    protowire.Number = 2
	threadFieldCreatedAt protowire.Number = 3
)

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, messageFieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, m.ID[:])
	b = protowire.AppendTag(b, messageFieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Seq)
	b = protowire.AppendTag(b, messageFieldUsername, protowire.BytesType)
	b = protowire.AppendString(b, m.Username)
	b = protowire.AppendTag(b, messageFieldText, protowire.BytesType)
	b = protowire.AppendString(b, m.Text)
	if m.AudioURL != nil {
		b = protowire.AppendTag(b, messageFieldAudioURL, protowire.BytesType)
		b = protowire.AppendString(b, *m.AudioURL)
	}
	if m.VideoURL != nil {
		b = protowire.AppendTag(b, messageFieldVideoURL, protowire.BytesType)
		b = protowire.AppendString(b, *m.VideoURL)
	}
	b = protowire.AppendTag(b, messageFieldSeen, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(m.Seen))
	b = protowire.AppendTag(b, messageFieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Timestamp.UnixNano()))
	return b
}

func decodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.Message{}, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == messageFieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return domain.Message{}, fmt.Errorf("decode message id: %w", err)
			}
			m.ID = id
			b = b[n:]
		case num == messageFieldSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			m.Seq = v
			b = b[n:]
		case num == messageFieldUsername && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			m.Username = v
			b = b[n:]
		case num == messageFieldText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			m.Text = v
			b = b[n:]
		case num == messageFieldAudioURL && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			m.AudioURL = lo.ToPtr(v)
			b = b[n:]
		case num == messageFieldVideoURL && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			m.VideoURL = lo.ToPtr(v)
			b = b[n:]
		case num == messageFieldSeen && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			m.Seen = protowire.DecodeBool(v)
			b = b[n:]
		case num == messageFieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			m.Timestamp = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

func encodeThread(t domain.Thread) []byte {
	var b []byte
	b = protowire.AppendTag(b, threadFieldKey, protowire.BytesType)
	b = protowire.AppendString(b, t.Key.String())
	b = protowire.AppendTag(b, threadFieldLength, protowire.VarintType)
	b = protowire.AppendVarint(b, t.Length)
	b = protowire.AppendTag(b, threadFieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.CreatedAt.UnixNano()))
	return b
}

func decodeThread(b []byte) (domain.Thread, error) {
	var t domain.Thread
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.Thread{}, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == threadFieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Thread{}, protowire.ParseError(n)
			}
			key, err := domain.ParseThreadKey(v)
			if err != nil {
				return domain.Thread{}, err
			}
			t.Key = key
			b = b[n:]
		case num == threadFieldLength && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Thread{}, protowire.ParseError(n)
			}
			t.Length = v
			b = b[n:]
		case num == threadFieldCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Thread{}, protowire.ParseError(n)
			}
			t.CreatedAt = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.Thread{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return t, nil
}
