package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrMalformedPayload is wrapped by every Decode failure.
var ErrMalformedPayload = errors.New("malformed payload")

// ErrUnencodable is wrapped by Encode when a record cannot be put on the wire.
var ErrUnencodable = errors.New("unencodable record")

// Codec converts a full ordered snapshot of records to bytes and back.
//
// Decode(Encode(list)) must equal list: same order, ids, text and
// timestamps.
type Codec interface {
	Encode(records []Record) ([]byte, error)
	Decode(payload []byte) ([]Record, error)
}

// JSONCodec encodes a snapshot as a JSON array of
// {"id","text","created_at"} objects, timestamps in RFC 3339 with
// nanoseconds. There is no envelope or version field.
type JSONCodec struct{}

type wireRecord struct {
	ID        uuid.UUID  `json:"id"`
	Text      string     `json:"text"`
	CreatedAt *time.Time `json:"created_at"`
}

// Encode serializes records in order.
func (JSONCodec) Encode(records []Record) ([]byte, error) {
	wire := make([]wireRecord, 0, len(records))
	for i := range records {
		r := &records[i]
		if r.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: record %d has no id", ErrUnencodable, i)
		}
		if !utf8.ValidString(r.Text) {
			return nil, fmt.Errorf("%w: record %d text is not valid UTF-8", ErrUnencodable, i)
		}
		wire = append(wire, wireRecord{ID: r.ID, Text: r.Text, CreatedAt: &r.CreatedAt})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}

	// json.Encoder adds a trailing newline
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses a snapshot produced by Encode. Anything that is not exactly
// one JSON array of well-formed records fails with ErrMalformedPayload.
func (JSONCodec) Decode(payload []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformedPayload)
	}
	if !utf8.Valid(trimmed) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var wire []wireRecord
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after array", ErrMalformedPayload)
	}

	out := make([]Record, 0, len(wire))
	seen := make(map[uuid.UUID]int, len(wire))
	for i, w := range wire {
		if w.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: record %d: missing id", ErrMalformedPayload, i)
		}
		if w.CreatedAt == nil {
			return nil, fmt.Errorf("%w: record %d: missing created_at", ErrMalformedPayload, i)
		}
		if prev, dup := seen[w.ID]; dup {
			return nil, fmt.Errorf("%w: record %d: duplicate id of record %d", ErrMalformedPayload, i, prev)
		}
		seen[w.ID] = i
		out = append(out, Record{ID: w.ID, Text: w.Text, CreatedAt: w.CreatedAt.UTC()})
	}
	return out, nil
}

// Ack is the reply a responder returns after applying a snapshot.
type Ack struct {
	Received int `json:"received"`
}

// EncodeAck builds the reply for a successfully applied snapshot of n records.
func EncodeAck(n int) []byte {
	b, _ := json.Marshal(Ack{Received: n})
	return b
}

// DecodeAck parses a reply. ok is false for an empty reply or one that is not
// an Ack; both still count as delivery acknowledgements.
func DecodeAck(b []byte) (Ack, bool) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Ack{}, false
	}
	var a Ack
	if err := json.Unmarshal(b, &a); err != nil {
		return Ack{}, false
	}
	return a, true
}
