package record

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

// Record is one synchronized text item.
type Record struct {
	ID        ID        `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Factory creates Records with a configurable id source and clock.
// The zero value uses UUIDv7 ids and time.Now.
type Factory struct {
	IDs IDGenerator
	Now func() time.Time
}

// New creates a record with a fresh id using the default generator.
func New(text string, createdAt time.Time) Record {
	return Factory{}.New(text, createdAt)
}

// New creates a record with a fresh id. The text is NFC-normalized and the
// timestamp is converted to UTC with its monotonic reading stripped.
func (f Factory) New(text string, createdAt time.Time) Record {
	ids := f.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return Record{
		ID:        ids.Generate(),
		Text:      NormalizeText(text),
		CreatedAt: normalizeTime(createdAt),
	}
}

// NewNow creates a record stamped with the factory's clock.
func (f Factory) NewNow(text string) Record {
	now := f.Now
	if now == nil {
		now = time.Now
	}
	return f.New(text, now())
}

// Equal reports whether r and other are the same record.
// Identity is by ID only: text and timestamp are ignored.
func (r Record) Equal(other Record) bool {
	return r.ID == other.ID
}

// WithText returns a copy of r carrying new text. ID and CreatedAt are kept.
func (r Record) WithText(text string) Record {
	r.Text = NormalizeText(text)
	return r
}

// NormalizeText returns s in Unicode NFC so visually identical messages typed
// on different devices compare equal.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}

func normalizeTime(t time.Time) time.Time {
	// UTC strips the monotonic reading as well as the location.
	return t.UTC()
}

// Clone returns an independent copy of records. A nil input yields an empty,
// non-nil slice.
func Clone(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
