package record

import "time"

// DefaultTimestampLayout renders timestamps as "2023-11-18 14:05:09".
const DefaultTimestampLayout = "2006-01-02 15:04:05"

// Formatter renders record timestamps for display.
// It is a plain value passed to whoever renders; there is no shared instance.
type Formatter struct {
	Layout   string
	Location *time.Location
}

// DefaultFormatter formats in local time with DefaultTimestampLayout.
func DefaultFormatter() Formatter {
	return Formatter{Layout: DefaultTimestampLayout, Location: time.Local}
}

// Format renders t. Empty fields fall back to the defaults.
func (f Formatter) Format(t time.Time) string {
	layout := f.Layout
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(layout)
}

// FormatTimestamp renders r.CreatedAt with f.
func (f Formatter) FormatTimestamp(r Record) string {
	return f.Format(r.CreatedAt)
}
