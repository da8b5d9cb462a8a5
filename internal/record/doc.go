// Package record defines the unit of synchronized data: one short text
// message with a stable identity and a creation time.
//
// A Record's ID is generated when the record is created and is never an
// input. Equality is by ID only. CreatedAt is kept in UTC without a
// monotonic clock reading, so the wire codec reproduces it exactly.
//
// The package also owns the wire format for a full snapshot of records
// (see Codec) and the acknowledgement sent back by a responder.
package record
