// Package store holds the authoritative in-memory ordered list of records for
// one device.
//
// Insertion order is display order and is preserved by every operation.
// The Store is the only mutator of that list; callers (and the transport
// layer in particular) only ever see copies taken by Records.
//
// # Operations
//
//   - Fetch: replace the list with the canonical seed set
//   - Overwrite: replace the list wholesale (last writer wins)
//   - Append: add one locally authored record at the end
//   - PopLast: remove and return the last record, if any
//   - Edit: replace the text of the record at an index
//
// Edit with an out-of-range index is a programming error and panics.
package store
