// Package store provides SQLite-backed durable storage for finish-line
// sequences.
//
// Each context owns two ordered sequences:
//   - results: finish observations, ranked by place (derived from time)
//   - scanned_bibs: scanner reads, ordered by seq (arrival order)
//
// plus one optional queue cursor (scan_cursors) naming the scan at the front
// of the pending queue.
//
// # Patterns
//
// All mutation goes through Update, which runs a function inside one
// transaction and commits only when it returns nil. There is no partial
// commit: an error or panic rolls the whole operation back.
//
// Every list query is totally ordered:
//   - results:      ORDER BY place ASC, id ASC
//   - scanned_bibs: ORDER BY seq ASC, id ASC
//
// results.scanned_bib_id is UNIQUE, so a scan is linked to at most one
// result. Callers that move scans between results use AssignSlots, which
// clears every affected link before writing the new ones.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
