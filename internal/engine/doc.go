// Package engine implements the finish-line reconciliation engine.
//
// A context owns two sequences that arrive independently: results from the
// timing device and scanned bibs from the barcode scanner. The engine keeps
// them paired, ranks results by finish, confirms reviewed prefixes, and keeps
// the export artifact in step with the confirmed rows.
//
// ARCHITECTURE:
//
// Gate, then transaction:
// Every mutating operation acquires the Gate, runs inside one store
// transaction, and releases the gate on every exit path. Within the
// transaction the operation mutates the sequences, recomputes places, runs
// the opportunistic matching pass, and checks the board invariants. Any
// error, including a broken invariant, rolls the whole operation back.
//
// Slots:
// Each result holds one slot: a linked scan, a hole (had a scan that was
// removed), or nothing. had_scanned_bib is true for a prefix of the results
// in place order, and linked scan orders increase along that prefix. Insert
// and delete corrections shift slots along the board; matching fills empty
// slots from the pending queue.
//
// Pending queue:
// Pending scans are the unlinked scans after the last matched scan. The queue
// cursor names the front of the queue after an insert pushes a scan past the
// last result, and is cleared when matching consumes it.
//
// Export:
// The artifact is a projection of the confirmed rows. After commit the
// engine appends when the new projection extends the old one and rewrites
// otherwise. The context's export_dirty flag, set in the operation's own
// transaction and cleared after a successful write, forces a rewrite after
// any failed write.
//
// Changes:
// After commit, every mutating operation on a context sends a Change to the
// Notifier. Changes carry a Clock sequence number so subscribers can order
// them and detect gaps.
package engine
