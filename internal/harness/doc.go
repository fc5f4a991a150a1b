// Package harness runs finish-line scenarios against a real engine.
//
// A scenario creates one context, drives it through a list of operations,
// and then asserts on the trace and the final board. Every step is checked
// against the board invariants as it runs.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: literal_race
//	description: "Match, correct, confirm, and export one finisher"
//	context:
//	  name: "Spring 5K"
//	  start_offset: 32400
//	steps:
//	  - op: result
//	    as: r1
//	    args: { device_position: 1, time: "00:10:01.23" }
//	  - op: scan
//	    as: s1
//	    args: { bib: "42" }
//	  - op: use
//	    args: { result: r1, scan: s1 }
//	    expect:
//	      result: { bib_number: "42" }
//	  - op: delete_result
//	    args: { result: r1 }
//	    expect:
//	      error: PARAMETER
//	assertions:
//	  - type: slots
//	    slots: ["42"]
//	  - type: artifact
//	    content: "1,42,09:10:01.23\r\n"
//
// Steps name the rows they create with "as". Later steps refer to them by
// that label. Corrections may use "scan_of: r1" to mean the scan currently
// held by result r1, which is how a blank scan created by an insert is
// addressed.
//
// # Operations
//
//   - result: device_position, time (seconds or "hh:mm:ss.dd"), bib
//   - scan: bib
//   - use, insert, delete: result, scan or scan_of
//   - confirm, delete_result: result
//   - update_result: result, bib, time, device_position
//   - rewrite, activate: no arguments
//   - set_setting: name, value
//
// # Assertion Types
//
//   - trace_contains: an op appears in the trace with matching args
//   - trace_order: ops appear in the given order
//   - trace_count: an op appears exactly N times
//   - final_state: a row of a store table has the expected values
//   - slots: the final slot view, in place order
//   - pending: bibs of the unmatched scan queue
//   - cursor: bib of the cursor scan ("" for none)
//   - artifact: exact export artifact content
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory database, a temporary output directory,
// and counting operation tokens, so traces and boards are reproducible and
// can be compared against golden snapshots.
package harness
