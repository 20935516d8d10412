// Package harness runs scripted engine scenarios for habitsync.
//
// A scenario seeds a local snapshot, drives the engine through a flow of
// user operations and checks the resulting scores, journal and queued
// changes. Every step records the scores of all innerfaces and states, so
// a scenario's trace doubles as a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	seed:
//	  innerfaces:
//	    - { id: stamina, name: Stamina, initialScore: 5 }
//	  protocols:
//	    - { id: run, name: Run, weight: 0.5, targets: [stamina] }
//	flow:
//	  - invoke: checkin
//	    args: { protocol: run, direction: 1 }
//	  - invoke: checkin
//	    args: { protocol: missing }
//	    expect:
//	      outcome: unknown_entity
//	assertions:
//	  - type: score
//	    kind: innerfaces
//	    id: stamina
//	    value: 5.5
//	  - type: queued
//	    kinds: [append-journal-entry]
//
// # Operations
//
//   - checkin: protocol, direction (default 1)
//   - quick: action
//   - edit: innerface, delta, note
//   - delete_entry: id
//   - mutate: kind, id, fields
//   - delete_row: kind, id
//   - set_order: kind, order
//   - clear_all
//
// # Assertion Types
//
//   - trace_contains: an operation appears in the trace with matching args
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - score: final score of an innerface or state
//   - journal_count: final number of journal entries
//   - queued: exact list of change kinds handed to the sync queue
//
// # Deterministic Testing
//
// The engine runs against an in-memory store with a stepping fake clock
// and sequential entry ids ("e-0001", "e-0002", ...), so traces are
// byte-identical across runs.
package harness
