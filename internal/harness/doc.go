// Package harness runs persistence scenarios against a fresh database.
//
// A scenario creates a schema, then drives the record API step by step
// with dynamic records: a table name plus ordered column values. Each
// dynamic record implements every lifecycle hook and logs it, so a run
// produces one trace interleaving hook calls, the statements they caused
// and each step's outcome.
//
// # Scenario Format
//
// Scenarios are YAML (.yaml, .yml) or CUE (.cue) files:
//
//	name: player_upsert
//	description: "Upsert resolves a unique name conflict"
//	schema:
//	  - CREATE TABLE player (id INTEGER PRIMARY KEY, name TEXT UNIQUE, score INTEGER)
//	steps:
//	  - op: insert
//	    table: player
//	    values: { id: null, name: Arthur, score: 1000 }
//	    expect: { rowid: 1 }
//	  - op: upsert_and_fetch
//	    table: player
//	    values: { id: null, name: Arthur, score: 100 }
//	    selection: [id, score]
//	    expect:
//	      row: { id: 1, score: 100 }
//	assertions:
//	  - type: table_rows
//	    table: player
//	    rows:
//	      - { id: 1, name: Arthur, score: 100 }
//	  - type: hook_count
//	    hook: did_insert
//	    count: 2
//
// Values keep their order, which is the order the record encodes them in.
// A !!binary scalar is a blob.
//
// # Hook Behavior
//
// A step may change how its record's hooks behave:
//
//	hooks:
//	  suppress: [update]    # around_update never calls the update
//	  fail: [will_delete]   # will_delete returns an error
//
// # Assertion Types
//
//   - table_rows: the table holds exactly these rows, in key order, or count rows
//   - statement_count: count statements were executed, optionally of one op
//   - hook_count: the hook was called count times
//
// # Traces
//
// Every event carries a sequence number that starts at 1 for each run.
// Traces are written as one canonical JSON object per line and compared
// with golden files in testdata/golden.
package harness
