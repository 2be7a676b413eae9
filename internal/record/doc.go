// Package record persists entities as table rows.
//
// An entity implements Record: it names its table and encodes its state
// into a container.Container. The package functions (Insert, Update,
// UpdateColumns, UpdateChanges, Save, Upsert, Delete, Exists and the
// AndFetch variants) resolve the table's key, compute the columns to
// write, synthesize one statement and run it on the Database's executor.
//
// # Hooks
//
// Entities opt into lifecycle hooks by implementing the Will*, Around* and
// Did* interfaces. Every insert, upsert and update is wrapped by the save
// hooks, so an insert runs:
//
//	WillSave → AroundSave(enter) → WillInsert → AroundInsert(INSERT) → DidInsert → AroundSave(exit) → DidSave
//
// A failing will hook stops the operation before any SQL. A failing
// statement skips the did hooks of every enclosing level. Save on a missing
// row enters the save hooks twice: once around the failed update, once
// around the insert that follows.
//
// # Errors
//
// Updates of a missing key return *dberr.RecordNotFoundError. Records that
// do not match their table return *dberr.ConfigurationError. Driver errors,
// including constraint violations, are returned unchanged.
package record
