// Package dbvalue models the values that cross the boundary between Go
// records and SQLite rows.
//
// A Value is one of the five SQLite storage classes. Records produce values
// through From when they encode themselves, and rows read back from the
// database produce values through FromDriver. Equality is by value: the diff
// used for partial updates relies on Equal treating Integer(1) and Real(1)
// as the same value, the way SQLite compares them.
package dbvalue
