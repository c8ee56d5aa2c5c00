// Package store is the append-only assertion log.
//
// Assertions are events: once appended they are never updated or deleted.
// Retraction and scope changes are themselves new rows or scope updates
// that preserve the original record, so any past state can be recovered by
// replay.
//
// The store runs on SQLite (the default, via mattn/go-sqlite3) or Postgres
// (via lib/pq). The schema and every compiled plan stay inside the SQL
// subset the two engines share.
package store
