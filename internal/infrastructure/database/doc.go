// Package database provides SQLite connection management for SmartChill
// services that keep local state, such as the notifier's alert history.
//
// It wraps database/sql with the connection pragmas SQLite needs to behave
// under concurrent access (WAL journaling, busy timeout, foreign keys) and
// restricts the pool to a single connection since SQLite allows one writer.
package database
