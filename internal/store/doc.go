// Package store provides persistent storage for taskd using SQLite.
//
// # Architecture
//
// The store package splits persistence into two interfaces:
//
//   - TaskStore: task CRUD and predicate-driven listing
//   - UserStore: account records used by registration and login
//
// Store composes both with Ping and Close. SQLiteStore implements Store in a
// single struct; MockStore is an in-memory implementation for tests.
//
// # Concurrency
//
// Every task carries a version that starts at 1. UpdateTask only writes when
// the caller's version matches the stored one and then increments it, so two
// racing writers cannot both succeed. The loser gets ErrConflict and should
// re-read the task and try again.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// Deadlines are stored as YYYY-MM-DD text and timestamps as RFC 3339 text.
// Deleting a user cascades to their tasks.
//
// # Errors
//
//   - ErrNotFound: requested entity does not exist
//   - ErrConflict: optimistic version check failed
//   - ErrEmailExists: email already registered
//
// # Testing
//
// Use NewMockStore() for unit tests, or NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
