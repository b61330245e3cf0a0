package db

import "sync"

// SQLiteWriteMutex serializes SQLite write operations.
//
// SQLite allows one writer at a time, even with WAL mode enabled. The tool
// dispatcher, build runner, and status reconciler all write concurrently, so
// write paths (INSERT, UPDATE, DELETE) acquire this lock to avoid
// SQLITE_BUSY errors.
//
// Usage:
//
//	db.SQLiteWriteMutex.Lock()
//	defer db.SQLiteWriteMutex.Unlock()
//	// ... perform database write operation ...
var SQLiteWriteMutex sync.Mutex
