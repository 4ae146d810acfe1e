// Package sqlite archives recorded LiDAR runs in a SQLite database.
//
// A run is a snapshot of storage.Data keyed by the xxhash digest of its
// scan log encoding, so saving the same recording twice is a no-op. The
// schema is managed by embedded golang-migrate migrations.
package sqlite
