// Package history keeps a log of report pushes in a local SQLite database.
//
// The backend is optional: with storage.backend "none" the server runs with a
// nil *Store and the push log is simply empty.
package history
