// Package store declares the repository interface for persisting run
// progress snapshots, plus the record types shared by its implementations
// and the read API.
package store
