// Package store persists the bot's per-account collections (reminders,
// weather subscriptions, calendar watches) as whole JSON documents.
//
// The access discipline is deliberately coarse: read the entire document,
// mutate in memory, write the entire document back atomically. At the scale
// of one chat account this beats carrying a database, and the Driver
// interface keeps the scheduling logic ignorant of the storage format so a
// proper embedded store can be swapped in later.
package store

import (
	"context"
	"encoding/json"
)

// Concern names one persisted collection.
type Concern string

const (
	ConcernReminders       Concern = "reminders"
	ConcernSubscriptions   Concern = "subscriptions"
	ConcernCalendarWatches Concern = "calendar_watches"
)

// Driver is the persisted-collection capability.
type Driver interface {
	// Load returns the raw document for a concern/account pair. A missing or
	// unreadable document is reported as nil bytes with no error: the bot
	// always has a safe empty state to start from.
	Load(ctx context.Context, concern Concern, account string) ([]byte, error)

	// Save atomically replaces the document. A reader never observes a
	// half-written document.
	Save(ctx context.Context, concern Concern, account string, doc []byte) error

	Close() error
}

// LoadDoc loads and decodes a document into T. Missing, unreadable, or
// corrupt documents all decode to the zero value of T.
func LoadDoc[T any](ctx context.Context, d Driver, concern Concern, account string) T {
	var doc T
	raw, err := d.Load(ctx, concern, account)
	if err != nil || len(raw) == 0 {
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Corrupt document: fall back to empty rather than crash.
		var empty T
		return empty
	}
	return doc
}

// SaveDoc encodes and atomically persists a document.
func SaveDoc[T any](ctx context.Context, d Driver, concern Concern, account string, doc T) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return d.Save(ctx, concern, account, raw)
}
