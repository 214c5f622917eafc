package store

import "github.com/botcash/nostr-bridge/src/nostr"

// Store is the interface for backend stores. It holds the four record
// families the bridge needs: events by id, linked identities by pubkey and by
// address, relayed-message audit rows by event id and by transaction id, and
// per-minute rate windows.
type Store interface {
	// GetEvent returns a stored event by id.
	GetEvent(id string) (*nostr.Event, error)
	// SetEvent inserts an event. Inserting an id that already exists returns
	// a KeyAlreadyExists store error.
	SetEvent(event *nostr.Event) error
	// Events returns stored events matching any of the filters, newest
	// first, capped at max items overall and at each filter's own limit.
	Events(filters []nostr.Filter, max int) []*nostr.Event
	// EventCount returns the number of stored events.
	EventCount() int
	// GetIdentity returns the identity record for a pubkey, whatever its
	// status.
	GetIdentity(pubkey string) (*LinkedIdentity, error)
	// GetIdentityByAddress returns the active identity record for a Botcash
	// address.
	GetIdentityByAddress(address string) (*LinkedIdentity, error)
	// SetIdentity inserts or replaces the identity record for its pubkey.
	SetIdentity(identity *LinkedIdentity) error
	// Identities returns all identity records.
	Identities() []*LinkedIdentity
	// GetRelayedByEventID returns the audit row for a native event id.
	GetRelayedByEventID(eventID string) (*RelayedMessage, error)
	// GetRelayedByTxID returns the audit row for a Botcash transaction id.
	GetRelayedByTxID(txID string) (*RelayedMessage, error)
	// SetRelayed inserts an audit row.
	SetRelayed(relayed *RelayedMessage) error
	// IncrementRate performs the rate-limit check-and-increment for
	// (pubkey, minute) as one atomic step: if the current count is below
	// ceiling it is incremented and true is returned, otherwise the count is
	// left alone and false is returned.
	IncrementRate(pubkey string, minute int64, ceiling int) (bool, error)
	// RateCount returns the current count for (pubkey, minute).
	RateCount(pubkey string, minute int64) int
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
