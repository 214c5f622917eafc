package store

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger"

	cm "github.com/botcash/nostr-bridge/src/common"
	"github.com/botcash/nostr-bridge/src/nostr"
)

const (
	eventPrefix    = "event"
	identityPrefix = "identity"
	relayedPrefix  = "relayed"
	ratePrefix     = "rate"
)

// BadgerStore implements the Store interface with a badger database behind
// the InmemStore. Reads are served from memory; writes go to the cache first
// and then to disk. Opening an existing database reloads every record into
// the cache, so queries never need to scan disk.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

// NewBadgerStore opens (or creates) the badger database at path and loads
// its contents.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}

	if err := store.load(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

// LoadBadgerStore opens an existing database; it fails if path does not
// exist.
func LoadBadgerStore(path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return NewBadgerStore(path)
}

//==============================================================================
//Keys

func eventKey(id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", eventPrefix, id))
}

func identityKey(pubkey string) []byte {
	return []byte(fmt.Sprintf("%s_%s", identityPrefix, pubkey))
}

func relayedKey(eventID string, txID string) []byte {
	return []byte(fmt.Sprintf("%s_%s_%s", relayedPrefix, eventID, txID))
}

func rateWindowKey(pubkey string, minute int64) []byte {
	return []byte(fmt.Sprintf("%s_%s_%d", ratePrefix, pubkey, minute))
}

//==============================================================================
//Implement the Store interface

// GetEvent implements the Store interface.
func (s *BadgerStore) GetEvent(id string) (*nostr.Event, error) {
	return s.inmemStore.GetEvent(id)
}

// SetEvent implements the Store interface.
func (s *BadgerStore) SetEvent(event *nostr.Event) error {
	if err := s.inmemStore.SetEvent(event); err != nil {
		return err
	}
	return s.dbSetEvent(event)
}

// Events implements the Store interface.
func (s *BadgerStore) Events(filters []nostr.Filter, max int) []*nostr.Event {
	return s.inmemStore.Events(filters, max)
}

// EventCount implements the Store interface.
func (s *BadgerStore) EventCount() int {
	return s.inmemStore.EventCount()
}

// GetIdentity implements the Store interface.
func (s *BadgerStore) GetIdentity(pubkey string) (*LinkedIdentity, error) {
	return s.inmemStore.GetIdentity(pubkey)
}

// GetIdentityByAddress implements the Store interface.
func (s *BadgerStore) GetIdentityByAddress(address string) (*LinkedIdentity, error) {
	return s.inmemStore.GetIdentityByAddress(address)
}

// SetIdentity implements the Store interface.
func (s *BadgerStore) SetIdentity(identity *LinkedIdentity) error {
	if err := s.inmemStore.SetIdentity(identity); err != nil {
		return err
	}
	return s.dbSetIdentity(identity)
}

// Identities implements the Store interface.
func (s *BadgerStore) Identities() []*LinkedIdentity {
	return s.inmemStore.Identities()
}

// GetRelayedByEventID implements the Store interface.
func (s *BadgerStore) GetRelayedByEventID(eventID string) (*RelayedMessage, error) {
	return s.inmemStore.GetRelayedByEventID(eventID)
}

// GetRelayedByTxID implements the Store interface.
func (s *BadgerStore) GetRelayedByTxID(txID string) (*RelayedMessage, error) {
	return s.inmemStore.GetRelayedByTxID(txID)
}

// SetRelayed implements the Store interface.
func (s *BadgerStore) SetRelayed(relayed *RelayedMessage) error {
	if err := s.inmemStore.SetRelayed(relayed); err != nil {
		return err
	}
	return s.dbSetRelayed(relayed)
}

// IncrementRate implements the Store interface. The check-and-increment is
// atomic in the cache; the durable copy is written after the fact and is
// advisory only.
func (s *BadgerStore) IncrementRate(pubkey string, minute int64, ceiling int) (bool, error) {
	allowed, err := s.inmemStore.IncrementRate(pubkey, minute, ceiling)
	if err != nil || !allowed {
		return allowed, err
	}
	window := &RateWindow{
		PubKey: pubkey,
		Minute: minute,
		Count:  s.inmemStore.RateCount(pubkey, minute),
	}
	return true, s.dbSetRateWindow(window)
}

// RateCount implements the Store interface.
func (s *BadgerStore) RateCount(pubkey string, minute int64) int {
	return s.inmemStore.RateCount(pubkey, minute)
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//==============================================================================
//DB Methods

func (s *BadgerStore) dbSetEvent(event *nostr.Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(eventKey(event.ID), data)
	})
}

func (s *BadgerStore) dbSetIdentity(identity *LinkedIdentity) error {
	data, err := identity.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(identityKey(identity.PubKey), data)
	})
}

func (s *BadgerStore) dbSetRelayed(relayed *RelayedMessage) error {
	data, err := relayed.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(relayedKey(relayed.EventID, relayed.TxID), data)
	})
}

func (s *BadgerStore) dbSetRateWindow(window *RateWindow) error {
	data, err := window.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(rateWindowKey(window.PubKey, window.Minute), data)
	})
}

// load replays every persisted record into the inmem cache.
func (s *BadgerStore) load() error {
	return s.db.View(func(tx *badger.Txn) error {
		if err := s.loadEvents(tx); err != nil {
			return err
		}
		if err := s.loadIdentities(tx); err != nil {
			return err
		}
		if err := s.loadRelayed(tx); err != nil {
			return err
		}
		return s.loadRateWindows(tx)
	})
}

func (s *BadgerStore) loadEvents(tx *badger.Txn) error {
	return iteratePrefix(tx, eventPrefix, func(data []byte) error {
		event := new(nostr.Event)
		if err := event.Unmarshal(data); err != nil {
			return err
		}
		err := s.inmemStore.SetEvent(event)
		if cm.IsStore(err, cm.KeyAlreadyExists) {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) loadIdentities(tx *badger.Txn) error {
	return iteratePrefix(tx, identityPrefix, func(data []byte) error {
		identity := new(LinkedIdentity)
		if err := identity.Unmarshal(data); err != nil {
			return err
		}
		return s.inmemStore.SetIdentity(identity)
	})
}

func (s *BadgerStore) loadRelayed(tx *badger.Txn) error {
	return iteratePrefix(tx, relayedPrefix, func(data []byte) error {
		relayed := new(RelayedMessage)
		if err := relayed.Unmarshal(data); err != nil {
			return err
		}
		return s.inmemStore.SetRelayed(relayed)
	})
}

func (s *BadgerStore) loadRateWindows(tx *badger.Txn) error {
	return iteratePrefix(tx, ratePrefix, func(data []byte) error {
		window := new(RateWindow)
		if err := window.Unmarshal(data); err != nil {
			return err
		}
		s.inmemStore.Lock()
		s.inmemStore.rateWindows[rateKey(window.PubKey, window.Minute)] = window
		s.inmemStore.Unlock()
		return nil
	})
}

func iteratePrefix(tx *badger.Txn, prefix string, fn func(data []byte) error) error {
	opts := badger.DefaultIteratorOptions
	it := tx.NewIterator(opts)
	defer it.Close()

	p := []byte(prefix + "_")
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			return fn(val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
