package store

import (
	"fmt"
	"sort"
	"sync"

	cm "github.com/botcash/nostr-bridge/src/common"
	"github.com/botcash/nostr-bridge/src/nostr"
)

// InmemStore implements the Store interface with in-memory maps. All access
// is guarded by a single RWMutex; the rate-limit check-and-increment runs
// under the write lock so it is one atomic step.
type InmemStore struct {
	sync.RWMutex

	events      map[string]*nostr.Event
	eventOrder  []string
	identities  map[string]*LinkedIdentity
	byAddress   map[string]string
	relayedByEv map[string]*RelayedMessage
	relayedByTx map[string]*RelayedMessage
	rateWindows map[string]*RateWindow
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		events:      make(map[string]*nostr.Event),
		identities:  make(map[string]*LinkedIdentity),
		byAddress:   make(map[string]string),
		relayedByEv: make(map[string]*RelayedMessage),
		relayedByTx: make(map[string]*RelayedMessage),
		rateWindows: make(map[string]*RateWindow),
	}
}

func rateKey(pubkey string, minute int64) string {
	return fmt.Sprintf("%s_%d", pubkey, minute)
}

// GetEvent implements the Store interface.
func (s *InmemStore) GetEvent(id string) (*nostr.Event, error) {
	s.RLock()
	defer s.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return nil, cm.NewStoreErr("Event", cm.KeyNotFound, id)
	}
	return event, nil
}

// SetEvent implements the Store interface.
func (s *InmemStore) SetEvent(event *nostr.Event) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return cm.NewStoreErr("Event", cm.KeyAlreadyExists, event.ID)
	}
	s.events[event.ID] = event
	s.eventOrder = append(s.eventOrder, event.ID)
	return nil
}

// Events implements the Store interface. Matches are returned newest first.
func (s *InmemStore) Events(filters []nostr.Filter, max int) []*nostr.Event {
	s.RLock()
	defer s.RUnlock()

	sorted := make([]*nostr.Event, 0, len(s.eventOrder))
	for _, id := range s.eventOrder {
		sorted = append(sorted, s.events[id])
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt > sorted[j].CreatedAt
	})

	seen := map[string]bool{}
	res := []*nostr.Event{}
	for i := range filters {
		filter := filters[i]
		limit := max
		if filter.Limit > 0 && filter.Limit < max {
			limit = filter.Limit
		}
		count := 0
		for _, event := range sorted {
			if count >= limit || len(res) >= max {
				break
			}
			if !filter.Matches(event) {
				continue
			}
			count++
			if seen[event.ID] {
				continue
			}
			seen[event.ID] = true
			res = append(res, event)
		}
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt > res[j].CreatedAt
	})
	return res
}

// EventCount implements the Store interface.
func (s *InmemStore) EventCount() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.events)
}

// GetIdentity implements the Store interface.
func (s *InmemStore) GetIdentity(pubkey string) (*LinkedIdentity, error) {
	s.RLock()
	defer s.RUnlock()

	identity, ok := s.identities[pubkey]
	if !ok {
		return nil, cm.NewStoreErr("Identity", cm.KeyNotFound, pubkey)
	}
	return identity, nil
}

// GetIdentityByAddress implements the Store interface. Only active links are
// indexed by address.
func (s *InmemStore) GetIdentityByAddress(address string) (*LinkedIdentity, error) {
	s.RLock()
	defer s.RUnlock()

	pubkey, ok := s.byAddress[address]
	if !ok {
		return nil, cm.NewStoreErr("Identity", cm.KeyNotFound, address)
	}
	return s.identities[pubkey], nil
}

// SetIdentity implements the Store interface.
func (s *InmemStore) SetIdentity(identity *LinkedIdentity) error {
	s.Lock()
	defer s.Unlock()

	if prev, ok := s.identities[identity.PubKey]; ok && prev.Address != identity.Address {
		delete(s.byAddress, prev.Address)
	}
	s.identities[identity.PubKey] = identity

	if identity.Status == StatusActive {
		s.byAddress[identity.Address] = identity.PubKey
	} else {
		// Keep the address index pointing at active links only.
		if owner, ok := s.byAddress[identity.Address]; ok && owner == identity.PubKey {
			delete(s.byAddress, identity.Address)
		}
	}
	return nil
}

// Identities implements the Store interface.
func (s *InmemStore) Identities() []*LinkedIdentity {
	s.RLock()
	defer s.RUnlock()

	res := make([]*LinkedIdentity, 0, len(s.identities))
	for _, identity := range s.identities {
		res = append(res, identity)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].PubKey < res[j].PubKey
	})
	return res
}

// GetRelayedByEventID implements the Store interface.
func (s *InmemStore) GetRelayedByEventID(eventID string) (*RelayedMessage, error) {
	s.RLock()
	defer s.RUnlock()

	relayed, ok := s.relayedByEv[eventID]
	if !ok {
		return nil, cm.NewStoreErr("Relayed", cm.KeyNotFound, eventID)
	}
	return relayed, nil
}

// GetRelayedByTxID implements the Store interface.
func (s *InmemStore) GetRelayedByTxID(txID string) (*RelayedMessage, error) {
	s.RLock()
	defer s.RUnlock()

	relayed, ok := s.relayedByTx[txID]
	if !ok {
		return nil, cm.NewStoreErr("Relayed", cm.KeyNotFound, txID)
	}
	return relayed, nil
}

// SetRelayed implements the Store interface.
func (s *InmemStore) SetRelayed(relayed *RelayedMessage) error {
	s.Lock()
	defer s.Unlock()

	if relayed.EventID != "" {
		s.relayedByEv[relayed.EventID] = relayed
	}
	if relayed.TxID != "" {
		s.relayedByTx[relayed.TxID] = relayed
	}
	return nil
}

// IncrementRate implements the Store interface.
func (s *InmemStore) IncrementRate(pubkey string, minute int64, ceiling int) (bool, error) {
	s.Lock()
	defer s.Unlock()

	key := rateKey(pubkey, minute)
	window, ok := s.rateWindows[key]
	if !ok {
		window = &RateWindow{PubKey: pubkey, Minute: minute}
		s.rateWindows[key] = window
	}
	if window.Count >= ceiling {
		return false, nil
	}
	window.Count++
	return true, nil
}

// RateCount implements the Store interface.
func (s *InmemStore) RateCount(pubkey string, minute int64) int {
	s.RLock()
	defer s.RUnlock()

	if window, ok := s.rateWindows[rateKey(pubkey, minute)]; ok {
		return window.Count
	}
	return 0
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
