package store

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// LinkStatus is the lifecycle state of an identity link.
type LinkStatus string

const (
	// StatusPending means a challenge was issued and awaits a signature.
	StatusPending LinkStatus = "pending"
	// StatusActive means the link was verified and recorded on-chain.
	StatusActive LinkStatus = "active"
	// StatusUnlinked means the user terminated the link.
	StatusUnlinked LinkStatus = "unlinked"
	// StatusSuspended means an operator suspended the link.
	StatusSuspended LinkStatus = "suspended"
)

// PrivacyMode is a linked user's mirroring preference.
type PrivacyMode string

const (
	// FullMirror mirrors everything in both directions.
	FullMirror PrivacyMode = "full_mirror"
	// Selective mirrors inbound events but does not auto-mirror the feed.
	Selective PrivacyMode = "selective"
	// ReadOnly never bridges inbound events.
	ReadOnly PrivacyMode = "read_only"
	// Private bridges direct messages only.
	Private PrivacyMode = "private"
)

// Relay directions recorded on RelayedMessage rows.
const (
	DirectionNativeToBotcash = "native_to_bc"
	DirectionBotcashToNative = "bc_to_native"
)

// LinkedIdentity associates a Nostr pubkey with a Botcash address. There is
// one record per pubkey; at most one may be active per pubkey and per
// address. Challenge fields are only populated while the link is pending.
type LinkedIdentity struct {
	PubKey             string
	Npub               string
	Address            string
	Status             LinkStatus
	Challenge          string
	ChallengeExpiresAt int64
	LinkTxID           string
	LinkEventID        string
	PrivacyMode        PrivacyMode
	CreatedAt          int64
	LinkedAt           int64
	UnlinkedAt         int64
}

// RelayedMessage is the audit record of one successful bridge operation. It
// joins a native event id to the resulting Botcash transaction id (or the
// reverse) and is immutable once written. Reply and reaction targets are
// resolved through these rows.
type RelayedMessage struct {
	PubKey       string
	Direction    string
	EventID      string
	Kind         int
	TxID         string
	MessageType  string
	ContentHash  string
	FeeSponsored bool
	CreatedAt    int64
}

// RateWindow counts accepted events for one pubkey within one minute window.
type RateWindow struct {
	PubKey string
	Minute int64
	Count  int
}

// Records are persisted with the canonical JSON handle so that the byte form
// is stable across runs.

func marshalRecord(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func unmarshalRecord(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)
	return dec.Decode(v)
}

// Marshal returns the stable encoding of a LinkedIdentity.
func (li *LinkedIdentity) Marshal() ([]byte, error) { return marshalRecord(li) }

// Unmarshal decodes a LinkedIdentity.
func (li *LinkedIdentity) Unmarshal(data []byte) error { return unmarshalRecord(data, li) }

// Marshal returns the stable encoding of a RelayedMessage.
func (rm *RelayedMessage) Marshal() ([]byte, error) { return marshalRecord(rm) }

// Unmarshal decodes a RelayedMessage.
func (rm *RelayedMessage) Unmarshal(data []byte) error { return unmarshalRecord(data, rm) }

// Marshal returns the stable encoding of a RateWindow.
func (rw *RateWindow) Marshal() ([]byte, error) { return marshalRecord(rw) }

// Unmarshal decodes a RateWindow.
func (rw *RateWindow) Unmarshal(data []byte) error { return unmarshalRecord(data, rw) }
