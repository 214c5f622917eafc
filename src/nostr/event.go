package nostr

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/botcash/nostr-bridge/src/crypto"
)

// TagBridge is the reserved tag name that marks bridge-originated events.
// Events minted from Botcash posts carry ["botcash", <tx_id>] and an empty
// sig; consumers must treat them as bridge-attested, not author-signed.
const TagBridge = "botcash"

// Event is a Nostr event (NIP-01): a signed, content-addressed message
// envelope. The id is the SHA256 digest of the canonical serialization of the
// five signable fields; peers recompute and compare it, so the serialization
// must be byte-exact across implementations.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Serialize returns the canonical serialization used to compute the event id:
// a JSON array [0, pubkey, created_at, kind, tags, content] with compact
// separators. Strings are escaped by hand because encoding/json escapes more
// than RFC 8259 mandates (U+2028, U+2029, and HTML characters), which would
// break byte-exactness with other relays.
func (e *Event) Serialize() []byte {
	b := make([]byte, 0, 128+len(e.PubKey)+len(e.Content))

	b = append(b, '[', '0', ',')
	b = appendEscaped(b, e.PubKey)
	b = append(b, ',')
	b = strconv.AppendInt(b, e.CreatedAt, 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(e.Kind), 10)
	b = append(b, ',', '[')
	for i, tag := range e.Tags {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '[')
		for j, v := range tag {
			if j > 0 {
				b = append(b, ',')
			}
			b = appendEscaped(b, v)
		}
		b = append(b, ']')
	}
	b = append(b, ']', ',')
	b = appendEscaped(b, e.Content)
	b = append(b, ']')

	return b
}

const hexDigits = "0123456789abcdef"

// appendEscaped writes s as a JSON string, emitting only the escapes RFC 8259
// requires: quote, backslash, and control characters. Everything else passes
// through raw.
func appendEscaped(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b = append(b, '\\', '"')
		case c == '\\':
			b = append(b, '\\', '\\')
		case c < 0x20:
			switch c {
			case '\b':
				b = append(b, '\\', 'b')
			case '\t':
				b = append(b, '\\', 't')
			case '\n':
				b = append(b, '\\', 'n')
			case '\f':
				b = append(b, '\\', 'f')
			case '\r':
				b = append(b, '\\', 'r')
			default:
				b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
			}
		default:
			b = append(b, c)
		}
	}
	return append(b, '"')
}

// ComputeID returns the hex SHA256 digest of the canonical serialization.
func (e *Event) ComputeID() string {
	return crypto.SHA256Hex(e.Serialize())
}

// ValidID reports whether the event's id matches the recomputed digest.
func (e *Event) ValidID() bool {
	return e.ID == e.ComputeID()
}

// TagValues returns the first value of every tag with the given name.
func (e *Event) TagValues(name string) []string {
	values := []string{}
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			values = append(values, tag[1])
		}
	}
	return values
}

// ReplyTo returns the event id this event replies to, or "" if it carries no
// "e" reference tag.
func (e *Event) ReplyTo() string {
	if refs := e.TagValues("e"); len(refs) > 0 {
		return refs[0]
	}
	return ""
}

// Mentions returns the pubkeys referenced by "p" tags.
func (e *Event) Mentions() []string {
	return e.TagValues("p")
}

// FromBridge reports whether the event carries the reserved bridge-origin
// tag.
func (e *Event) FromBridge() bool {
	return len(e.TagValues(TagBridge)) > 0
}

// Marshal returns the wire JSON encoding of the event.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses an event from wire JSON.
func (e *Event) Unmarshal(data []byte) error {
	return json.Unmarshal(data, e)
}

// NewTextNote creates a kind-1 text note. The id is computed; the sig is left
// for the author to fill in.
func NewTextNote(pubkey string, content string, replyTo string, mentions []string) *Event {
	tags := [][]string{}
	if replyTo != "" {
		tags = append(tags, []string{"e", replyTo})
	}
	for _, m := range mentions {
		tags = append(tags, []string{"p", m})
	}

	event := &Event{
		PubKey:    pubkey,
		CreatedAt: time.Now().Unix(),
		Kind:      KindTextNote,
		Tags:      tags,
		Content:   content,
	}
	event.ID = event.ComputeID()
	return event
}

// NewReaction creates a kind-7 reaction to the target event. Content is "+"
// for like, "-" for dislike.
func NewReaction(pubkey string, targetEventID string, targetPubKey string, reaction string) *Event {
	event := &Event{
		PubKey:    pubkey,
		CreatedAt: time.Now().Unix(),
		Kind:      KindReaction,
		Tags: [][]string{
			{"e", targetEventID},
			{"p", targetPubKey},
		},
		Content: reaction,
	}
	event.ID = event.ComputeID()
	return event
}

// Contact is one entry of a kind-3 contact list.
type Contact struct {
	PubKey  string
	Relay   string
	Petname string
}

// NewContactList creates a kind-3 contact list event.
func NewContactList(pubkey string, contacts []Contact) *Event {
	tags := make([][]string, len(contacts))
	for i, c := range contacts {
		tags[i] = []string{"p", c.PubKey, c.Relay, c.Petname}
	}

	event := &Event{
		PubKey:    pubkey,
		CreatedAt: time.Now().Unix(),
		Kind:      KindContacts,
		Tags:      tags,
		Content:   "",
	}
	event.ID = event.ComputeID()
	return event
}
