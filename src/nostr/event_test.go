package nostr

import (
	"reflect"
	"strings"
	"testing"
)

func testEvent() *Event {
	e := &Event{
		PubKey:    strings.Repeat("ab", 32),
		CreatedAt: 1700000000,
		Kind:      KindTextNote,
		Tags:      [][]string{{"e", strings.Repeat("cd", 32)}, {"p", strings.Repeat("ef", 32)}},
		Content:   "hello world",
	}
	e.ID = e.ComputeID()
	return e
}

func TestSerializeCanonicalForm(t *testing.T) {
	e := &Event{
		PubKey:    "pk",
		CreatedAt: 1,
		Kind:      1,
		Tags:      [][]string{{"e", "x"}},
		Content:   `say "hi" <now> & then`,
	}

	expected := `[0,"pk",1,1,[["e","x"]],"say \"hi\" <now> & then"]`
	if got := string(e.Serialize()); got != expected {
		t.Fatalf("Serialize should be %s, not %s", expected, got)
	}
}

func TestSerializeEscapesOnlyMandatedCharacters(t *testing.T) {
	e := &Event{
		PubKey:    "pk",
		CreatedAt: 1,
		Kind:      1,
		Tags:      [][]string{{"t", "a\tb"}},
		Content:   "line\u2028sep\u2029end \U0001F525 ctl\u0001\ndone",
	}

	// U+2028, U+2029 and non-ASCII pass through raw; only quote, backslash
	// and control characters are escaped.
	expected := `[0,"pk",1,1,[["t","a\tb"]],"line` + "\u2028" + `sep` +
		"\u2029" + `end ` + "\U0001F525" + ` ctl\u0001\ndone"]`
	if got := string(e.Serialize()); got != expected {
		t.Fatalf("Serialize should be %s, not %s", expected, got)
	}

	// The raw separators must also survive the id digest round trip.
	e.ID = e.ComputeID()
	if !e.ValidID() {
		t.Fatal("event with separator content should validate")
	}
}

func TestSerializeNilTags(t *testing.T) {
	e := &Event{PubKey: "pk", CreatedAt: 2, Kind: 0}

	expected := `[0,"pk",2,0,[],""]`
	if got := string(e.Serialize()); got != expected {
		t.Fatalf("Serialize should be %s, not %s", expected, got)
	}
}

func TestComputeIDDeterministic(t *testing.T) {
	e := testEvent()

	id1 := e.ComputeID()
	id2 := e.ComputeID()

	if id1 != id2 {
		t.Fatalf("ComputeID should be deterministic: %s != %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Fatalf("ComputeID should return 64 hex chars, not %d", len(id1))
	}
}

func TestValidID(t *testing.T) {
	e := testEvent()
	if !e.ValidID() {
		t.Fatal("event with computed id should be valid")
	}

	// Mutating any signable field invalidates the id.
	mutations := map[string]func(*Event){
		"pubkey":     func(m *Event) { m.PubKey = strings.Repeat("ba", 32) },
		"created_at": func(m *Event) { m.CreatedAt++ },
		"kind":       func(m *Event) { m.Kind = KindReaction },
		"tags":       func(m *Event) { m.Tags = append(m.Tags, []string{"t", "x"}) },
		"content":    func(m *Event) { m.Content += "!" },
	}
	for field, mutate := range mutations {
		m := *testEvent()
		mutate(&m)
		if m.ValidID() {
			t.Fatalf("mutating %s should invalidate the id", field)
		}
	}

	e.ID = "not-the-digest"
	if e.ValidID() {
		t.Fatal("event with wrong id should be invalid")
	}
}

func TestTagHelpers(t *testing.T) {
	e := testEvent()

	if got := e.ReplyTo(); got != strings.Repeat("cd", 32) {
		t.Fatalf("ReplyTo should be %s, not %s", strings.Repeat("cd", 32), got)
	}
	if got := e.Mentions(); !reflect.DeepEqual(got, []string{strings.Repeat("ef", 32)}) {
		t.Fatalf("bad Mentions: %v", got)
	}
	if got := e.TagValues("nonexistent"); len(got) != 0 {
		t.Fatalf("TagValues of absent tag should be empty, not %v", got)
	}

	// Short tags are skipped.
	e.Tags = append(e.Tags, []string{"e"})
	if got := e.TagValues("e"); len(got) != 1 {
		t.Fatalf("single-element tags should be skipped: %v", got)
	}
}

func TestFromBridge(t *testing.T) {
	e := testEvent()
	if e.FromBridge() {
		t.Fatal("plain event should not be marked bridge-originated")
	}

	e.Tags = append(e.Tags, []string{TagBridge, "sometxid"})
	if !e.FromBridge() {
		t.Fatal("event with botcash tag should be marked bridge-originated")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	e := testEvent()
	e.Sig = strings.Repeat("00", 64)

	data, err := e.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var decoded Event
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(*e, decoded) {
		t.Fatalf("round trip mismatch: %+v != %+v", *e, decoded)
	}
	if !decoded.ValidID() {
		t.Fatal("decoded event should still have a valid id")
	}
}

func TestNewTextNote(t *testing.T) {
	note := NewTextNote("pk", "hello", "target", []string{"m1", "m2"})

	if note.Kind != KindTextNote {
		t.Fatalf("kind should be %d, not %d", KindTextNote, note.Kind)
	}
	if !note.ValidID() {
		t.Fatal("constructor should compute a valid id")
	}
	if note.ReplyTo() != "target" {
		t.Fatalf("bad reply tag: %v", note.Tags)
	}
	if got := note.Mentions(); !reflect.DeepEqual(got, []string{"m1", "m2"}) {
		t.Fatalf("bad mention tags: %v", got)
	}
}

func TestNewReaction(t *testing.T) {
	reaction := NewReaction("pk", "evt", "author", "+")

	if reaction.Kind != KindReaction {
		t.Fatalf("kind should be %d, not %d", KindReaction, reaction.Kind)
	}
	if reaction.Content != "+" {
		t.Fatalf("content should be +, not %s", reaction.Content)
	}
	if reaction.ReplyTo() != "evt" || len(reaction.Mentions()) != 1 {
		t.Fatalf("bad tags: %v", reaction.Tags)
	}
}

func TestNewContactList(t *testing.T) {
	contacts := []Contact{
		{PubKey: "pk1", Relay: "wss://relay.example", Petname: "alice"},
		{PubKey: "pk2"},
	}
	list := NewContactList("pk", contacts)

	if list.Kind != KindContacts {
		t.Fatalf("kind should be %d, not %d", KindContacts, list.Kind)
	}
	if got := list.Mentions(); !reflect.DeepEqual(got, []string{"pk1", "pk2"}) {
		t.Fatalf("bad contact tags: %v", got)
	}
	if list.Tags[0][3] != "alice" {
		t.Fatalf("petname should be preserved: %v", list.Tags[0])
	}
}
