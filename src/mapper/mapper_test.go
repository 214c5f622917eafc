package mapper

import (
	"reflect"
	"strings"
	"testing"

	"github.com/botcash/nostr-bridge/src/common"
	"github.com/botcash/nostr-bridge/src/nostr"
)

func newTestMapper(t *testing.T) *Mapper {
	return NewMapper(DefaultConversionRate, common.NewTestEntry(t, "mapper"))
}

func TestMapTextNoteToPost(t *testing.T) {
	m := newTestMapper(t)

	event := &nostr.Event{
		PubKey:    "aa",
		CreatedAt: 100,
		Kind:      nostr.KindTextNote,
		Content:   "hello #tag",
	}
	event.ID = event.ComputeID()

	mapped := m.NativeToBotcash(event)
	if mapped == nil {
		t.Fatal("text note should map")
	}
	if mapped.Type != TypePost {
		t.Fatalf("type should be post, not %s", mapped.Type)
	}
	if mapped.Content != "hello" {
		t.Fatalf("hashtags should be stripped from content, got %q", mapped.Content)
	}
	if !reflect.DeepEqual(mapped.Hashtags, []string{"tag"}) {
		t.Fatalf("hashtags should be [tag], not %v", mapped.Hashtags)
	}
	if mapped.EventID != event.ID || mapped.PubKey != "aa" || mapped.CreatedAt != 100 {
		t.Fatalf("provenance fields mismatch: %+v", mapped)
	}
}

func TestMapTextNoteToReply(t *testing.T) {
	m := newTestMapper(t)

	event := &nostr.Event{
		PubKey:    "aa",
		CreatedAt: 100,
		Kind:      nostr.KindTextNote,
		Tags:      [][]string{{"e", "parent"}, {"p", "bb"}},
		Content:   "agreed",
	}
	event.ID = event.ComputeID()

	mapped := m.NativeToBotcash(event)
	if mapped.Type != TypeReply {
		t.Fatalf("note with e tag should map to reply, not %s", mapped.Type)
	}
	if mapped.ReplyTo != "parent" {
		t.Fatalf("ReplyTo should be parent, not %s", mapped.ReplyTo)
	}
	if !reflect.DeepEqual(mapped.Mentions, []string{"bb"}) {
		t.Fatalf("mentions should be [bb], not %v", mapped.Mentions)
	}
}

func TestMapDM(t *testing.T) {
	m := newTestMapper(t)

	event := &nostr.Event{
		PubKey:    "aa",
		CreatedAt: 100,
		Kind:      nostr.KindEncryptedDM,
		Tags:      [][]string{{"p", "bb"}},
		Content:   "ciphertext==",
	}
	event.ID = event.ComputeID()

	mapped := m.NativeToBotcash(event)
	if mapped.Type != TypeDM {
		t.Fatalf("type should be dm, not %s", mapped.Type)
	}
	if mapped.Content != "ciphertext==" {
		t.Fatal("DM payload should pass through untouched")
	}
	if mapped.Recipient != "bb" || !mapped.Encrypted {
		t.Fatalf("recipient/encrypted mismatch: %+v", mapped)
	}
}

func TestMapContacts(t *testing.T) {
	m := newTestMapper(t)

	event := &nostr.Event{
		PubKey:    "aa",
		CreatedAt: 100,
		Kind:      nostr.KindContacts,
		Tags:      [][]string{{"p", "bb"}, {"p", "cc"}},
	}
	event.ID = event.ComputeID()

	mapped := m.NativeToBotcash(event)
	if mapped.Type != TypeFollowList {
		t.Fatalf("type should be follow_list, not %s", mapped.Type)
	}
	if !reflect.DeepEqual(mapped.Follows, []string{"bb", "cc"}) {
		t.Fatalf("follows should be [bb cc], not %v", mapped.Follows)
	}
}

func TestMapMetadata(t *testing.T) {
	m := newTestMapper(t)

	event := &nostr.Event{
		PubKey:    "aa",
		CreatedAt: 100,
		Kind:      nostr.KindMetadata,
		Content:   `{"name":"alice","about":"hi","picture":"http://x/y.png","nip05":"alice@example.com"}`,
	}
	event.ID = event.ComputeID()

	mapped := m.NativeToBotcash(event)
	if mapped.Type != TypeProfile {
		t.Fatalf("type should be profile, not %s", mapped.Type)
	}
	if mapped.Name != "alice" || mapped.About != "hi" || mapped.Handle != "alice@example.com" {
		t.Fatalf("profile fields mismatch: %+v", mapped)
	}

	// Garbage profile content still maps, with empty fields.
	event.Content = "not json"
	event.ID = event.ComputeID()
	mapped = m.NativeToBotcash(event)
	if mapped == nil || mapped.Name != "" {
		t.Fatalf("malformed profile should map to empty profile, got %+v", mapped)
	}
}

func TestMapReaction(t *testing.T) {
	m := newTestMapper(t)

	for content, want := range map[string]string{
		"+": TypeUpvote,
		"":  TypeUpvote,
		"🔥": TypeUpvote,
		"-": TypeDownvote,
	} {
		event := &nostr.Event{
			PubKey:    "aa",
			CreatedAt: 100,
			Kind:      nostr.KindReaction,
			Tags:      [][]string{{"e", "target"}, {"p", "bb"}},
			Content:   content,
		}
		event.ID = event.ComputeID()

		mapped := m.NativeToBotcash(event)
		if mapped.Type != want {
			t.Fatalf("reaction %q should map to %s, not %s", content, want, mapped.Type)
		}
		if mapped.TargetEventID != "target" || mapped.TargetPubKey != "bb" {
			t.Fatalf("reaction targets mismatch: %+v", mapped)
		}
	}
}

func TestMapZapRequest(t *testing.T) {
	m := newTestMapper(t)

	event := &nostr.Event{
		PubKey:    "aa",
		CreatedAt: 100,
		Kind:      nostr.KindZapRequest,
		Tags: [][]string{
			{"p", "bb"},
			{"e", "target"},
			{"amount", "1000"},
		},
		Content: "great post",
	}
	event.ID = event.ComputeID()

	mapped := m.NativeToBotcash(event)
	if mapped.Type != TypeTipRequest {
		t.Fatalf("type should be tip_request, not %s", mapped.Type)
	}
	if mapped.AmountMsats != 1000 || mapped.AmountSats != 1 {
		t.Fatalf("amount conversion mismatch: %+v", mapped)
	}
	if mapped.AmountBCASH != 1e-8 {
		t.Fatalf("1000 msats should convert to 1e-8 BCASH, not %v", mapped.AmountBCASH)
	}
	if mapped.Sender != "aa" || mapped.TargetPubKey != "bb" || mapped.TargetEventID != "target" {
		t.Fatalf("zap fields mismatch: %+v", mapped)
	}
}

func TestMapZapReceiptAmountFloor(t *testing.T) {
	m := newTestMapper(t)

	request := &nostr.Event{
		PubKey:    "aa",
		CreatedAt: 100,
		Kind:      nostr.KindZapRequest,
		Tags:      [][]string{{"p", "bb"}, {"amount", "1999"}},
	}
	request.ID = request.ComputeID()
	requestJSON, err := request.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	receipt := &nostr.Event{
		PubKey:    "zapper",
		CreatedAt: 101,
		Kind:      nostr.KindZapReceipt,
		Tags: [][]string{
			{"description", string(requestJSON)},
			{"bolt11", "lnbc..."},
		},
	}
	receipt.ID = receipt.ComputeID()

	mapped := m.NativeToBotcash(receipt)
	if mapped == nil || mapped.Type != TypeTip {
		t.Fatalf("receipt should map to tip, got %+v", mapped)
	}
	// 1999 msats floors to 1 sat.
	if mapped.AmountSats != 1 || mapped.AmountBCASH != 1e-8 {
		t.Fatalf("amount should floor to 1 sat / 1e-8 BCASH, got %+v", mapped)
	}
	if mapped.ReceiptID != receipt.ID || mapped.Bolt11 != "lnbc..." {
		t.Fatalf("receipt provenance mismatch: %+v", mapped)
	}
}

func TestMapUnsupportedKind(t *testing.T) {
	m := newTestMapper(t)

	event := &nostr.Event{PubKey: "aa", CreatedAt: 100, Kind: 30023}
	event.ID = event.ComputeID()

	if mapped := m.NativeToBotcash(event); mapped != nil {
		t.Fatalf("unsupported kind should not map, got %+v", mapped)
	}
}

func TestMintPost(t *testing.T) {
	m := newTestMapper(t)

	event := m.BotcashToNative(TypePost, "from the chain", "aa", &Meta{TxID: "0123456789abcdef"})
	if event == nil {
		t.Fatal("post should mint")
	}
	if event.Kind != nostr.KindTextNote {
		t.Fatalf("kind should be %d, not %d", nostr.KindTextNote, event.Kind)
	}
	if !strings.HasPrefix(event.Content, "from the chain") {
		t.Fatalf("content should lead with the post body: %q", event.Content)
	}
	if !strings.Contains(event.Content, "Posted via Botcash (tx: 01234567...)") {
		t.Fatalf("content should carry the attribution suffix: %q", event.Content)
	}
	if !event.FromBridge() {
		t.Fatal("minted event should carry the bridge-origin tag")
	}
	if !event.ValidID() {
		t.Fatal("minted event id should be valid")
	}
	if event.Sig != "" {
		t.Fatal("minted event should be unsigned")
	}
}

func TestMintReply(t *testing.T) {
	m := newTestMapper(t)

	event := m.BotcashToNative(TypeReply, "me too", "aa", &Meta{
		TxID:         "tx1",
		ReplyToEvent: "parent",
		Mentions:     []string{"bb"},
	})
	if event.ReplyTo() != "parent" {
		t.Fatalf("reply should reference parent, got %q", event.ReplyTo())
	}
	if !reflect.DeepEqual(event.Mentions(), []string{"bb"}) {
		t.Fatalf("mentions mismatch: %v", event.Mentions())
	}
}

func TestMintUpvoteRequiresTarget(t *testing.T) {
	m := newTestMapper(t)

	if event := m.BotcashToNative(TypeUpvote, "", "aa", &Meta{TargetEventID: "x"}); event != nil {
		t.Fatal("upvote without target pubkey should not mint")
	}
	if event := m.BotcashToNative(TypeUpvote, "", "aa", &Meta{TargetPubKey: "bb"}); event != nil {
		t.Fatal("upvote without target event should not mint")
	}

	event := m.BotcashToNative(TypeUpvote, "", "aa", &Meta{
		TxID:          "tx1",
		TargetEventID: "x",
		TargetPubKey:  "bb",
	})
	if event == nil || event.Kind != nostr.KindReaction || event.Content != "+" {
		t.Fatalf("upvote should mint a + reaction, got %+v", event)
	}
}

func TestMintTip(t *testing.T) {
	m := newTestMapper(t)

	event := m.BotcashToNative(TypeTip, "", "zapper", &Meta{
		TxID:            "tx1",
		RecipientPubKey: "bb",
		TargetEventID:   "target",
		AmountBCASH:     1e-8,
	})
	if event == nil || event.Kind != nostr.KindZapReceipt {
		t.Fatalf("tip should mint a zap receipt, got %+v", event)
	}
	if amounts := event.TagValues("amount"); len(amounts) != 1 || amounts[0] != "1000" {
		t.Fatalf("1e-8 BCASH should be 1000 msats, got %v", amounts)
	}
	descriptions := event.TagValues("description")
	if len(descriptions) != 1 || !strings.Contains(descriptions[0], `"source":"botcash"`) {
		t.Fatalf("description should record botcash provenance, got %v", descriptions)
	}
	if event.ReplyTo() != "target" {
		t.Fatalf("tip should reference the target event, got %q", event.ReplyTo())
	}

	if event := m.BotcashToNative(TypeTip, "", "zapper", &Meta{TxID: "tx1"}); event != nil {
		t.Fatal("tip without recipient should not mint")
	}
}

func TestMintUnsupportedType(t *testing.T) {
	m := newTestMapper(t)

	if event := m.BotcashToNative("poll", "", "aa", nil); event != nil {
		t.Fatal("unsupported type should not mint")
	}
}

func TestContentHash(t *testing.T) {
	m := newTestMapper(t)

	h1 := m.ContentHash("hello")
	h2 := m.ContentHash("hello")
	if h1 != h2 {
		t.Fatal("content hash should be deterministic")
	}
	if len(h1) != 64 {
		t.Fatalf("content hash should be 64 hex chars, got %d", len(h1))
	}
	if h1 == m.ContentHash("hello!") {
		t.Fatal("different content should hash differently")
	}
}

func TestStripHashtags(t *testing.T) {
	content, tags := stripHashtags("no tags here")
	if content != "no tags here" || len(tags) != 0 {
		t.Fatalf("content without hashtags should be untouched, got %q %v", content, tags)
	}

	content, tags = stripHashtags("hello #tag #go world #")
	if content != "hello world #" {
		t.Fatalf("stripped content mismatch: %q", content)
	}
	if !reflect.DeepEqual(tags, []string{"tag", "go"}) {
		t.Fatalf("tags mismatch: %v", tags)
	}
}
