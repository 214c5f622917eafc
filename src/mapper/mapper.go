package mapper

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/botcash/nostr-bridge/src/crypto"
	"github.com/botcash/nostr-bridge/src/nostr"
)

// Botcash message types produced by NativeToBotcash and accepted by
// BotcashToNative.
const (
	TypePost       = "post"
	TypeReply      = "reply"
	TypeDM         = "dm"
	TypeFollowList = "follow_list"
	TypeProfile    = "profile"
	TypeUpvote     = "upvote"
	TypeDownvote   = "downvote"
	TypeTipRequest = "tip_request"
	TypeTip        = "tip"
)

// DefaultConversionRate values one satoshi at 0.00000001 BCASH.
const DefaultConversionRate = 0.00000001

const attribution = "\n\nPosted via Botcash"

// Mapped is the Botcash-side rendering of a native event. Only the fields
// relevant to its Type are populated.
type Mapped struct {
	Type    string
	Content string

	EventID   string
	PubKey    string
	CreatedAt int64

	// Posts and replies.
	ReplyTo  string
	Mentions []string
	Hashtags []string

	// Direct messages. Content stays encrypted end to end.
	Recipient string
	Encrypted bool

	// Follow lists.
	Follows []string

	// Profiles.
	Name    string
	About   string
	Picture string
	Handle  string

	// Reactions and tips.
	TargetEventID string
	TargetPubKey  string
	Sender        string
	AmountMsats   int64
	AmountSats    int64
	AmountBCASH   float64
	ReceiptID     string
	Bolt11        string
}

// Meta carries the Botcash-side context needed to mint a native event.
type Meta struct {
	TxID            string
	ReplyToEvent    string
	Mentions        []string
	RecipientPubKey string
	Follows         []string
	RelayURL        string
	Name            string
	About           string
	Picture         string
	BotcashAddress  string
	TargetEventID   string
	TargetPubKey    string
	AmountBCASH     float64
}

// Mapper translates messages between the native protocol and Botcash. Both
// directions are pure; nothing is persisted or sent here.
type Mapper struct {
	conversionRate float64
	logger         *logrus.Entry
}

// NewMapper creates a Mapper. conversionRate is the BCASH value of one
// satoshi; zero selects the default.
func NewMapper(conversionRate float64, logger *logrus.Entry) *Mapper {
	if conversionRate == 0 {
		conversionRate = DefaultConversionRate
	}
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	return &Mapper{
		conversionRate: conversionRate,
		logger:         logger,
	}
}

// NativeToBotcash converts a native event into its Botcash rendering.
// Returns nil for kinds the bridge does not carry.
func (m *Mapper) NativeToBotcash(event *nostr.Event) *Mapped {
	switch event.Kind {
	case nostr.KindTextNote:
		return m.mapTextNote(event)
	case nostr.KindEncryptedDM:
		return m.mapDM(event)
	case nostr.KindContacts:
		return m.mapContacts(event)
	case nostr.KindMetadata:
		return m.mapMetadata(event)
	case nostr.KindReaction:
		return m.mapReaction(event)
	case nostr.KindZapRequest:
		return m.mapZapRequest(event)
	case nostr.KindZapReceipt:
		return m.mapZapReceipt(event)
	default:
		m.logger.WithField("kind", event.Kind).Debug("Unsupported kind")
		return nil
	}
}

// BotcashToNative mints a native event from a Botcash message. The produced
// event has its id computed and the bridge-origin tag set, but no signature;
// signing is not this component's responsibility. Returns nil for unsupported
// types or incomplete metadata.
func (m *Mapper) BotcashToNative(messageType string, content string, authorPubKey string, meta *Meta) *nostr.Event {
	if meta == nil {
		meta = &Meta{}
	}

	var event *nostr.Event
	switch messageType {
	case TypePost:
		event = nostr.NewTextNote(authorPubKey, m.attribute(content, meta.TxID), "", meta.Mentions)
	case TypeReply:
		event = nostr.NewTextNote(authorPubKey, m.attribute(content, meta.TxID), meta.ReplyToEvent, meta.Mentions)
	case TypeDM:
		event = m.mintDM(content, authorPubKey, meta)
	case TypeFollowList:
		event = m.mintContacts(authorPubKey, meta)
	case TypeProfile:
		event = m.mintMetadata(content, authorPubKey, meta)
	case TypeUpvote:
		if meta.TargetEventID == "" || meta.TargetPubKey == "" {
			return nil
		}
		event = nostr.NewReaction(authorPubKey, meta.TargetEventID, meta.TargetPubKey, "+")
	case TypeTip:
		event = m.mintZapReceipt(authorPubKey, meta)
	default:
		m.logger.WithField("message_type", messageType).Debug("Unsupported message type")
		return nil
	}

	if event == nil {
		return nil
	}
	markBridgeOrigin(event, meta.TxID)
	return event
}

// ContentHash returns the hex SHA256 digest of content, used for audit rows.
func (m *Mapper) ContentHash(content string) string {
	return crypto.SHA256Hex([]byte(content))
}

//------------------------------------------------------------------------------
// Native to Botcash

func (m *Mapper) mapTextNote(event *nostr.Event) *Mapped {
	content, hashtags := stripHashtags(event.Content)

	messageType := TypePost
	replyTo := event.ReplyTo()
	if replyTo != "" {
		messageType = TypeReply
	}

	return &Mapped{
		Type:      messageType,
		Content:   content,
		EventID:   event.ID,
		PubKey:    event.PubKey,
		CreatedAt: event.CreatedAt,
		ReplyTo:   replyTo,
		Mentions:  event.Mentions(),
		Hashtags:  hashtags,
	}
}

func (m *Mapper) mapDM(event *nostr.Event) *Mapped {
	recipient := ""
	if recipients := event.Mentions(); len(recipients) > 0 {
		recipient = recipients[0]
	}

	return &Mapped{
		Type:      TypeDM,
		Content:   event.Content,
		EventID:   event.ID,
		PubKey:    event.PubKey,
		CreatedAt: event.CreatedAt,
		Recipient: recipient,
		Encrypted: true,
	}
}

func (m *Mapper) mapContacts(event *nostr.Event) *Mapped {
	return &Mapped{
		Type:      TypeFollowList,
		Content:   "",
		EventID:   event.ID,
		PubKey:    event.PubKey,
		CreatedAt: event.CreatedAt,
		Follows:   event.Mentions(),
	}
}

func (m *Mapper) mapMetadata(event *nostr.Event) *Mapped {
	var profile struct {
		Name    string `json:"name"`
		About   string `json:"about"`
		Picture string `json:"picture"`
		NIP05   string `json:"nip05"`
	}
	// Malformed profile JSON degrades to an empty profile.
	json.Unmarshal([]byte(event.Content), &profile)

	return &Mapped{
		Type:      TypeProfile,
		Content:   event.Content,
		EventID:   event.ID,
		PubKey:    event.PubKey,
		CreatedAt: event.CreatedAt,
		Name:      profile.Name,
		About:     profile.About,
		Picture:   profile.Picture,
		Handle:    profile.NIP05,
	}
}

func (m *Mapper) mapReaction(event *nostr.Event) *Mapped {
	reaction := event.Content
	if reaction == "" {
		reaction = "+"
	}

	messageType := TypeUpvote
	if reaction == "-" {
		messageType = TypeDownvote
	}

	mapped := &Mapped{
		Type:      messageType,
		Content:   reaction,
		EventID:   event.ID,
		PubKey:    event.PubKey,
		CreatedAt: event.CreatedAt,
	}
	if targets := event.TagValues("e"); len(targets) > 0 {
		mapped.TargetEventID = targets[0]
	}
	if targets := event.TagValues("p"); len(targets) > 0 {
		mapped.TargetPubKey = targets[0]
	}
	return mapped
}

func (m *Mapper) mapZapRequest(event *nostr.Event) *Mapped {
	info := nostr.ParseZapRequest(event)
	if info == nil {
		return nil
	}
	mapped := m.mapZapInfo(event, info)
	mapped.Type = TypeTipRequest
	return mapped
}

func (m *Mapper) mapZapReceipt(event *nostr.Event) *Mapped {
	info := nostr.ParseZapReceipt(event)
	if info == nil {
		return nil
	}
	mapped := m.mapZapInfo(event, info)
	mapped.Type = TypeTip
	mapped.ReceiptID = info.ReceiptID
	mapped.Bolt11 = info.Bolt11
	return mapped
}

func (m *Mapper) mapZapInfo(event *nostr.Event, info *nostr.ZapInfo) *Mapped {
	amountSats := info.AmountMsats / 1000
	return &Mapped{
		Content:       info.Message,
		EventID:       event.ID,
		PubKey:        event.PubKey,
		CreatedAt:     event.CreatedAt,
		Sender:        info.Sender,
		TargetPubKey:  info.Recipient,
		TargetEventID: info.TargetEvent,
		AmountMsats:   info.AmountMsats,
		AmountSats:    amountSats,
		AmountBCASH:   float64(amountSats) * m.conversionRate,
	}
}

//------------------------------------------------------------------------------
// Botcash to native

func (m *Mapper) attribute(content string, txID string) string {
	res := content + attribution
	if txID != "" {
		if len(txID) > 8 {
			txID = txID[:8]
		}
		res += " (tx: " + txID + "...)"
	}
	return res
}

func (m *Mapper) mintDM(content string, authorPubKey string, meta *Meta) *nostr.Event {
	event := &nostr.Event{
		PubKey:    authorPubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindEncryptedDM,
		Tags:      [][]string{{"p", meta.RecipientPubKey}},
		Content:   content,
	}
	event.ID = event.ComputeID()
	return event
}

func (m *Mapper) mintContacts(authorPubKey string, meta *Meta) *nostr.Event {
	contacts := make([]nostr.Contact, len(meta.Follows))
	for i, pubkey := range meta.Follows {
		contacts[i] = nostr.Contact{PubKey: pubkey, Relay: meta.RelayURL}
	}
	return nostr.NewContactList(authorPubKey, contacts)
}

func (m *Mapper) mintMetadata(content string, authorPubKey string, meta *Meta) *nostr.Event {
	profile := map[string]string{}
	json.Unmarshal([]byte(content), &profile)

	if meta.Name != "" {
		profile["name"] = meta.Name
	}
	if meta.About != "" {
		profile["about"] = meta.About
	}
	if meta.Picture != "" {
		profile["picture"] = meta.Picture
	}
	profile["botcash_address"] = meta.BotcashAddress

	encoded, err := json.Marshal(profile)
	if err != nil {
		return nil
	}

	event := &nostr.Event{
		PubKey:    authorPubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindMetadata,
		Tags:      [][]string{},
		Content:   string(encoded),
	}
	event.ID = event.ComputeID()
	return event
}

// mintZapReceipt produces a receipt-shaped event for a BCASH tip. There is no
// Lightning invoice behind it; the description tag records the Botcash
// provenance instead.
func (m *Mapper) mintZapReceipt(authorPubKey string, meta *Meta) *nostr.Event {
	if meta.RecipientPubKey == "" {
		return nil
	}

	amountSats := int64(meta.AmountBCASH / m.conversionRate)
	amountMsats := amountSats * 1000

	description, err := json.Marshal(map[string]string{
		"source":       "botcash",
		"tx_id":        meta.TxID,
		"amount_bcash": strconv.FormatFloat(meta.AmountBCASH, 'f', -1, 64),
	})
	if err != nil {
		return nil
	}

	tags := [][]string{
		{"p", meta.RecipientPubKey},
		{"amount", strconv.FormatInt(amountMsats, 10)},
		{"description", string(description)},
	}
	if meta.TargetEventID != "" {
		tags = append(tags, []string{"e", meta.TargetEventID})
	}

	event := &nostr.Event{
		PubKey:    authorPubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindZapReceipt,
		Tags:      tags,
		Content:   "",
	}
	event.ID = event.ComputeID()
	return event
}

//------------------------------------------------------------------------------
// Helpers

// stripHashtags pulls "#word" tokens out of content, returning the cleaned
// content and the bare tag names.
func stripHashtags(content string) (string, []string) {
	hashtags := []string{}
	words := []string{}
	for _, word := range strings.Fields(content) {
		if strings.HasPrefix(word, "#") && len(word) > 1 {
			hashtags = append(hashtags, word[1:])
			continue
		}
		words = append(words, word)
	}
	if len(hashtags) == 0 {
		return content, hashtags
	}
	return strings.Join(words, " "), hashtags
}

// markBridgeOrigin appends the reserved provenance tag and recomputes the id.
func markBridgeOrigin(event *nostr.Event, txID string) {
	if txID == "" {
		return
	}
	event.Tags = append(event.Tags, []string{nostr.TagBridge, txID})
	event.ID = event.ComputeID()
}
