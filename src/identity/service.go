package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/botcash/nostr-bridge/src/botcash"
	cm "github.com/botcash/nostr-bridge/src/common"
	"github.com/botcash/nostr-bridge/src/nostr"
	"github.com/botcash/nostr-bridge/src/store"
)

// ChallengeExpiry is how long a link challenge stays valid.
const ChallengeExpiry = 10 * time.Minute

// minSignatureHexLen is the length of a hex Schnorr signature (64 bytes).
const minSignatureHexLen = 128

// Service manages identity links between native pubkeys and Botcash
// addresses. The state machine per pubkey is pending, active, then unlinked
// or suspended; challenge fields exist only while pending.
type Service struct {
	store   store.Store
	botcash botcash.Client
	logger  *logrus.Entry
}

// NewService creates an identity Service.
func NewService(s store.Store, client botcash.Client, logger *logrus.Entry) *Service {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	return &Service{
		store:   s,
		botcash: client,
		logger:  logger,
	}
}

// generateChallenge returns a random 32-byte hex challenge.
func generateChallenge() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Initiate starts the link handshake for (pubkey, address). It validates the
// address, rejects conflicting links, and issues a challenge the user must
// sign. Returns the challenge and the verification message to sign.
func (s *Service) Initiate(pubkey string, address string) (string, string, error) {
	pubkey, err := nostr.NormalizePubKey(pubkey)
	if err != nil {
		return "", "", err
	}
	npub, err := nostr.HexToNpub(pubkey)
	if err != nil {
		return "", "", err
	}

	valid, err := s.botcash.ValidateAddress(address)
	if err != nil {
		return "", "", err
	}
	if !valid {
		return "", "", fmt.Errorf("invalid Botcash address: %s", address)
	}

	if owner, err := s.store.GetIdentityByAddress(address); err == nil && owner.PubKey != pubkey {
		return "", "", fmt.Errorf("address %s is already linked to another account", address)
	}

	existing, err := s.store.GetIdentity(pubkey)
	if err != nil && !cm.IsStore(err, cm.KeyNotFound) {
		return "", "", err
	}
	if existing != nil && existing.Status == store.StatusActive {
		return "", "", fmt.Errorf("pubkey %s already has a linked address, unlink first", pubkey)
	}

	challenge, err := generateChallenge()
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	record := &store.LinkedIdentity{
		PubKey:             pubkey,
		Npub:               npub,
		Address:            address,
		Status:             store.StatusPending,
		Challenge:          challenge,
		ChallengeExpiresAt: now.Add(ChallengeExpiry).Unix(),
		PrivacyMode:        store.Selective,
		CreatedAt:          now.Unix(),
	}
	if existing != nil {
		record.CreatedAt = existing.CreatedAt
	}
	if err := s.store.SetIdentity(record); err != nil {
		return "", "", err
	}

	verification := fmt.Sprintf(
		"I am linking Nostr pubkey %s to Botcash address %s.\nChallenge: %s",
		npub, address, challenge)

	s.logger.WithFields(logrus.Fields{
		"pubkey":  pubkey,
		"address": address,
	}).Info("Link initiated")

	return challenge, verification, nil
}

// Complete finishes the handshake: it checks the pending record and challenge
// expiry, sanity-checks the signature shape, records the link on-chain, and
// activates the identity. Full signature verification happens on-chain.
func (s *Service) Complete(pubkey string, signature string, eventID string) (*store.LinkedIdentity, error) {
	pubkey, err := nostr.NormalizePubKey(pubkey)
	if err != nil {
		return nil, err
	}

	record, err := s.store.GetIdentity(pubkey)
	if err != nil || record.Status != store.StatusPending {
		return nil, fmt.Errorf("no pending link for %s, initiate first", pubkey)
	}
	if time.Now().Unix() > record.ChallengeExpiresAt {
		return nil, fmt.Errorf("challenge expired, initiate again")
	}
	if len(signature) < minSignatureHexLen {
		return nil, fmt.Errorf("invalid signature, expected a %d-char hex Schnorr signature", minSignatureHexLen)
	}

	txID, err := s.botcash.CreateBridgeLink(record.Address, pubkey, signature, string(record.PrivacyMode))
	if err != nil {
		return nil, fmt.Errorf("on-chain link failed: %v", err)
	}

	record.Status = store.StatusActive
	record.LinkTxID = txID
	record.LinkEventID = eventID
	record.LinkedAt = time.Now().Unix()
	record.Challenge = ""
	record.ChallengeExpiresAt = 0
	if err := s.store.SetIdentity(record); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"pubkey":  pubkey,
		"npub":    record.Npub,
		"address": record.Address,
		"tx_id":   txID,
	}).Info("Identity linked")

	return record, nil
}

// Unlink terminates an active link.
func (s *Service) Unlink(pubkey string) error {
	pubkey, err := nostr.NormalizePubKey(pubkey)
	if err != nil {
		return err
	}

	record, err := s.store.GetIdentity(pubkey)
	if err != nil || record.Status != store.StatusActive {
		return fmt.Errorf("no active link for %s", pubkey)
	}

	record.Status = store.StatusUnlinked
	record.UnlinkedAt = time.Now().Unix()
	if err := s.store.SetIdentity(record); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"pubkey":  pubkey,
		"address": record.Address,
	}).Info("Identity unlinked")

	return nil
}

// Suspend takes an active link out of service without erasing it. Suspended
// links are invisible to the relay lookups until an operator re-links them.
func (s *Service) Suspend(pubkey string) error {
	pubkey, err := nostr.NormalizePubKey(pubkey)
	if err != nil {
		return err
	}

	record, err := s.store.GetIdentity(pubkey)
	if err != nil || record.Status != store.StatusActive {
		return fmt.Errorf("no active link for %s", pubkey)
	}

	record.Status = store.StatusSuspended
	if err := s.store.SetIdentity(record); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"pubkey":  pubkey,
		"address": record.Address,
	}).Warn("Identity suspended")

	return nil
}

// SetPrivacyMode updates the mirroring preference of an active link.
func (s *Service) SetPrivacyMode(pubkey string, mode store.PrivacyMode) error {
	switch mode {
	case store.FullMirror, store.Selective, store.ReadOnly, store.Private:
	default:
		return fmt.Errorf("unknown privacy mode: %s", mode)
	}

	pubkey, err := nostr.NormalizePubKey(pubkey)
	if err != nil {
		return err
	}

	record, err := s.store.GetIdentity(pubkey)
	if err != nil || record.Status != store.StatusActive {
		return fmt.Errorf("no active link for %s", pubkey)
	}

	record.PrivacyMode = mode
	return s.store.SetIdentity(record)
}

// GetByKey returns the active link for a pubkey, or nil if there is none.
func (s *Service) GetByKey(pubkey string) *store.LinkedIdentity {
	pubkey, err := nostr.NormalizePubKey(pubkey)
	if err != nil {
		return nil
	}
	record, err := s.store.GetIdentity(pubkey)
	if err != nil || record.Status != store.StatusActive {
		return nil
	}
	return record
}

// GetByAddress returns the active link for a Botcash address, or nil.
func (s *Service) GetByAddress(address string) *store.LinkedIdentity {
	record, err := s.store.GetIdentityByAddress(address)
	if err != nil {
		return nil
	}
	return record
}

// ActiveIdentities returns every active link.
func (s *Service) ActiveIdentities() []*store.LinkedIdentity {
	res := []*store.LinkedIdentity{}
	for _, record := range s.store.Identities() {
		if record.Status == store.StatusActive {
			res = append(res, record)
		}
	}
	return res
}

// ActiveKeys returns the pubkeys of every active link.
func (s *Service) ActiveKeys() []string {
	identities := s.ActiveIdentities()
	keys := make([]string, len(identities))
	for i, record := range identities {
		keys[i] = record.PubKey
	}
	return keys
}
