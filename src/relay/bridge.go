package relay

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/botcash/nostr-bridge/src/botcash"
	"github.com/botcash/nostr-bridge/src/mapper"
	"github.com/botcash/nostr-bridge/src/nostr"
	"github.com/botcash/nostr-bridge/src/store"
)

// bridgeToBotcash forwards a freshly stored event to Botcash when its author
// has an active link and their privacy mode permits it. Errors are logged and
// swallowed; no audit row is written unless the remote call succeeded.
func (r *Relay) bridgeToBotcash(event *nostr.Event) {
	link := r.identity.GetByKey(event.PubKey)
	if link == nil {
		return
	}
	if link.PrivacyMode == store.ReadOnly {
		return
	}
	if link.PrivacyMode == store.Private && event.Kind != nostr.KindEncryptedDM {
		return
	}

	mapped := r.mapper.NativeToBotcash(event)
	if mapped == nil {
		return
	}

	txID, err := r.dispatchToBotcash(link, mapped)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"event_id":     event.ID,
			"message_type": mapped.Type,
			"error":        err,
		}).Error("Bridging to Botcash failed")
		return
	}
	if txID == "" {
		// No target mapping or recipient; skip silently.
		return
	}

	relayed := &store.RelayedMessage{
		PubKey:      event.PubKey,
		Direction:   store.DirectionNativeToBotcash,
		EventID:     event.ID,
		Kind:        event.Kind,
		TxID:        txID,
		MessageType: mapped.Type,
		ContentHash: r.mapper.ContentHash(mapped.Content),
		CreatedAt:   time.Now().Unix(),
	}
	if err := r.store.SetRelayed(relayed); err != nil {
		r.logger.WithError(err).Error("Failed to record relayed message")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"event_id":     event.ID,
		"tx_id":        txID,
		"message_type": mapped.Type,
	}).Info("Bridged event to Botcash")
}

// dispatchToBotcash invokes the Botcash operation matching the mapped type.
// It returns an empty tx id, without error, when a required target has no
// mapping in the relayed-message log.
func (r *Relay) dispatchToBotcash(link *store.LinkedIdentity, mapped *mapper.Mapped) (string, error) {
	switch mapped.Type {
	case mapper.TypePost:
		return r.botcash.CreatePost(link.Address, mapped.Content, mapped.Hashtags)

	case mapper.TypeReply:
		replyToTx := r.resolveEventToTx(mapped.ReplyTo)
		if replyToTx == "" {
			return "", nil
		}
		return r.botcash.CreateReply(link.Address, mapped.Content, replyToTx)

	case mapper.TypeDM:
		recipient := r.identity.GetByKey(mapped.Recipient)
		if recipient == nil {
			return "", nil
		}
		return r.botcash.SendDM(link.Address, recipient.Address, mapped.Content)

	case mapper.TypeUpvote, mapper.TypeDownvote:
		targetTx := r.resolveEventToTx(mapped.TargetEventID)
		if targetTx == "" {
			return "", nil
		}
		return r.botcash.Upvote(link.Address, targetTx)

	case mapper.TypeTip:
		recipient := r.identity.GetByKey(mapped.TargetPubKey)
		if recipient == nil {
			return "", nil
		}
		targetTx := r.resolveEventToTx(mapped.TargetEventID)
		return r.botcash.Tip(link.Address, recipient.Address, zatoshisFromBCASH(mapped.AmountBCASH), targetTx)

	default:
		// follow_list, profile, and tip_request have no on-chain operation.
		return "", nil
	}
}

// zatoshisFromBCASH converts a BCASH amount to zatoshis, rounding to the
// nearest unit so float error cannot shave a zatoshi off the tip.
func zatoshisFromBCASH(amount float64) int64 {
	return int64(math.Round(amount * botcash.ZatoshisPerBCASH))
}

// resolveEventToTx maps a native event id to the Botcash tx it was bridged
// as, or "" when it was never bridged.
func (r *Relay) resolveEventToTx(eventID string) string {
	if eventID == "" {
		return ""
	}
	relayed, err := r.store.GetRelayedByEventID(eventID)
	if err != nil {
		return ""
	}
	return relayed.TxID
}
