package relay

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/botcash/nostr-bridge/src/botcash"
	cm "github.com/botcash/nostr-bridge/src/common"
	"github.com/botcash/nostr-bridge/src/mapper"
	"github.com/botcash/nostr-bridge/src/store"
)

// pollLoop periodically mirrors new Botcash posts into the relay for every
// active full_mirror identity. It runs until Shutdown.
func (r *Relay) pollLoop() {
	defer r.waitGroup.Done()

	ticker := time.NewTicker(r.conf.PollInterval)
	defer ticker.Stop()

	r.logger.WithField("interval", r.conf.PollInterval).Debug("Feed poller started")

	for {
		select {
		case <-r.shutdownCh:
			r.logger.Debug("Feed poller stopped")
			return
		case <-ticker.C:
			r.pollOnce()
		}
	}
}

// pollOnce fetches one feed page for the mirrored addresses and bridges every
// post not already in the relayed-message log.
func (r *Relay) pollOnce() {
	addresses := []string{}
	byAddress := map[string]*store.LinkedIdentity{}
	for _, link := range r.identity.ActiveIdentities() {
		if link.PrivacyMode != store.FullMirror {
			continue
		}
		addresses = append(addresses, link.Address)
		byAddress[link.Address] = link
	}
	if len(addresses) == 0 {
		return
	}

	posts, err := r.botcash.GetFeed(addresses, r.conf.FeedLimit, 0)
	if err != nil {
		r.logger.WithError(err).Error("Feed poll failed")
		return
	}

	for _, post := range posts {
		link, ok := byAddress[post.Address]
		if !ok {
			continue
		}
		if _, err := r.store.GetRelayedByTxID(post.TxID); err == nil {
			continue
		}
		r.bridgeFromBotcash(link, post)
	}
}

// bridgeFromBotcash mints a native event for one Botcash post, persists it,
// records the audit row, and pushes it to matching subscriptions. Failed
// transactions are retried on later polls, up to the configured bound.
func (r *Relay) bridgeFromBotcash(link *store.LinkedIdentity, post *botcash.Post) {
	r.coreLock.Lock()
	retries := r.bridgeRetries[post.TxID]
	r.coreLock.Unlock()
	if retries >= r.conf.MaxBridgeRetries {
		return
	}

	meta := &mapper.Meta{
		TxID:           post.TxID,
		BotcashAddress: post.Address,
		ReplyToEvent:   r.resolveTxToEvent(post.ReplyToTx),
	}

	messageType := post.MessageType
	if messageType == "" {
		messageType = mapper.TypePost
	}

	event := r.mapper.BotcashToNative(messageType, post.Content, link.PubKey, meta)
	if event == nil {
		r.logger.WithFields(logrus.Fields{
			"tx_id":        post.TxID,
			"message_type": messageType,
		}).Debug("Post has no native mapping")
		// No mapping will ever exist; burn the retries.
		r.chargeBridgeRetry(post.TxID, r.conf.MaxBridgeRetries)
		return
	}

	if err := r.store.SetEvent(event); err != nil && !cm.IsStore(err, cm.KeyAlreadyExists) {
		r.logger.WithError(err).Error("Failed to store mirrored event")
		r.chargeBridgeRetry(post.TxID, 1)
		return
	}

	relayed := &store.RelayedMessage{
		PubKey:      link.PubKey,
		Direction:   store.DirectionBotcashToNative,
		EventID:     event.ID,
		Kind:        event.Kind,
		TxID:        post.TxID,
		MessageType: messageType,
		ContentHash: r.mapper.ContentHash(post.Content),
		CreatedAt:   time.Now().Unix(),
	}
	if err := r.store.SetRelayed(relayed); err != nil {
		r.logger.WithError(err).Error("Failed to record mirrored message")
		r.chargeBridgeRetry(post.TxID, 1)
		return
	}

	r.broadcast(event)

	r.logger.WithFields(logrus.Fields{
		"tx_id":        post.TxID,
		"event_id":     event.ID,
		"message_type": messageType,
	}).Info("Bridged Botcash post to relay")
}

func (r *Relay) chargeBridgeRetry(txID string, n int) {
	r.coreLock.Lock()
	r.bridgeRetries[txID] += n
	r.coreLock.Unlock()
}

// resolveTxToEvent maps a Botcash tx id back to the native event it was
// bridged from, or "" when unknown.
func (r *Relay) resolveTxToEvent(txID string) string {
	if txID == "" {
		return ""
	}
	relayed, err := r.store.GetRelayedByTxID(txID)
	if err != nil {
		return ""
	}
	return relayed.EventID
}
