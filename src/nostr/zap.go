package nostr

import (
	"encoding/json"
	"strconv"
)

// ZapInfo is the value-transfer payload extracted from a zap request or
// receipt (NIP-57). Amounts are in millisatoshis, the protocol's smallest
// unit.
type ZapInfo struct {
	Sender      string
	Recipient   string
	TargetEvent string
	AmountMsats int64
	Message     string

	// Receipt only.
	ReceiptID string
	Zapper    string
	Bolt11    string
}

// ParseZapRequest extracts zap details from a kind-9734 event. Returns nil if
// the event is not a well-formed zap request.
func ParseZapRequest(e *Event) *ZapInfo {
	if e.Kind != KindZapRequest {
		return nil
	}

	recipients := e.TagValues("p")
	if len(recipients) == 0 {
		return nil
	}

	info := &ZapInfo{
		Sender:    e.PubKey,
		Recipient: recipients[0],
		Message:   e.Content,
	}

	if targets := e.TagValues("e"); len(targets) > 0 {
		info.TargetEvent = targets[0]
	}
	if amounts := e.TagValues("amount"); len(amounts) > 0 {
		msats, err := strconv.ParseInt(amounts[0], 10, 64)
		if err == nil {
			info.AmountMsats = msats
		}
	}

	return info
}

// ParseZapReceipt extracts zap details from a kind-9735 event. The receipt
// embeds the originating zap request, JSON encoded, in its "description" tag.
// Returns nil if the receipt or the embedded request is malformed.
func ParseZapReceipt(e *Event) *ZapInfo {
	if e.Kind != KindZapReceipt {
		return nil
	}

	descriptions := e.TagValues("description")
	if len(descriptions) == 0 {
		return nil
	}

	var request Event
	if err := json.Unmarshal([]byte(descriptions[0]), &request); err != nil {
		return nil
	}

	info := ParseZapRequest(&request)
	if info == nil {
		return nil
	}

	info.ReceiptID = e.ID
	info.Zapper = e.PubKey
	if invoices := e.TagValues("bolt11"); len(invoices) > 0 {
		info.Bolt11 = invoices[0]
	}

	return info
}
