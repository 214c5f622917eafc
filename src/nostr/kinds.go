package nostr

// Event kinds understood by the bridge.
//
// References:
// - NIP-01: basic protocol (kinds 0, 1, 3)
// - NIP-04: encrypted direct messages (kind 4)
// - NIP-25: reactions (kind 7)
// - NIP-57: zaps (kinds 9734, 9735)
const (
	KindMetadata    = 0
	KindTextNote    = 1
	KindContacts    = 3
	KindEncryptedDM = 4
	KindReaction    = 7
	KindZapRequest  = 9734
	KindZapReceipt  = 9735
)

// DefaultAllowedKinds returns the relay's default kind allow-list. Callers
// get a fresh slice they may modify.
func DefaultAllowedKinds() []int {
	return []int{
		KindMetadata,
		KindTextNote,
		KindContacts,
		KindEncryptedDM,
		KindReaction,
		KindZapRequest,
		KindZapReceipt,
	}
}
