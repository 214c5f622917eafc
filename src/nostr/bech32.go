package nostr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

/*
NIP-19 human-readable encodings. Pubkeys, private keys and event ids are
32-byte values; the bech32 forms (npub1..., nsec1..., note1...) are used for
identity linking and display, never on the relay hot path.
*/

func decodeBech32(prefix string, encoded string) (string, error) {
	if !strings.HasPrefix(encoded, prefix+"1") {
		return "", fmt.Errorf("invalid %s: must start with '%s1'", prefix, prefix)
	}

	hrp, data, err := bech32.Decode(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid %s encoding: %v", prefix, err)
	}
	if hrp != prefix {
		return "", fmt.Errorf("invalid %s encoding: prefix %q", prefix, hrp)
	}

	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil || len(decoded) != 32 {
		return "", fmt.Errorf("invalid %s: wrong length", prefix)
	}

	return hex.EncodeToString(decoded), nil
}

func encodeBech32(prefix string, hexString string) (string, error) {
	if len(hexString) != 64 {
		return "", fmt.Errorf("invalid %s hex: must be 64 characters", prefix)
	}

	raw, err := hex.DecodeString(hexString)
	if err != nil {
		return "", fmt.Errorf("invalid %s hex: %v", prefix, err)
	}

	converted, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}

	return bech32.Encode(prefix, converted)
}

// NpubToHex converts an npub1... public key to its hex form.
func NpubToHex(npub string) (string, error) {
	return decodeBech32("npub", npub)
}

// HexToNpub converts a hex public key to npub1... form.
func HexToNpub(pubkey string) (string, error) {
	return encodeBech32("npub", pubkey)
}

// NsecToHex converts an nsec1... private key to its hex form.
func NsecToHex(nsec string) (string, error) {
	return decodeBech32("nsec", nsec)
}

// HexToNsec converts a hex private key to nsec1... form.
func HexToNsec(privkey string) (string, error) {
	return encodeBech32("nsec", privkey)
}

// NoteToHex converts a note1... event id to its hex form.
func NoteToHex(note string) (string, error) {
	return decodeBech32("note", note)
}

// HexToNote converts a hex event id to note1... form.
func HexToNote(eventID string) (string, error) {
	return encodeBech32("note", eventID)
}

// NormalizePubKey accepts a pubkey in either npub or hex form and returns the
// hex form.
func NormalizePubKey(pubkey string) (string, error) {
	if strings.HasPrefix(pubkey, "npub") {
		return NpubToHex(pubkey)
	}
	if len(pubkey) != 64 {
		return "", fmt.Errorf("invalid pubkey: must be 64 hex characters")
	}
	if _, err := hex.DecodeString(pubkey); err != nil {
		return "", fmt.Errorf("invalid pubkey: not valid hex")
	}
	return pubkey, nil
}
