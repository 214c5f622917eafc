package crypto

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"

	"github.com/btcsuite/btcd/btcec"
)

/*
The bridge owns a secp256k1 key-pair that identifies it on the Nostr side. We
use btcsuite's implementation of the curve, which is the same curve used by
Nostr clients, so the bridge key is a regular Nostr identity. Nostr represents
public keys in x-only form: the 32-byte X coordinate, hex encoded.
*/

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey(btcec.S256())
}

// ParseKey creates a private key from its 32-byte big-endian scalar.
func ParseKey(d []byte) (*btcec.PrivateKey, error) {
	if len(d) != 32 {
		return nil, fmt.Errorf("invalid private key length %d, need 32 bytes", len(d))
	}
	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)
	return priv, nil
}

// PublicKeyHex returns the x-only hex form of a public key, as used in Nostr
// event pubkey and tag fields.
func PublicKeyHex(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed()[1:])
}

// SimpleKeyfile reads and writes a private key from/to an unencrypted,
// hex-encoded file.
type SimpleKeyfile struct {
	l string
}

// NewSimpleKeyfile returns a SimpleKeyfile backed by the file at location l.
func NewSimpleKeyfile(l string) *SimpleKeyfile {
	return &SimpleKeyfile{l: l}
}

// ReadKey parses the key from the underlying file.
func (k *SimpleKeyfile) ReadKey() (*btcec.PrivateKey, error) {
	buf, err := ioutil.ReadFile(k.l)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, fmt.Errorf("parsing keyfile %s: %v", k.l, err)
	}
	return ParseKey(raw)
}

// WriteKey writes the hex encoding of the key to the underlying file,
// creating parent directories as needed.
func (k *SimpleKeyfile) WriteKey(key *btcec.PrivateKey) error {
	if err := os.MkdirAll(path.Dir(k.l), 0700); err != nil {
		return err
	}
	keyString := hex.EncodeToString(key.Serialize())
	return ioutil.WriteFile(k.l, []byte(keyString), 0600)
}

// ReadOrGenerateKey returns the key stored in the keyfile, or creates and
// persists a fresh one when the file does not exist yet.
func ReadOrGenerateKey(keyfile string) (*btcec.PrivateKey, error) {
	kf := NewSimpleKeyfile(keyfile)
	if key, err := kf.ReadKey(); err == nil {
		return key, nil
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := kf.WriteKey(key); err != nil {
		return nil, err
	}
	return key, nil
}
