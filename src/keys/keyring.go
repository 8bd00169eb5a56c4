package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
)

var ErrNoCustodialKey = errors.New("no custodial key for account")

// Keyring keeps the private keys of custodial accounts.
type Keyring struct {
	lock sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

func NewKeyring() *Keyring {
	return &Keyring{keys: map[string]ed25519.PrivateKey{}}
}

func (k *Keyring) Put(userID string, priv ed25519.PrivateKey) {
	k.lock.Lock()
	k.keys[userID] = priv
	k.lock.Unlock()
}

// PutSeed restores a key from its hex encoded 32 byte seed.
func (k *Keyring) PutSeed(userID, seedHex string) error {
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return errors.Errorf("malformed key seed for %s", userID)
	}
	k.Put(userID, ed25519.NewKeyFromSeed(seed))
	return nil
}

func (k *Keyring) Sign(userID string, in Intent) (string, error) {
	k.lock.RLock()
	priv, ok := k.keys[userID]
	k.lock.RUnlock()
	if !ok {
		return "", errors.Wrap(ErrNoCustodialKey, userID)
	}
	return Sign(in, priv), nil
}

// SeedHex returns the hex seed of a stored key, for persistence.
func SeedHex(priv ed25519.PrivateKey) string {
	return hex.EncodeToString(priv.Seed())
}
