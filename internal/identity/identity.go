// Package identity derives the opaque storage key of a user from their passphrase.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/argon2"
)

// ErrEmptyPassphrase is returned for blank passphrases.
var ErrEmptyPassphrase = errors.New("passphrase is required")

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLength    = 32

	keyCacheTTL = time.Hour
)

// Deriver turns passphrases into user keys. Keys are stable for a given salt.
// Derived keys are cached so repeated requests skip the Argon2id cost.
type Deriver struct {
	salt []byte
	keys *cache.Cache
}

// NewDeriver creates a Deriver with the deployment-wide salt.
func NewDeriver(salt string) *Deriver {
	return &Deriver{salt: []byte(salt), keys: cache.New(keyCacheTTL, 2*keyCacheTTL)}
}

// UserKey returns the hex-encoded Argon2id hash of the trimmed passphrase.
func (d *Deriver) UserKey(passphrase string) (string, error) {
	passphrase = strings.TrimSpace(passphrase)
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}

	// The cache never holds the passphrase itself.
	digest := sha256.Sum256([]byte(passphrase))
	cacheKey := hex.EncodeToString(digest[:])
	if key, found := d.keys.Get(cacheKey); found {
		return key.(string), nil
	}

	key := hex.EncodeToString(argon2.IDKey([]byte(passphrase), d.salt, argonTime, argonMemory, argonThreads, keyLength))
	d.keys.Set(cacheKey, key, cache.DefaultExpiration)
	return key, nil
}
