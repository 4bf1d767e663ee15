package model

import (
	"errors"
	"strings"
	"sync"
)

// ErrNoKeys means no API key was configured.
var ErrNoKeys = errors.New("no model API keys configured")

// KeyRing rotates through API keys when one stops working.
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyRing keeps the non-blank keys in order.
func NewKeyRing(keys []string) (*KeyRing, error) {
	var clean []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	if len(clean) == 0 {
		return nil, ErrNoKeys
	}
	return &KeyRing{keys: clean}, nil
}

// Current returns the active key and its index.
func (k *KeyRing) Current() (int, string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.idx, k.keys[k.idx]
}

// Rotate advances to the next key, wrapping around, and returns its index.
func (k *KeyRing) Rotate() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.idx = (k.idx + 1) % len(k.keys)
	return k.idx
}

// Len returns the number of keys.
func (k *KeyRing) Len() int {
	return len(k.keys)
}
