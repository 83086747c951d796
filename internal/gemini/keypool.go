package gemini

import (
	"fmt"
	"sync/atomic"
)

// KeyPool hands out API keys round-robin. The key slice is copied at
// construction and never mutated afterwards; only the cursor moves, via
// an atomic increment, so Next is safe for concurrent callers.
type KeyPool struct {
	keys   []string
	cursor atomic.Uint64
}

func NewKeyPool(keys []string) (*KeyPool, error) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}
	return &KeyPool{keys: cleaned}, nil
}

// Next returns the next key in rotation.
func (p *KeyPool) Next() string {
	n := p.cursor.Add(1) - 1
	return p.keys[n%uint64(len(p.keys))]
}

// Len returns the number of keys in the pool.
func (p *KeyPool) Len() int {
	return len(p.keys)
}
