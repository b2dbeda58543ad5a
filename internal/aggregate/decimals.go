package aggregate

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DecimalsCache maps pool token addresses to their decimals as announced
// by PoolCreated events.
type DecimalsCache struct {
	mu       sync.RWMutex
	data     map[common.Address]uint8
	fallback uint8
}

func NewDecimalsCache(fallback uint8) *DecimalsCache {
	return &DecimalsCache{data: make(map[common.Address]uint8), fallback: fallback}
}

// Get returns the decimals for address and whether they were announced.
// Unknown pools report the fallback.
func (c *DecimalsCache) Get(address common.Address) (uint8, bool) {
	c.mu.RLock()
	decimals, ok := c.data[address]
	c.mu.RUnlock()
	if !ok {
		return c.fallback, false
	}
	return decimals, true
}

func (c *DecimalsCache) Set(address common.Address, decimals uint8) {
	c.mu.Lock()
	c.data[address] = decimals
	c.mu.Unlock()
}
