package events

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Entry is one emitted event. Address is the pool for pool-scoped events
// and the engine otherwise.
type Entry struct {
	Seq       uint64
	Name      string
	Address   common.Address
	Timestamp time.Time
	Payload   interface{}
}

// Journal is an append-only, ordered event log shared by one engine.
type Journal struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewJournal() *Journal {
	return &Journal{}
}

// Append records an event and returns it with its sequence number.
func (j *Journal) Append(name string, addr common.Address, ts time.Time, payload interface{}) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry := Entry{
		Seq:       uint64(len(j.entries)) + 1,
		Name:      name,
		Address:   addr,
		Timestamp: ts,
		Payload:   payload,
	}
	j.entries = append(j.entries, entry)
	return entry
}

// Since returns the entries with Seq greater than seq.
func (j *Journal) Since(seq uint64) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if seq >= uint64(len(j.entries)) {
		return nil
	}
	out := make([]Entry, uint64(len(j.entries))-seq)
	copy(out, j.entries[seq:])
	return out
}

// Len returns the number of recorded entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Filter returns the entries with the given name, in order.
func (j *Journal) Filter(name string) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Entry
	for _, e := range j.entries {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
