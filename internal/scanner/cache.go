package scanner

import (
	"sort"
	"sync"

	"github.com/stealthpool/client-go/internal/program"
)

// entry is everything a scan keeps from one deposit record.
type entry struct {
	sequenceID           uint64
	amount               uint64
	stealthPubkey        [program.StealthPubkeySize]byte
	ephemeralPubkey      [program.EphemeralPubkeySize]byte
	viewTag              byte
	encryptedDestination [program.EncryptedDestinationSize]byte
	ciphertext           []byte
	legacy               bool
	executed             bool
}

func entryFromRecord(rec *program.DepositRecord, legacy bool) *entry {
	e := &entry{
		sequenceID:           rec.SequenceID,
		executed:             rec.Executed,
		amount:               rec.Amount,
		stealthPubkey:        rec.StealthPubkey,
		ephemeralPubkey:      rec.EphemeralPubkey,
		viewTag:              rec.ViewTag,
		encryptedDestination: rec.EncryptedDestination,
		legacy:               legacy,
	}
	if !legacy {
		e.ciphertext = make([]byte, program.CiphertextSize)
		copy(e.ciphertext, rec.Ciphertext[:])
	}
	return e
}

// Cache carries extracted deposit records between scans.
//
// lastScanned only advances over a contiguous run of resolved ids, so a
// record that was mid-upload or could not be read is fetched again next time.
type Cache struct {
	// scan serializes passes that share this cache.
	scan sync.Mutex

	mu          sync.RWMutex
	lastScanned uint64
	entries     map[uint64]*entry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64]*entry)}
}

// LastScannedID returns the highest sequence id below which every record has
// been resolved.
func (c *Cache) LastScannedID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastScanned
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every cached record.
func (c *Cache) Reset() {
	c.scan.Lock()
	defer c.scan.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastScanned = 0
	c.entries = make(map[uint64]*entry)
}

func (c *Cache) empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastScanned == 0 && len(c.entries) == 0
}

func (c *Cache) has(id uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

func (c *Cache) put(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[uint64]*entry)
	}
	c.entries[e.sequenceID] = e
}

// evict drops the entry for id.
func (c *Cache) evict(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// advance moves lastScanned forward, up to upTo, while the next id is
// resolved.
func (c *Cache) advance(resolved map[uint64]bool, upTo uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.lastScanned < upTo {
		next := c.lastScanned + 1
		if _, cached := c.entries[next]; !cached && !resolved[next] {
			return
		}
		c.lastScanned = next
	}
}

// snapshot returns the cached entries ordered by sequence id.
func (c *Cache) snapshot() []*entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sequenceID < out[j].sequenceID })
	return out
}
