package alerts

import (
	"sync"
	"time"
)

// DedupStore remembers recently sent alerts so repeated scans of the same
// expiring credential do not spam the channel.
type DedupStore struct {
	records map[string]*AlertRecord
	window  time.Duration
	mu      sync.RWMutex
}

// NewDedupStore creates a new deduplication store
func NewDedupStore(window time.Duration) *DedupStore {
	if window <= 0 {
		window = 12 * time.Hour
	}
	return &DedupStore{
		records: make(map[string]*AlertRecord),
		window:  window,
	}
}

// IsDuplicate reports whether an alert with this key was sent within the
// dedup window.
func (d *DedupStore) IsDuplicate(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	record, exists := d.records[key]
	return exists && time.Since(record.SentAt) < d.window
}

// Record records a sent alert
func (d *DedupStore) Record(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if record, exists := d.records[key]; exists {
		record.SentAt = time.Now()
		record.Count++
		return
	}
	d.records[key] = &AlertRecord{
		AlertKey: key,
		SentAt:   time.Now(),
		Count:    1,
	}
}

// GetRecord gets the record for a key
func (d *DedupStore) GetRecord(key string) *AlertRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.records[key]
}

// Cleanup removes records older than the dedup window.
func (d *DedupStore) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, record := range d.records {
		if now.Sub(record.SentAt) > d.window {
			delete(d.records, key)
		}
	}
}

// Size returns the number of records
func (d *DedupStore) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.records)
}
