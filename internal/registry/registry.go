// Package registry keeps the set of peripherals seen during this process:
// one record per transport ID, in the order they were first seen.
package registry

import "sync"

// UnknownName is used for peripherals that never advertised a name.
const UnknownName = "Unknown"

// Record is a peripheral as shown to the user.
type Record struct {
	ID        string
	Name      string
	RSSI      *int // nil until a signal reading arrives
	Connected bool // true only while a session to this ID exists
}

// Registry maps peripheral ID to Record, ordered by first insertion.
// Records are never removed except by Clear. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*Record
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Upsert inserts rec, or merges it into the existing record with the same ID.
// Merging keeps fields the partial record leaves unset (empty Name, nil RSSI)
// and never changes Connected, which only MarkConnected controls.
func (r *Registry) Upsert(rec Record) {
	if rec.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[rec.ID]
	if !ok {
		name := rec.Name
		if name == "" {
			name = UnknownName
		}
		r.records[rec.ID] = &Record{ID: rec.ID, Name: name, RSSI: copyInt(rec.RSSI)}
		r.order = append(r.order, rec.ID)
		return
	}
	if rec.Name != "" {
		existing.Name = rec.Name
	}
	if rec.RSSI != nil {
		existing.RSSI = copyInt(rec.RSSI)
	}
}

// MarkConnected sets the Connected flag. Unknown IDs are ignored.
func (r *Registry) MarkConnected(id string, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.Connected = connected
	}
}

// SetRSSI stores a signal reading. Unknown IDs are ignored.
func (r *Registry) SetRSSI(id string, rssi int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.RSSI = &rssi
	}
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return clone(rec), true
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns copies of all records in insertion order.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, clone(r.records[id]))
	}
	return out
}

// Clear drops every record. Used on teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.records = make(map[string]*Record)
}

func clone(rec *Record) Record {
	c := *rec
	c.RSSI = copyInt(rec.RSSI)
	return c
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
