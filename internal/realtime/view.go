package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/dental-credit/internal/core/events"
)

// Entry is one record held by a View.
type Entry struct {
	ID        int64                  `json:"id"`
	Record    map[string]interface{} `json:"record"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// View is a client-side copy of a table that merges local optimistic writes with pushed change events.
// A pushed event replaces the local record when its UpdatedAt is not older; a DELETE always removes it.
type View struct {
	mu      sync.Mutex
	table   string
	records map[int64]Entry
}

func NewView(table string) *View {
	return &View{table: table, records: make(map[int64]Entry)}
}

// Put records a local write.
func (v *View) Put(id int64, record map[string]interface{}, updatedAt time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records[id] = Entry{ID: id, Record: record, UpdatedAt: updatedAt}
}

// Apply merges a pushed event and reports whether the view changed.
func (v *View) Apply(ev ChangeEvent) bool {
	if ev.Table != v.table {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	local, ok := v.records[ev.RecordID]
	if ev.Type == events.OpDelete {
		if !ok {
			return false
		}
		delete(v.records, ev.RecordID)
		return true
	}
	if ok && ev.UpdatedAt.Before(local.UpdatedAt) {
		return false
	}
	v.records[ev.RecordID] = Entry{ID: ev.RecordID, Record: ev.Record, UpdatedAt: ev.UpdatedAt}
	return true
}

func (v *View) Get(id int64) (Entry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.records[id]
	return e, ok
}

// Entries returns the records ordered by id.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Entry, 0, len(v.records))
	for _, e := range v.records {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
