package vdoc

import (
	"container/list"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/walteh/erbls/pkg/projection"
)

const DefaultCapacity = 512

// Key names one view of one real document.
type Key struct {
	Identity string
	View     projection.View
}

func (k Key) String() string {
	return k.Identity + "#" + k.View.Extension()
}

func (k Key) URI() string {
	return Encode(k.Identity, k.View)
}

// Entry is the latest projection stored for a key.
type Entry struct {
	Key     Key
	Text    string
	Hash    [32]byte
	Version int32
	// Changed is false when Store saw the same text as the previous entry.
	Changed bool
}

// Registry keeps the most recent projection per key in a bounded LRU.
type Registry struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[Key]*list.Element
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[Key]*list.Element),
	}
}

// Store records text for key. The version only moves when the content hash
// changes.
func (r *Registry) Store(key Key, text string) Entry {
	hash := blake3.Sum256([]byte(text))

	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.entries[key]; ok {
		r.order.MoveToFront(el)
		prev := el.Value.(*Entry)
		if prev.Hash == hash {
			out := *prev
			out.Changed = false
			return out
		}
		prev.Text = text
		prev.Hash = hash
		prev.Version++
		prev.Changed = true
		return *prev
	}

	e := &Entry{Key: key, Text: text, Hash: hash, Version: 1, Changed: true}
	r.entries[key] = r.order.PushFront(e)
	for r.order.Len() > r.capacity {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		delete(r.entries, oldest.Value.(*Entry).Key)
	}
	return *e
}

func (r *Registry) Get(key Key) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	r.order.MoveToFront(el)
	return *el.Value.(*Entry), true
}

// Delete drops every view of identity.
func (r *Registry) Delete(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, view := range []projection.View{projection.ViewMarkup, projection.ViewScripting} {
		key := Key{Identity: identity, View: view}
		if el, ok := r.entries[key]; ok {
			r.order.Remove(el)
			delete(r.entries, key)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
