package sticker

import "sync"

// Collection is the insertion-ordered, id-unique set of stickers currently
// in the jar. It is safe for concurrent use.
type Collection struct {
	mu    sync.RWMutex
	order []string
	items map[string]*Sticker
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{items: make(map[string]*Sticker)}
}

// Add appends s unless a sticker with the same id is already present.
// Returns false when s was a duplicate.
func (c *Collection) Add(s Sticker) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[s.ID]; ok {
		return false
	}
	v := s.Clone()
	c.items[s.ID] = &v
	c.order = append(c.order, s.ID)
	return true
}

// Update applies fn to the member with the given id. Membership and order
// never change. Returns false if id is not a member.
func (c *Collection) Update(id string, fn func(*Sticker)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.items[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Remove deletes the given ids, keeping the order of the rest.
// Returns the number of stickers removed.
func (c *Collection) Remove(ids ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.items[id]; ok {
			drop[id] = true
			delete(c.items, id)
		}
	}
	if len(drop) == 0 {
		return 0
	}

	kept := c.order[:0]
	for _, id := range c.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	c.order = kept
	return len(drop)
}

// Get returns a copy of the member with the given id.
func (c *Collection) Get(id string) (Sticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.items[id]
	if !ok {
		return Sticker{}, false
	}
	return s.Clone(), true
}

// Has reports whether id is a member.
func (c *Collection) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[id]
	return ok
}

// Len returns the number of members.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Snapshot returns copies of all members in insertion order.
func (c *Collection) Snapshot() []Sticker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Sticker, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id].Clone())
	}
	return out
}
