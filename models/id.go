package models

import (
	"sort"
	"sync"
)

// A sequential id generator. Released ids are handed out again, smallest
// first, before new ones are minted.
type SequentialIDGenerator struct {
	mutex       sync.Mutex
	currentID   uint32
	reusableIDs []uint32
}

// New returns a sequential id.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.reusableIDs) != 0 {
		id := g.reusableIDs[0]
		g.reusableIDs = g.reusableIDs[1:]
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Ids that were never issued or that
// are already reusable are ignored.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}

	i := sort.Search(len(g.reusableIDs), func(i int) bool {
		return g.reusableIDs[i] >= id
	})
	if i < len(g.reusableIDs) && g.reusableIDs[i] == id {
		return
	}

	g.reusableIDs = append(g.reusableIDs, 0)
	copy(g.reusableIDs[i+1:], g.reusableIDs[i:])
	g.reusableIDs[i] = id
}

// maxReserveGap bounds how far ahead of the last issued id Reserve accepts
// an id. Every skipped id becomes reusable.
const maxReserveGap = 1 << 16

// Reserve marks a specific id as issued. It reports false when the id is
// already in use or too far ahead of the last issued id.
func (g *SequentialIDGenerator) Reserve(id uint32) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 {
		return false
	}

	if id > g.currentID {
		if id-g.currentID > maxReserveGap {
			return false
		}
		for i := g.currentID + 1; i < id; i++ {
			g.reusableIDs = append(g.reusableIDs, i)
		}
		g.currentID = id
		return true
	}

	i := sort.Search(len(g.reusableIDs), func(i int) bool {
		return g.reusableIDs[i] >= id
	})
	if i == len(g.reusableIDs) || g.reusableIDs[i] != id {
		return false
	}

	g.reusableIDs = append(g.reusableIDs[:i], g.reusableIDs[i+1:]...)
	return true
}
