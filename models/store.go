package models

import (
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// UniverseStore holds the universes served by the process. Universes are
// addressed by the id the store hands out when they are created.
type UniverseStore struct {
	initOnce  sync.Once
	mutex     sync.RWMutex
	universes map[uint32]*Universe
	ids       SequentialIDGenerator
}

func (s *UniverseStore) init() {
	s.universes = map[uint32]*Universe{}
}

func (s *UniverseStore) NewID() uint32 {
	return s.ids.New()
}

// New creates a universe, registers it and starts its frame loop when the
// config has a frame duration.
func (s *UniverseStore) New(config UniverseConfig) (*Universe, error) {
	id := s.NewID()

	universe, err := NewUniverse(id, config)
	if err != nil {
		s.ids.Reuse(id)
		return nil, err
	}

	s.Add(universe)
	go universe.StartDispatchFrames()

	logs.WithTag("universe_id", universe.ID).
		WithTag("universe_uuid", universe.UUID).
		WithTag("universe_size", config.UniverseSize).
		WithTag("smallest_cell", config.SmallestCell).
		WithTag("frame_duration", config.FrameDuration).
		Info("universe created")
	return universe, nil
}

func (s *UniverseStore) Add(universe *Universe) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.universes[universe.ID] = universe

	instrumentIncreaseUniverseGauge()
	instrumentCountUniverse()
}

// Remove closes and unregisters a universe. Its id can be handed out again.
func (s *UniverseStore) Remove(id uint32) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	universe, ok := s.universes[id]
	if !ok {
		return universeNotFound(id)
	}

	delete(s.universes, id)
	universe.Close()

	s.ids.Reuse(id)

	instrumentDecreaseUniverseGauge()

	logs.WithTag("universe_id", universe.ID).
		WithTag("universe_uuid", universe.UUID).
		Info("universe destroyed")
	return nil
}

func (s *UniverseStore) Get(id uint32) (*Universe, error) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	universe, ok := s.universes[id]
	if !ok {
		return nil, universeNotFound(id)
	}
	return universe, nil
}

// List returns the universes ordered by id.
func (s *UniverseStore) List() []*Universe {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	universes := make([]*Universe, 0, len(s.universes))
	for _, u := range s.universes {
		universes = append(universes, u)
	}

	sort.Slice(universes, func(i, j int) bool {
		return universes[i].ID < universes[j].ID
	})
	return universes
}

func (s *UniverseStore) Count() int {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.universes)
}

// Close removes every universe.
func (s *UniverseStore) Close() {
	for _, u := range s.List() {
		s.Remove(u.ID)
	}
}

func universeNotFound(id uint32) error {
	return errors.New("universe not found").
		WithType(ErrTypeUniverseNotFound).
		WithTag("universe_id", id)
}
