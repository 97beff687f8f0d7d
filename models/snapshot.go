package models

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/irk72ag/StarDrive/qtree"
)

// UniverseSnapshot is the state needed to recreate a universe.
type UniverseSnapshot struct {
	ID      uint32
	UUID    string
	Config  UniverseConfig
	Frame   uint64
	Objects []qtree.Object
}

// Snapshot copies the state of the universe. Pending changes are included.
func (u *Universe) Snapshot() UniverseSnapshot {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	return UniverseSnapshot{
		ID:      u.ID,
		UUID:    u.UUID,
		Config:  u.config,
		Frame:   u.frame,
		Objects: append([]qtree.Object(nil), u.tree.Objects()...),
	}
}

// RestoreUniverse recreates a universe from a snapshot. Object ids are
// preserved and the index is rebuilt, so changes that were pending when the
// snapshot was taken are indexed by the restored universe.
func RestoreUniverse(s UniverseSnapshot) (*Universe, error) {
	u, err := NewUniverse(s.ID, s.Config)
	if err != nil {
		return nil, err
	}

	if s.UUID != "" {
		u.UUID = s.UUID
	}
	u.frame = s.Frame

	for _, o := range s.Objects {
		id := u.tree.Insert(o)
		if !o.Active {
			u.tree.Remove(id)
		}
	}
	u.rebuild()

	instrumentSetObjectGauge(u.UUID, u.tree.Count())
	return u, nil
}

// Restore recreates a universe from a snapshot under its original id and
// starts its frame loop.
func (s *UniverseStore) Restore(snapshot UniverseSnapshot) (*Universe, error) {
	if !s.ids.Reserve(snapshot.ID) {
		return nil, errors.New("universe id already in use").
			WithType(ErrTypeInvalidUniverse).
			WithTag("universe_id", snapshot.ID)
	}

	universe, err := RestoreUniverse(snapshot)
	if err != nil {
		s.ids.Reuse(snapshot.ID)
		return nil, err
	}

	s.Add(universe)
	go universe.StartDispatchFrames()

	logs.WithTag("universe_id", universe.ID).
		WithTag("universe_uuid", universe.UUID).
		WithTag("objects", len(snapshot.Objects)).
		WithTag("frame", snapshot.Frame).
		Info("universe restored")
	return universe, nil
}

// Snapshots returns the snapshots of every universe, ordered by id.
func (s *UniverseStore) Snapshots() []UniverseSnapshot {
	universes := s.List()

	snapshots := make([]UniverseSnapshot, 0, len(universes))
	for _, u := range universes {
		snapshots = append(snapshots, u.Snapshot())
	}
	return snapshots
}
