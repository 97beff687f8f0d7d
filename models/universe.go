package models

import (
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/irk72ag/StarDrive/featureflag"
	"github.com/irk72ag/StarDrive/qtree"
)

// maxLevels bounds the depth of the trees a universe accepts.
const maxLevels = 24

// UniverseConfig describes the space covered by a universe and how often its
// frames are simulated.
type UniverseConfig struct {
	// Width of the square universe centered on the origin.
	UniverseSize float32

	// Width of the smallest quadrant the tree can subdivide into.
	SmallestCell float32

	// Interval between two frames dispatched by StartDispatchFrames. Frames
	// are only stepped explicitly when zero.
	FrameDuration time.Duration

	Flags featureflag.FeatureFlag
}

// Validate checks that the config describes a tree of reasonable depth.
func (c UniverseConfig) Validate() error {
	if !(c.UniverseSize > 0) {
		return errors.New("universe size must be positive").
			WithType(ErrTypeInvalidUniverse).
			WithTag("universe_size", c.UniverseSize)
	}

	if !(c.SmallestCell > 0) {
		return errors.New("smallest cell must be positive").
			WithType(ErrTypeInvalidUniverse).
			WithTag("smallest_cell", c.SmallestCell)
	}

	if c.UniverseSize/c.SmallestCell > 1<<(maxLevels-1) {
		return errors.New("universe too large for the smallest cell").
			WithType(ErrTypeInvalidUniverse).
			WithTag("universe_size", c.UniverseSize).
			WithTag("smallest_cell", c.SmallestCell).
			WithTag("max_levels", maxLevels)
	}

	if c.FrameDuration < 0 {
		return errors.New("frame duration must not be negative").
			WithType(ErrTypeInvalidUniverse).
			WithTag("frame_duration", c.FrameDuration)
	}

	return nil
}

// CollisionPair is two overlapping objects.
type CollisionPair struct {
	A int32 `json:"a"`
	B int32 `json:"b"`
}

// CollisionFrame is the result of one simulation step.
type CollisionFrame struct {
	UniverseID uint32          `json:"universe_id"`
	Frame      uint64          `json:"frame"`
	TimeStep   float32         `json:"time_step"`
	Collisions []CollisionPair `json:"collisions"`
}

// UniverseInfo is a snapshot of the state of a universe.
type UniverseInfo struct {
	ID             uint32          `json:"id"`
	UUID           string          `json:"uuid"`
	UniverseSize   float32         `json:"universe_size"`
	SmallestCell   float32         `json:"smallest_cell"`
	Levels         int             `json:"levels"`
	FullSize       float32         `json:"full_size"`
	Objects        int             `json:"objects"`
	Frame          uint64          `json:"frame"`
	PendingChanges bool            `json:"pending_changes"`
	Subscribers    int             `json:"subscribers"`
	Tree           qtree.TreeStats `json:"tree"`
}

// Universe is a spatial index and the frame loop that simulates it. Every
// call to the index is serialized by the universe.
type Universe struct {
	ID   uint32
	UUID string

	config UniverseConfig

	mutex sync.Mutex
	tree  *qtree.QuadTree
	frame uint64
	dirty bool

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func(CollisionFrame)
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewUniverse(id uint32, config UniverseConfig) (*Universe, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	u := &Universe{
		ID:             id,
		UUID:           uuid.New().String(),
		config:         config,
		tree:           qtree.New(config.UniverseSize, config.SmallestCell),
		closeFrameChan: make(chan struct{}, 1),
		frameHandlers:  make(map[uint32]func(CollisionFrame)),
	}

	if config.FrameDuration > 0 {
		u.frameTicker = time.NewTicker(config.FrameDuration)
	}
	return u, nil
}

func (u *Universe) Config() UniverseConfig {
	return u.config
}

func (u *Universe) Close() {
	u.closeOnce.Do(func() {
		if u.frameTicker != nil {
			u.frameTicker.Stop()
		}
		u.closeFrameChan <- struct{}{}

		instrumentDeleteObjectGauge(u.UUID)
	})
}

// Insert adds an object and returns its id. The object is indexed on the
// next rebuild.
func (u *Universe) Insert(o qtree.Object) (int32, error) {
	if o.Radius < 0 {
		return -1, errors.New("object radius must not be negative").
			WithType(ErrTypeInvalidObject).
			WithTag("universe_id", u.ID).
			WithTag("radius", o.Radius)
	}

	u.mutex.Lock()
	defer u.mutex.Unlock()

	id := u.tree.Insert(o)
	u.dirty = true
	instrumentSetObjectGauge(u.UUID, u.tree.Count())
	return id, nil
}

func (u *Universe) Get(id int32) (qtree.Object, error) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	o, ok := u.tree.Get(id)
	if !ok {
		return qtree.Object{}, u.objectNotFound(id)
	}
	return o, nil
}

// Update moves an object. The move is indexed on the next rebuild.
func (u *Universe) Update(id int32, x, y int32) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.tree.Update(id, x, y) {
		return u.objectNotFound(id)
	}
	u.dirty = true
	return nil
}

// SetRadius changes the collision radius of an object. The change is indexed
// on the next rebuild.
func (u *Universe) SetRadius(id int32, radius int32) error {
	if radius < 0 {
		return errors.New("object radius must not be negative").
			WithType(ErrTypeInvalidObject).
			WithTag("universe_id", u.ID).
			WithTag("object_id", id).
			WithTag("radius", radius)
	}

	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.tree.SetRadius(id, radius) {
		return u.objectNotFound(id)
	}
	u.dirty = true
	return nil
}

// Remove deactivates an object. It leaves the index on the next rebuild.
func (u *Universe) Remove(id int32) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	o, ok := u.tree.Get(id)
	if !ok || !o.Active {
		return u.objectNotFound(id)
	}

	u.tree.Remove(id)
	u.dirty = true
	return nil
}

// Clear drops every object. Object ids restart at 0.
func (u *Universe) Clear() {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	u.tree.Clear()
	u.dirty = false
	instrumentSetObjectGauge(u.UUID, 0)
}

// Rebuild indexes every pending change.
func (u *Universe) Rebuild() qtree.TreeStats {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	u.rebuild()
	return u.tree.Stats()
}

// Collide reports the overlapping pairs of the current index without
// rebuilding it.
func (u *Universe) Collide(timeStep float32) CollisionFrame {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	return u.collide(timeStep)
}

// Step rebuilds the index, runs a collision pass and dispatches the
// resulting frame to the frame handlers.
func (u *Universe) Step(timeStep float32) CollisionFrame {
	u.mutex.Lock()
	u.rebuild()
	u.frame++

	frame := CollisionFrame{
		UniverseID: u.ID,
		Frame:      u.frame,
		TimeStep:   timeStep,
	}
	u.config.Flags.IfNotSet(featureflag.FlagDisableFrameCollisions, func() {
		frame = u.collide(timeStep)
	})
	u.mutex.Unlock()

	u.frameMutex.RLock()
	for _, h := range u.frameHandlers {
		h(frame)
	}
	u.frameMutex.RUnlock()

	return frame
}

// FindNearby returns the ids of the indexed objects matching opt. When
// onlyActive is set, objects removed since the last rebuild are left out.
func (u *Universe) FindNearby(opt qtree.SearchOptions, onlyActive bool) ([]int32, error) {
	if opt.MaxResults < 1 {
		return nil, errors.New("max results must be at least 1").
			WithType(ErrTypeInvalidSearch).
			WithTag("universe_id", u.ID).
			WithTag("max_results", opt.MaxResults)
	}

	if !(opt.SearchRadius >= 0) {
		return nil, errors.New("search radius must not be negative").
			WithType(ErrTypeInvalidSearch).
			WithTag("universe_id", u.ID).
			WithTag("search_radius", opt.SearchRadius)
	}

	u.mutex.Lock()
	defer u.mutex.Unlock()

	if onlyActive {
		objects := u.tree.Objects()
		next := opt.FilterFunction

		opt.FilterFunction = qtree.SearchFilterFunc(func(id int32) bool {
			if !objects[id].Active {
				return false
			}
			return next == nil || next.Filter(id)
		})
	}

	ids := u.tree.FindNearbyIDs(opt)
	instrumentCountSearch(len(ids))

	if u.config.Flags.IsSet(featureflag.FlagValidateSearch) && !u.dirty {
		u.validateSearch(opt, ids)
	}
	return ids, nil
}

// Visualize draws the current index.
func (u *Universe) Visualize(visible qtree.Rect, opt qtree.VisualizerOptions, v qtree.Visualizer) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	u.tree.DebugVisualizeWith(visible, opt, v)
}

func (u *Universe) Info() UniverseInfo {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	return UniverseInfo{
		ID:             u.ID,
		UUID:           u.UUID,
		UniverseSize:   u.tree.UniverseSize(),
		SmallestCell:   u.config.SmallestCell,
		Levels:         u.tree.Levels(),
		FullSize:       u.tree.FullSize(),
		Objects:        u.tree.Count(),
		Frame:          u.frame,
		PendingChanges: u.dirty,
		Subscribers:    u.Subscribers(),
		Tree:           u.tree.Stats(),
	}
}

// HandleFrame registers a handler called with every frame produced by Step.
// Handlers run on the stepping goroutine and must not call Step.
func (u *Universe) HandleFrame(h func(CollisionFrame)) (cancel func()) {
	u.frameMutex.Lock()
	defer u.frameMutex.Unlock()

	id := u.frameHandlerIDs.New()
	u.frameHandlers[id] = h

	return func() {
		u.frameMutex.Lock()
		defer u.frameMutex.Unlock()

		if _, ok := u.frameHandlers[id]; !ok {
			return
		}
		delete(u.frameHandlers, id)
		u.frameHandlerIDs.Reuse(id)
	}
}

// Subscribers returns the number of registered frame handlers.
func (u *Universe) Subscribers() int {
	u.frameMutex.RLock()
	defer u.frameMutex.RUnlock()

	return len(u.frameHandlers)
}

// StartDispatchFrames steps the universe at every frame duration until the
// universe is closed. It returns immediately when the frame duration is
// zero.
func (u *Universe) StartDispatchFrames() {
	if u.frameTicker == nil {
		return
	}

	timeStep := float32(u.config.FrameDuration.Seconds())

	u.startFrameOnce.Do(func() {
		for {
			select {
			case <-u.closeFrameChan:
				return

			case <-u.frameTicker.C:
				u.Step(timeStep)
			}
		}
	})
}

func (u *Universe) rebuild() {
	start := time.Now()
	u.tree.Rebuild()
	u.dirty = false
	instrumentRebuild(start)
}

func (u *Universe) collide(timeStep float32) CollisionFrame {
	frame := CollisionFrame{
		UniverseID: u.ID,
		Frame:      u.frame,
		TimeStep:   timeStep,
		Collisions: []CollisionPair{},
	}

	collider := qtree.CollisionFunc(func(a, b int32) bool {
		frame.Collisions = append(frame.Collisions, CollisionPair{A: a, B: b})
		return true
	})

	variant := collideIterative
	collideAll := u.tree.CollideAll
	u.config.Flags.IfSet(featureflag.FlagCollideRecursive, func() {
		variant = collideRecursive
		collideAll = u.tree.CollideAllRecursive
	})
	collideAll(timeStep, collider)

	instrumentCountCollisions(variant, len(frame.Collisions))
	return frame
}

// validateSearch compares the result of a tree search with a linear scan of
// the object table. It is only meaningful without pending changes.
func (u *Universe) validateSearch(opt qtree.SearchOptions, ids []int32) {
	limit := int(opt.MaxResults)
	opt.MaxResults = int32(u.tree.Count()) + 1
	expected := qtree.LinearSearch(u.tree.Objects(), opt)

	mismatch := len(ids) != min(limit, len(expected))

	found := make(map[int32]struct{}, len(expected))
	for _, id := range expected {
		found[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			mismatch = true
			break
		}
	}

	if !mismatch {
		return
	}

	instrumentCountSearchMismatch()
	logs.Warn(errors.New("nearby search does not match linear search").
		WithTag("universe_id", u.ID).
		WithTag("origin_x", opt.OriginX).
		WithTag("origin_y", opt.OriginY).
		WithTag("search_radius", opt.SearchRadius).
		WithTag("results", len(ids)).
		WithTag("expected", len(expected)))
}

func (u *Universe) objectNotFound(id int32) error {
	return errors.New("object not found").
		WithType(ErrTypeObjectNotFound).
		WithTag("universe_id", u.ID).
		WithTag("object_id", id)
}
