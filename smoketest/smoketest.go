package smoketest

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/irk72ag/StarDrive/qtree"
	"github.com/segmentio/encoding/json"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	defaultObjects      = 2000
	defaultSearches     = 200
	defaultUniverseSize = 100000
	defaultSmallestCell = 512
	maxObjects          = 100000
	maxSearches         = 10000
	maxUniverseSize     = 1 << 30
	maxObjectRadius     = 1 << 16
)

type Options struct {
	Endpoint string

	// Called with the results of every smoke test. Optional.
	SendResult func(context.Context, SmokeTestResults) error
}

// SmokeTestRequest configures the random part of a smoke test. Zero values
// are replaced by defaults.
type SmokeTestRequest struct {
	Seed         int64   `json:"seed"`
	Objects      int     `json:"objects"`
	Searches     int     `json:"searches"`
	UniverseSize float32 `json:"universe_size"`
	SmallestCell float32 `json:"smallest_cell"`
}

type CheckResult struct {
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	Error           string  `json:"error,omitempty"`
	LatencyMilliSec float64 `json:"latency_ms"`
}

type SmokeTestResults struct {
	Endpoint        string        `json:"endpoint"`
	Status          string        `json:"status"`
	Seed            int64         `json:"seed"`
	Checks          []CheckResult `json:"checks"`
	LatencyMilliSec float64       `json:"latency_ms"`
}

// HandleSmokeTest runs the spatial index against known scenarios and a
// brute force reference, then responds with the results.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Error(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req SmokeTestRequest
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				logs.WithTag("endpoint", opts.Endpoint).
					Debug(errors.New("decoding smoke test request failed").Wrap(err))
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		if err := req.validate(); err != nil {
			logs.WithTag("endpoint", opts.Endpoint).Debug(err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		res := RunSmokeTest(req)
		res.Endpoint = opts.Endpoint

		if res.Status != StatusSuccess {
			logs.WithTag("endpoint", opts.Endpoint).
				WithTag("seed", res.Seed).
				Warn(errors.New("smoke test failed"))
		}

		if opts.SendResult != nil {
			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("endpoint", opts.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}

		body, err := json.Marshal(res)
		if err != nil {
			logs.Error(errors.New("encoding smoke test result failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

// RunSmokeTest runs every check on scratch trees.
func RunSmokeTest(req SmokeTestRequest) SmokeTestResults {
	req = withDefaults(req)

	res := SmokeTestResults{
		Status: StatusSuccess,
		Seed:   req.Seed,
	}

	checks := []struct {
		name string
		run  func(SmokeTestRequest) error
	}{
		{"separated_objects", checkSeparatedObjects},
		{"deferred_update", checkDeferredUpdate},
		{"random_search", checkRandomSearch},
		{"random_collide", checkRandomCollide},
	}

	start := time.Now()
	for _, c := range checks {
		checkStart := time.Now()
		err := c.run(req)

		result := CheckResult{
			Name:            c.name,
			Status:          StatusSuccess,
			LatencyMilliSec: float64(time.Since(checkStart).Microseconds()) / 1000,
		}
		if err != nil {
			result.Status = StatusFailed
			result.Error = err.Error()
			res.Status = StatusFailed
		}
		res.Checks = append(res.Checks, result)
	}
	res.LatencyMilliSec = float64(time.Since(start).Microseconds()) / 1000

	return res
}

// validate rejects sizes that do not describe a usable tree. Zero values are
// accepted and replaced by defaults.
func (req SmokeTestRequest) validate() error {
	if req.UniverseSize != 0 && !(req.UniverseSize >= 1 && req.UniverseSize <= maxUniverseSize) {
		return errors.New("invalid universe size").
			WithTag("universe_size", req.UniverseSize).
			WithTag("max", maxUniverseSize)
	}

	if req.SmallestCell != 0 && !(req.SmallestCell >= 1 && req.SmallestCell <= maxUniverseSize) {
		return errors.New("invalid smallest cell").
			WithTag("smallest_cell", req.SmallestCell).
			WithTag("max", maxUniverseSize)
	}
	return nil
}

func withDefaults(req SmokeTestRequest) SmokeTestRequest {
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	if req.Objects <= 0 {
		req.Objects = defaultObjects
	}
	if req.Objects > maxObjects {
		req.Objects = maxObjects
	}
	if req.Searches <= 0 {
		req.Searches = defaultSearches
	}
	if req.Searches > maxSearches {
		req.Searches = maxSearches
	}
	if req.UniverseSize <= 0 {
		req.UniverseSize = defaultUniverseSize
	}
	if req.SmallestCell <= 0 {
		req.SmallestCell = defaultSmallestCell
	}
	return req
}

// twoShips returns a tree holding two ships 25 units apart.
func twoShips() (*qtree.QuadTree, int32, int32) {
	tree := qtree.New(10000, 512)
	a := tree.Insert(qtree.NewObject(1, qtree.TypeShip, 0, 0, 10))
	b := tree.Insert(qtree.NewObject(2, qtree.TypeShip, 25, 0, 10))
	tree.Rebuild()
	return tree, a, b
}

func checkSeparatedObjects(SmokeTestRequest) error {
	tree, a, _ := twoShips()

	if n := tree.CollideAll(0, qtree.CollisionFunc(acceptAll)); n != 0 {
		return errors.Newf("separated objects collided %d times", n)
	}

	opt := qtree.DefaultSearchOptions(0, 0)
	opt.SearchRadius = 5

	if ids := tree.FindNearbyIDs(opt); !slices.Equal(ids, []int32{a}) {
		return errors.New("unexpected nearby objects").
			WithTag("expected", []int32{a}).
			WithTag("got", ids)
	}
	return nil
}

func checkDeferredUpdate(SmokeTestRequest) error {
	tree, _, b := twoShips()
	tree.Update(b, 15, 0)

	if n := tree.CollideAll(0, qtree.CollisionFunc(acceptAll)); n != 0 {
		return errors.Newf("update visible before rebuild: %d collisions", n)
	}

	tree.Rebuild()
	if n := tree.CollideAll(0, qtree.CollisionFunc(acceptAll)); n != 1 {
		return errors.Newf("expected 1 collision after rebuild, got %d", n)
	}
	return nil
}

func checkRandomSearch(req SmokeTestRequest) error {
	rnd := rand.New(rand.NewSource(req.Seed))
	tree := randomTree(rnd, req)
	half := req.UniverseSize / 2

	for i := 0; i < req.Searches; i++ {
		opt := qtree.DefaultSearchOptions(
			(rnd.Float32()*2-1)*half,
			(rnd.Float32()*2-1)*half,
		)
		opt.SearchRadius = rnd.Float32() * req.UniverseSize / 10
		opt.MaxResults = int32(rnd.Intn(64) + 1)

		got := tree.FindNearbyIDs(opt)

		all := opt
		all.MaxResults = int32(tree.Count()) + 1
		expected := qtree.LinearSearch(tree.Objects(), all)

		if len(got) != min(len(expected), int(opt.MaxResults)) {
			return errors.New("unexpected number of nearby objects").
				WithTag("origin_x", opt.OriginX).
				WithTag("origin_y", opt.OriginY).
				WithTag("search_radius", opt.SearchRadius).
				WithTag("expected", min(len(expected), int(opt.MaxResults))).
				WithTag("got", len(got))
		}

		for _, id := range got {
			if !slices.Contains(expected, id) {
				return errors.New("nearby object out of range").
					WithTag("object_id", id).
					WithTag("origin_x", opt.OriginX).
					WithTag("origin_y", opt.OriginY).
					WithTag("search_radius", opt.SearchRadius)
			}
		}
	}
	return nil
}

func checkRandomCollide(req SmokeTestRequest) error {
	rnd := rand.New(rand.NewSource(req.Seed))
	tree := randomTree(rnd, req)

	got := make(map[[2]int32]int)
	tree.CollideAll(0, qtree.CollisionFunc(func(a, b int32) bool {
		got[pairKey(a, b)]++
		return true
	}))

	expected := make(map[[2]int32]int)
	qtree.LinearCollide(tree.Objects(), qtree.CollisionFunc(func(a, b int32) bool {
		expected[pairKey(a, b)]++
		return true
	}))

	for pair, n := range got {
		if n != 1 {
			return errors.New("pair reported more than once").
				WithTag("pair", pair).
				WithTag("count", n)
		}
		if _, ok := expected[pair]; !ok {
			return errors.New("unexpected collision").WithTag("pair", pair)
		}
	}

	if len(got) != len(expected) {
		return errors.New("missing collisions").
			WithTag("expected", len(expected)).
			WithTag("got", len(got))
	}
	return nil
}

func randomTree(rnd *rand.Rand, req SmokeTestRequest) *qtree.QuadTree {
	tree := qtree.New(req.UniverseSize, req.SmallestCell)
	half := req.UniverseSize / 2
	maxRadius := max(1, int(min(req.SmallestCell, maxObjectRadius)))
	types := []qtree.ObjectType{
		qtree.TypeShip,
		qtree.TypeProjectile,
		qtree.TypeBeam,
		qtree.TypeAsteroid,
	}

	for i := 0; i < req.Objects; i++ {
		tree.Insert(qtree.NewObject(
			uint8(rnd.Intn(4)+1),
			types[rnd.Intn(len(types))],
			int32((rnd.Float32()*2-1)*half),
			int32((rnd.Float32()*2-1)*half),
			int32(rnd.Intn(maxRadius)+1),
		))
	}

	tree.Rebuild()
	return tree
}

func pairKey(a, b int32) [2]int32 {
	if a > b {
		a, b = b, a
	}
	return [2]int32{a, b}
}

func acceptAll(int32, int32) bool {
	return true
}
