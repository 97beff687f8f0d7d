package qtree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollideAllMatchesBruteForce(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 42, 1337} {
		qt := randomTree(seed, 400, 6000)
		qt.Rebuild()

		expected := collectPairs(t, func(c Collider) int {
			return LinearCollide(qt.Objects(), c)
		})

		t.Run("iterative", func(t *testing.T) {
			pairs := collectPairs(t, func(c Collider) int {
				return qt.CollideAll(1.0/60, c)
			})
			require.Equal(t, expected, pairs)
		})

		t.Run("recursive", func(t *testing.T) {
			pairs := collectPairs(t, func(c Collider) int {
				return qt.CollideAllRecursive(1.0/60, c)
			})
			require.Equal(t, expected, pairs)
		})
	}
}

func TestCollideAllCountsAcceptedPairs(t *testing.T) {
	qt := New(10000, 512)
	a := qt.Insert(NewObject(1, TypeShip, 0, 0, 10))
	qt.Insert(NewObject(2, TypeShip, 5, 0, 10))
	qt.Insert(NewObject(3, TypeShip, 10, 0, 10))
	qt.Rebuild()

	calls := 0
	onlyA := CollisionFunc(func(x, y int32) bool {
		calls++
		return x == a || y == a
	})

	require.Equal(t, 2, qt.CollideAll(0, onlyA))
	require.Equal(t, 3, calls)

	calls = 0
	require.Equal(t, 2, qt.CollideAllRecursive(0, onlyA))
	require.Equal(t, 3, calls)
}

func TestCollideAllEmptyTree(t *testing.T) {
	qt := New(10000, 512)
	qt.Rebuild()

	collider := CollisionFunc(func(a, b int32) bool {
		t.Fatal("unexpected collision")
		return false
	})
	require.Zero(t, qt.CollideAll(0, collider))
	require.Zero(t, qt.CollideAllRecursive(0, collider))
}

func TestCollideAllZeroRadius(t *testing.T) {
	qt := New(4096, 64)
	a := qt.Insert(NewObject(1, TypeProjectile, 100, 100, 0))
	b := qt.Insert(NewObject(2, TypeProjectile, 100, 100, 0))
	midline := qt.Insert(NewObject(1, TypeBeam, 0, 300, 0))
	ship := qt.Insert(NewObject(2, TypeShip, -500, -500, 50))
	inside := qt.Insert(NewObject(3, TypeProjectile, -480, -510, 0))

	var cluster []int32
	for i := 0; i < 500; i++ {
		cluster = append(cluster, qt.Insert(NewObject(4, TypeProjectile, 1000, 1000, 0)))
	}
	qt.Rebuild()

	expected := collectPairs(t, func(c Collider) int {
		return LinearCollide(qt.Objects(), c)
	})
	require.Equal(t, map[[2]int32]struct{}{{ship, inside}: {}}, expected)

	require.Equal(t, expected, collectPairs(t, func(c Collider) int {
		return qt.CollideAll(0, c)
	}))
	require.Equal(t, expected, collectPairs(t, func(c Collider) int {
		return qt.CollideAllRecursive(0, c)
	}))

	search := func(x, y float32) []int32 {
		opt := DefaultSearchOptions(x, y)
		opt.SearchRadius = 1
		opt.MaxResults = 1000
		return qt.FindNearbyIDs(opt)
	}

	require.ElementsMatch(t, []int32{a, b}, search(100, 100))
	require.ElementsMatch(t, []int32{midline}, search(0, 300))
	require.ElementsMatch(t, []int32{inside}, search(-480, -510))
	require.ElementsMatch(t, cluster, search(1000, 1000))
}

// collectPairs runs a collision pass and returns the reported pairs with the
// smaller id first. It fails when a pair is reported twice.
func collectPairs(t *testing.T, collide func(Collider) int) map[[2]int32]struct{} {
	pairs := make(map[[2]int32]struct{})

	accepted := collide(CollisionFunc(func(a, b int32) bool {
		require.NotEqual(t, a, b)
		if a > b {
			a, b = b, a
		}

		key := [2]int32{a, b}
		_, dup := pairs[key]
		require.False(t, dup, "pair %v reported twice", key)

		pairs[key] = struct{}{}
		return true
	}))

	require.Equal(t, len(pairs), accepted)
	return pairs
}

// randomTree returns a tree of n objects spread over a universe of the given
// size. A few objects are placed outside of the universe and some are
// removed.
func randomTree(seed int64, n int, universeSize int) *QuadTree {
	r := rand.New(rand.NewSource(seed))
	qt := New(float32(universeSize), 64)

	types := []ObjectType{TypeShip, TypeShipModule, TypeProjectile, TypeBeam, TypeAsteroid, TypeMoon}
	for i := 0; i < n; i++ {
		x := int32(r.Intn(universeSize) - universeSize/2)
		y := int32(r.Intn(universeSize) - universeSize/2)
		if i%50 == 0 {
			x *= 3
		}

		id := qt.Insert(NewObject(
			uint8(r.Intn(4)),
			types[r.Intn(len(types))],
			x,
			y,
			int32(r.Intn(200)+1),
		))

		if i%17 == 0 {
			qt.Remove(id)
		}
	}
	return qt
}
