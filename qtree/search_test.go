package qtree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindNearbyMatchesLinearSearch(t *testing.T) {
	qt := randomTree(21, 600, 8000)
	qt.Rebuild()
	r := rand.New(rand.NewSource(99))

	for i := 0; i < 200; i++ {
		opt := DefaultSearchOptions(float32(r.Intn(9000)-4500), float32(r.Intn(9000)-4500))
		opt.SearchRadius = float32(r.Intn(1500) + 1)
		opt.MaxResults = 1000

		require.ElementsMatch(t, LinearSearch(qt.Objects(), opt), qt.FindNearbyIDs(opt))
	}
}

func TestFindNearbyBounds(t *testing.T) {
	qt := randomTree(5, 600, 4000)
	qt.Rebuild()
	r := rand.New(rand.NewSource(3))

	for i := 0; i < 100; i++ {
		opt := DefaultSearchOptions(float32(r.Intn(4000)-2000), float32(r.Intn(4000)-2000))
		opt.SearchRadius = float32(r.Intn(800) + 1)
		opt.MaxResults = int32(r.Intn(8) + 1)

		all := LinearSearch(qt.Objects(), SearchOptions{
			OriginX:               opt.OriginX,
			OriginY:               opt.OriginY,
			SearchRadius:          opt.SearchRadius,
			MaxResults:            math.MaxInt32,
			FilterExcludeObjectID: -1,
		})

		results := qt.FindNearbyIDs(opt)
		require.Len(t, results, min(len(all), int(opt.MaxResults)))
		require.Subset(t, all, results)

		for _, id := range results {
			o, ok := qt.Get(id)
			require.True(t, ok)

			dx := float64(o.X) - float64(opt.OriginX)
			dy := float64(o.Y) - float64(opt.OriginY)
			require.Less(t, math.Sqrt(dx*dx+dy*dy), float64(opt.SearchRadius))
		}
	}
}

func TestFindNearbyOutputBuffer(t *testing.T) {
	qt := New(10000, 512)
	for i := 0; i < 20; i++ {
		qt.Insert(NewObject(1, TypeShip, int32(i), 0, 1))
	}
	qt.Rebuild()

	opt := DefaultSearchOptions(0, 0)
	opt.MaxResults = 15

	out := make([]int32, 4)
	require.Equal(t, 4, qt.FindNearby(out, opt))

	out = make([]int32, 32)
	require.Equal(t, 15, qt.FindNearby(out, opt))

	require.Zero(t, qt.FindNearby(nil, opt))

	opt.MaxResults = 0
	require.Zero(t, qt.FindNearby(out, opt))
	require.Nil(t, qt.FindNearbyIDs(opt))
}

func TestFindNearbyStrictRadius(t *testing.T) {
	qt := New(10000, 512)
	qt.Insert(NewObject(1, TypeShip, 100, 0, 50))
	inside := qt.Insert(NewObject(1, TypeShip, 99, 0, 1))
	qt.Rebuild()

	opt := DefaultSearchOptions(0, 0)
	require.Equal(t, []int32{inside}, qt.FindNearbyIDs(opt))
}

func TestFindNearbyFilters(t *testing.T) {
	qt := New(10000, 512)
	ship1 := qt.Insert(NewObject(1, TypeShip, 0, 0, 10))
	ship2 := qt.Insert(NewObject(2, TypeShip, 10, 0, 10))
	projectile1 := qt.Insert(NewObject(1, TypeProjectile, 0, 10, 2))
	beam2 := qt.Insert(NewObject(2, TypeBeam, -10, 0, 2))
	asteroid := qt.Insert(NewObject(0, TypeAsteroid, 0, -10, 30))
	qt.Rebuild()

	tests := []struct {
		name     string
		setup    func(opt *SearchOptions)
		expected []int32
	}{
		{
			name:     "no filter",
			setup:    func(opt *SearchOptions) {},
			expected: []int32{ship1, ship2, projectile1, beam2, asteroid},
		},
		{
			name: "exclude object",
			setup: func(opt *SearchOptions) {
				opt.FilterExcludeObjectID = ship1
			},
			expected: []int32{ship2, projectile1, beam2, asteroid},
		},
		{
			name: "exclude loyalty",
			setup: func(opt *SearchOptions) {
				opt.FilterExcludeByLoyalty = 1
			},
			expected: []int32{ship2, beam2, asteroid},
		},
		{
			name: "include only loyalty",
			setup: func(opt *SearchOptions) {
				opt.FilterIncludeOnlyByLoyalty = 2
			},
			expected: []int32{ship2, beam2},
		},
		{
			name: "type mask",
			setup: func(opt *SearchOptions) {
				opt.FilterByType = TypeProjectile | TypeBeam
			},
			expected: []int32{projectile1, beam2},
		},
		{
			name: "custom filter",
			setup: func(opt *SearchOptions) {
				opt.FilterFunction = SearchFilterFunc(func(id int32) bool {
					return id%2 == 0
				})
			},
			expected: []int32{ship1, projectile1, asteroid},
		},
		{
			name: "combined",
			setup: func(opt *SearchOptions) {
				opt.FilterExcludeObjectID = ship2
				opt.FilterIncludeOnlyByLoyalty = 2
				opt.FilterByType = TypeShip | TypeBeam
			},
			expected: []int32{beam2},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			opt := DefaultSearchOptions(0, 0)
			test.setup(&opt)

			require.ElementsMatch(t, test.expected, qt.FindNearbyIDs(opt))
			require.ElementsMatch(t, test.expected, LinearSearch(qt.Objects(), opt))
		})
	}
}

func TestFindNearbyCustomFilterRunsLast(t *testing.T) {
	qt := New(10000, 512)
	qt.Insert(NewObject(1, TypeShip, 0, 0, 10))
	qt.Insert(NewObject(2, TypeShip, 5000, 0, 10))
	target := qt.Insert(NewObject(2, TypeShip, 20, 0, 10))
	qt.Rebuild()

	var seen []int32
	opt := DefaultSearchOptions(0, 0)
	opt.FilterIncludeOnlyByLoyalty = 2
	opt.FilterFunction = SearchFilterFunc(func(id int32) bool {
		seen = append(seen, id)
		return true
	})

	require.Equal(t, []int32{target}, qt.FindNearbyIDs(opt))
	require.Equal(t, []int32{target}, seen)
}

func TestFindNearbyVisitsClosestCellsFirst(t *testing.T) {
	qt := New(10000, 64)
	for i := 0; i < 8; i++ {
		qt.Insert(NewObject(1, TypeShip, int32(-2000+i*10), -2000, 1))
	}
	near := qt.Insert(NewObject(1, TypeShip, 2000, 2000, 1))
	qt.Rebuild()

	opt := DefaultSearchOptions(2000, 2000)
	opt.SearchRadius = 10000
	opt.MaxResults = 1
	require.Equal(t, []int32{near}, qt.FindNearbyIDs(opt))
}
