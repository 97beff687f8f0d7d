package models

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	universeLabel = "universe_uuid"
	variantLabel  = "variant"

	collideIterative = "iterative"
	collideRecursive = "recursive"
)

var (
	universeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "universe_count",
		Help: "The number of universes.",
	})

	universeCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "universe_count_total",
		Help: "The total number of universes.",
	})

	universeObjects = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "universe_objects",
		Help: "The number of object slots of a universe.",
	}, []string{universeLabel})

	treeRebuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tree_rebuild_latency",
		Help:    "The time to rebuild a universe tree.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	collisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collisions_total",
		Help: "The number of collisions reported by collision passes.",
	}, []string{variantLabel})

	collisionPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collision_passes_total",
		Help: "The number of collision passes.",
	}, []string{variantLabel})

	nearbySearches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearby_searches",
		Help: "The number of nearby searches.",
	})

	nearbySearchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nearby_search_results",
		Help:    "The number of objects returned by nearby searches.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	nearbySearchMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nearby_search_mismatches",
		Help: "The number of nearby searches that did not match a linear search.",
	})
)

func instrumentIncreaseUniverseGauge() {
	universeCount.Inc()
}

func instrumentDecreaseUniverseGauge() {
	universeCount.Dec()
}

func instrumentCountUniverse() {
	universeCountTotal.Inc()
}

func instrumentSetObjectGauge(universeUUID string, count int) {
	universeObjects.
		With(prometheus.Labels{universeLabel: universeUUID}).
		Set(float64(count))
}

func instrumentDeleteObjectGauge(universeUUID string) {
	universeObjects.Delete(prometheus.Labels{universeLabel: universeUUID})
}

func instrumentRebuild(start time.Time) {
	treeRebuildLatency.Observe(time.Since(start).Seconds())
}

func instrumentCountCollisions(variant string, count int) {
	labels := prometheus.Labels{variantLabel: variant}

	collisionPassesTotal.With(labels).Inc()
	collisionsTotal.With(labels).Add(float64(count))
}

func instrumentCountSearch(results int) {
	nearbySearches.Inc()
	nearbySearchResults.Observe(float64(results))
}

func instrumentCountSearchMismatch() {
	nearbySearchMismatches.Inc()
}
