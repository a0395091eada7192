// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mmapcache

import "github.com/prometheus/client_golang/prometheus"

// collector adapts a Cache's statistics to Prometheus's pull model,
// grounded on the way GoogleCloudPlatform-gcsfuse exposes its own file
// cache layer's hit/miss counters via prometheus/client_golang.
type collector struct {
	cache *Cache

	contextHits    *prometheus.Desc
	windowListHits *prometheus.Desc
	misses         *prometheus.Desc
	liveWindows    *prometheus.Desc
	unusedWindows  *prometheus.Desc
}

// Collector returns a prometheus.Collector that reports this cache's
// counters under the "mmapcache_" namespace, labeled by cache ID so that
// multiple caches in one process (spec §5) are distinguishable.
func (c *Cache) Collector() prometheus.Collector {
	id := c.id.String()
	mk := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("mmapcache_"+name, help, nil, prometheus.Labels{"cache_id": id})
	}
	return &collector{
		cache:          c,
		contextHits:    mk("context_hits_total", "Requests served by the per-context window shortcut."),
		windowListHits: mk("window_list_hits_total", "Requests served by scanning a file's window list."),
		misses:         mk("misses_total", "Requests that required allocating a new window."),
		liveWindows:    mk("live_windows", "Number of windows currently allocated."),
		unusedWindows:  mk("unused_windows", "Number of windows currently eligible for LRU eviction."),
	}
}

func (col *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- col.contextHits
	ch <- col.windowListHits
	ch <- col.misses
	ch <- col.liveWindows
	ch <- col.unusedWindows
}

func (col *collector) Collect(ch chan<- prometheus.Metric) {
	s := col.cache.Stats()
	ch <- prometheus.MustNewConstMetric(col.contextHits, prometheus.CounterValue, float64(s.ContextHits))
	ch <- prometheus.MustNewConstMetric(col.windowListHits, prometheus.CounterValue, float64(s.WindowListHits))
	ch <- prometheus.MustNewConstMetric(col.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(col.liveWindows, prometheus.GaugeValue, float64(col.cache.liveWindows))

	n := 0
	for w := col.cache.unusedHead; w != nil; w = w.lruNext {
		n++
	}
	ch <- prometheus.MustNewConstMetric(col.unusedWindows, prometheus.GaugeValue, float64(n))
}
