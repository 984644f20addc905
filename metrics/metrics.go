package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/core/streaminfo"
)

// SampleInterval is how often tiles and the host are sampled.
const SampleInterval = 5 * time.Second

var states = []playback.State{
	playback.StateLoading,
	playback.StateOnline,
	playback.StateRetrying,
	playback.StateFailed,
}

// Source is what the collector samples.
type Source interface {
	Snapshots() []playback.Snapshot
	Queue() *streaminfo.RequestQueue
}

type byteSample struct {
	bytes uint64
	at    time.Time
}

// Collector exports tile, queue and host metrics and feeds the bitrate
// history.
type Collector struct {
	source  Source
	history *History

	tileStates   *prometheus.GaugeVec
	tileBytes    *prometheus.GaugeVec
	tileBitrate  *prometheus.GaugeVec
	transports   *prometheus.GaugeVec
	cpuUsage     prometheus.Gauge
	memoryUsage  prometheus.Gauge
	queueMetrics []prometheus.Collector

	mu   sync.Mutex
	last map[string]byteSample
}

// NewCollector creates the collectors. history may be nil.
func NewCollector(source Source, history *History) *Collector {
	queueGauge := func(name, help string, read func(streaminfo.QueueSnapshot) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "cctvwall",
			Subsystem: "streaminfo",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(read(source.Queue().Snapshot()))
		})
	}

	return &Collector{
		source:  source,
		history: history,
		tileStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cctvwall",
			Name:      "tiles",
			Help:      "Number of tiles per playback state.",
		}, []string{"state"}),
		tileBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cctvwall",
			Name:      "tile_bytes_received",
			Help:      "Payload bytes delivered to a tile.",
		}, []string{"tile"}),
		tileBitrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cctvwall",
			Name:      "tile_inbound_bitrate_bps",
			Help:      "Inbound bitrate of a tile over the last sample interval.",
		}, []string{"tile"}),
		transports: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cctvwall",
			Name:      "tile_transports",
			Help:      "Number of tiles per attached transport.",
		}, []string{"transport"}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cctvwall",
			Name:      "cpu_usage_percent",
			Help:      "Host CPU utilisation.",
		}),
		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cctvwall",
			Name:      "memory_usage_percent",
			Help:      "Host memory utilisation.",
		}),
		queueMetrics: []prometheus.Collector{
			queueGauge("running", "Stream info lookups in flight.", func(s streaminfo.QueueSnapshot) int { return s.Running }),
			queueGauge("pending", "Stream info lookups waiting for a slot.", func(s streaminfo.QueueSnapshot) int { return s.Pending }),
			queueGauge("peak", "Highest number of concurrent lookups seen.", func(s streaminfo.QueueSnapshot) int { return s.Peak }),
		},
		last: map[string]byteSample{},
	}
}

// Register adds every collector to reg. Collectors that are already
// registered are left alone.
func (c *Collector) Register(reg prometheus.Registerer) error {
	all := append([]prometheus.Collector{
		c.tileStates, c.tileBytes, c.tileBitrate, c.transports, c.cpuUsage, c.memoryUsage,
	}, c.queueMetrics...)

	for _, col := range all {
		if err := reg.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Run samples every interval until ctx ends.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Sample(now)
		}
	}
}

// Sample updates every gauge and records tile bitrates at now.
func (c *Collector) Sample(now time.Time) {
	snaps := c.source.Snapshots()

	counts := map[playback.State]int{}
	kinds := map[playback.TransportKind]int{}
	seen := make(map[string]bool, len(snaps))

	c.mu.Lock()
	for _, s := range snaps {
		counts[s.State]++
		if s.Transport != "" {
			kinds[s.Transport]++
		}
		seen[s.ID] = true
		c.tileBytes.WithLabelValues(s.ID).Set(float64(s.BytesReceived))

		prev, ok := c.last[s.ID]
		c.last[s.ID] = byteSample{bytes: s.BytesReceived, at: now}
		if !ok {
			continue
		}
		bps := bitrate(prev, s.BytesReceived, now)
		c.tileBitrate.WithLabelValues(s.ID).Set(bps)
		if c.history != nil {
			if err := c.history.Record(s.ID, bps, now); err != nil {
				log.WithField("tile", s.ID).Warnln("unable to record bitrate:", err)
			}
		}
	}
	for id := range c.last {
		if !seen[id] {
			delete(c.last, id)
			c.tileBytes.DeleteLabelValues(id)
			c.tileBitrate.DeleteLabelValues(id)
		}
	}
	c.mu.Unlock()

	for _, st := range states {
		c.tileStates.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
	for _, k := range []playback.TransportKind{playback.TransportWebRTC, playback.TransportHLS} {
		c.transports.WithLabelValues(string(k)).Set(float64(kinds[k]))
	}

	// A failed host reading leaves the previous value in place.
	if v, err := readCPU(); err != nil {
		log.Debugln("unable to read cpu usage:", err)
	} else {
		c.cpuUsage.Set(v)
	}
	if v, _, err := readMemory(); err != nil {
		log.Debugln("unable to read memory usage:", err)
	} else {
		c.memoryUsage.Set(v)
	}
}

// bitrate converts a byte delta into bits per second. A counter that went
// backwards (the tile was rebuilt) counts as zero.
func bitrate(prev byteSample, bytes uint64, now time.Time) float64 {
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 || bytes < prev.bytes {
		return 0
	}
	return float64(bytes-prev.bytes) * 8 / elapsed
}
