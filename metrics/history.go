package metrics

import (
	"errors"
	"time"

	"github.com/nakabonne/tstorage"
)

const bitrateMetric = "tile_inbound_bitrate"

// Point is one bitrate sample.
type Point struct {
	Time          time.Time `json:"time"`
	BitsPerSecond float64   `json:"bps"`
}

// History keeps per-tile inbound bitrate samples.
type History struct {
	storage tstorage.Storage
}

// NewHistory opens the bitrate store. An empty dir keeps samples in memory.
func NewHistory(dir string, retention time.Duration) (*History, error) {
	opts := []tstorage.Option{
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(retention),
	}
	if dir != "" {
		opts = append(opts, tstorage.WithDataPath(dir))
	}

	storage, err := tstorage.NewStorage(opts...)
	if err != nil {
		return nil, err
	}
	return &History{storage: storage}, nil
}

func tileLabels(tileID string) []tstorage.Label {
	return []tstorage.Label{{Name: "tile", Value: tileID}}
}

// Record stores a bitrate sample for a tile.
func (h *History) Record(tileID string, bps float64, at time.Time) error {
	return h.storage.InsertRows([]tstorage.Row{{
		Metric:    bitrateMetric,
		Labels:    tileLabels(tileID),
		DataPoint: tstorage.DataPoint{Timestamp: at.Unix(), Value: bps},
	}})
}

// Bitrate returns the samples of a tile between since and until, inclusive.
func (h *History) Bitrate(tileID string, since, until time.Time) ([]Point, error) {
	points, err := h.storage.Select(bitrateMetric, tileLabels(tileID), since.Unix(), until.Unix()+1)
	if errors.Is(err, tstorage.ErrNoDataPoints) {
		return []Point{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]Point, 0, len(points))
	for _, p := range points {
		out = append(out, Point{Time: time.Unix(p.Timestamp, 0), BitsPerSecond: p.Value})
	}
	return out, nil
}

// Close flushes and closes the store.
func (h *History) Close() error {
	return h.storage.Close()
}
