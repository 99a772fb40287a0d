package metrics

import (
	"context"
	"time"
)

// Collector records controller activity.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	RecordPower(ctx context.Context, event *PowerEvent) error
	Close() error
}

// Repository stores recorded data.
type Repository interface {
	Record(snapshot *Snapshot) error
	RecordPower(event *PowerEvent) error
	Close() error
}

// Snapshot is the outcome of one control tick.
type Snapshot struct {
	Timestamp time.Time
	Fans      []FanMetrics
}

type FanMetrics struct {
	Index       int
	Temperature TempMetrics
	Speed       SpeedMetrics
	Auto        bool
	Actuated    bool
}

type TempMetrics struct {
	Current float64
	Average float64
}

type SpeedMetrics struct {
	RPM     int
	Target  int
	Applied int
}

// PowerEvent is one attempt to apply a power profile.
type PowerEvent struct {
	Timestamp time.Time
	TDPWatts  int
	Boost     bool
	SMT       bool
	Success   bool
}
