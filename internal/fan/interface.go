package fan

// Mode selects who decides the speed of a fan.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Sensors provides raw fan and temperature readings.
type Sensors interface {
	FanCount() int
	RPM(index int) (int, error)
	MaxRPM(index int) int
	Temperature(index int) (float64, error)
}

// Actuator drives fan outputs. Release hands a fan back to firmware control.
type Actuator interface {
	SetPercent(index, percent int) error
	Release(index int) error
}

// Config is the persisted, user-facing state of one fan.
type Config struct {
	Index         int   `json:"index"`
	Mode          Mode  `json:"mode"`
	ManualPercent int   `json:"manual_percent"`
	Curve         Curve `json:"curve"`
}

// Options tune the control loop.
type Options struct {
	// Hysteresis is the minimum change in percent before a new curve
	// target is written.
	Hysteresis int
	// TemperatureWindow is the number of samples in the moving average.
	TemperatureWindow int
	// Monitor computes targets without touching the hardware.
	Monitor bool
}

// Sample describes what a single Tick did for one fan.
type Sample struct {
	Index       int
	Mode        Mode
	Temperature float64
	Average     float64
	RPM         int
	Target      int
	Applied     int
	Actuated    bool
	Firmware    bool
	Skipped     bool
	Err         error
}
