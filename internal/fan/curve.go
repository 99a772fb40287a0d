package fan

import (
	"fmt"
	"math"

	"codeberg.org/mutker/handheldctl/internal/errors"
)

// Point maps a temperature in degrees Celsius to a fan speed in percent.
type Point struct {
	Temperature float64 `json:"temperature"`
	Speed       int     `json:"speed"`
}

// Curve is a list of points sorted by strictly increasing temperature.
type Curve []Point

// Validate rejects curves that cannot be interpolated.
func (c Curve) Validate() error {
	errFactory := errors.New()

	for i, p := range c {
		if p.Speed < 0 || p.Speed > 100 {
			return errFactory.WithData(ErrInvalidCurve,
				fmt.Sprintf("point %d: speed %d outside 0..100", i, p.Speed))
		}
		if i > 0 && p.Temperature <= c[i-1].Temperature {
			return errFactory.WithData(ErrInvalidCurve,
				fmt.Sprintf("point %d: temperature %.1f not above %.1f", i, p.Temperature, c[i-1].Temperature))
		}
	}

	return nil
}

// Monotonic reports whether speeds never decrease as temperature rises.
func (c Curve) Monotonic() bool {
	for i := 1; i < len(c); i++ {
		if c[i].Speed < c[i-1].Speed {
			return false
		}
	}

	return true
}

// Evaluate returns the interpolated speed for temp. Temperatures outside
// the curve take the speed of the nearest end point. ok is false for an
// empty curve.
func (c Curve) Evaluate(temp float64) (speed int, ok bool) {
	if len(c) == 0 {
		return 0, false
	}

	first, last := c[0], c[len(c)-1]
	if temp <= first.Temperature {
		return first.Speed, true
	}
	if temp >= last.Temperature {
		return last.Speed, true
	}

	for i := 1; i < len(c); i++ {
		hi := c[i]
		if temp > hi.Temperature {
			continue
		}
		lo := c[i-1]
		ratio := (temp - lo.Temperature) / (hi.Temperature - lo.Temperature)
		value := float64(lo.Speed) + ratio*float64(hi.Speed-lo.Speed)

		return clamp(int(math.Round(value)), 0, 100), true
	}

	return last.Speed, true
}

// Clone returns a copy that shares no memory with c.
func (c Curve) Clone() Curve {
	if c == nil {
		return nil
	}
	out := make(Curve, len(c))
	copy(out, c)

	return out
}

func clamp(value, minValue, maxValue int) int {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
