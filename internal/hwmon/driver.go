package hwmon

import (
	"fmt"
	"math"
	"strconv"
)

// Driver writes fan PWM outputs for the fans known to a Gateway.
type Driver struct {
	gw *Gateway
}

// NewDriver returns a Driver sharing gw's device lookup.
func NewDriver(gw *Gateway) *Driver {
	return &Driver{gw: gw}
}

// SetPercent puts fan index under manual control and drives it at percent.
func (d *Driver) SetPercent(index, percent int) error {
	dev, err := d.gw.Device(index)
	if err != nil {
		return err
	}

	enableFile := fmt.Sprintf("pwm%d_enable", dev.Channel)
	if err := d.gw.writeFile(dev.Hwmon, enableFile, strconv.Itoa(dev.ManualEnable)); err != nil {
		return err
	}

	return d.gw.writeFile(dev.Hwmon, fmt.Sprintf("pwm%d", dev.Channel),
		strconv.Itoa(percentToPWM(percent, dev.PWMMax)))
}

// Release hands fan index back to firmware control.
func (d *Driver) Release(index int) error {
	dev, err := d.gw.Device(index)
	if err != nil {
		return err
	}

	return d.gw.writeFile(dev.Hwmon, fmt.Sprintf("pwm%d_enable", dev.Channel),
		strconv.Itoa(dev.AutoEnableValue()))
}

// Percent reads back the current PWM duty of fan index as a percentage.
func (d *Driver) Percent(index int) (int, error) {
	dev, err := d.gw.Device(index)
	if err != nil {
		return 0, err
	}

	value, err := d.gw.readInt(dev.Hwmon, fmt.Sprintf("pwm%d", dev.Channel))
	if err != nil {
		return 0, err
	}

	return pwmToPercent(int(value), dev.PWMMax), nil
}

func percentToPWM(percent, pwmMax int) int {
	if percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return pwmMax
	}

	return int(math.Round(float64(percent) * float64(pwmMax) / 100))
}

func pwmToPercent(pwm, pwmMax int) int {
	if pwmMax <= 0 || pwm <= 0 {
		return 0
	}
	if pwm >= pwmMax {
		return 100
	}

	return int(math.Round(float64(pwm) * 100 / float64(pwmMax)))
}
