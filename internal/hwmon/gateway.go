// Package hwmon reads fan and temperature sensors and drives fan PWM
// outputs through the Linux hwmon sysfs interface.
package hwmon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"codeberg.org/mutker/handheldctl/internal/config"
	"codeberg.org/mutker/handheldctl/internal/errors"
)

const millidegreesPerDegree = 1000.0

// Reading is a single sample of one fan and its temperature sensor.
type Reading struct {
	FanIndex    int
	RPM         int
	Temperature float64
}

// Gateway reads raw sensor values for the configured fans. hwmon device
// numbers are not stable across boots or resume, so devices are located
// by their name file and the lookup is repeated after a failed access.
type Gateway struct {
	root    string
	devices []config.FanDevice

	mu       sync.Mutex
	resolved map[string]string
}

// NewGateway returns a Gateway rooted at root (normally /sys/class/hwmon).
func NewGateway(root string, devices []config.FanDevice) *Gateway {
	return &Gateway{
		root:     root,
		devices:  devices,
		resolved: make(map[string]string),
	}
}

// FanCount returns the number of configured fans.
func (g *Gateway) FanCount() int {
	return len(g.devices)
}

// Device returns the static description of fan index.
func (g *Gateway) Device(index int) (config.FanDevice, error) {
	if index < 0 || index >= len(g.devices) {
		return config.FanDevice{}, errors.New().WithData(errors.ErrInvalidArgument,
			fmt.Sprintf("fan index %d out of range", index))
	}

	return g.devices[index], nil
}

// MaxRPM returns the configured full-speed RPM of fan index, or 0.
func (g *Gateway) MaxRPM(index int) int {
	dev, err := g.Device(index)
	if err != nil {
		return 0
	}

	return dev.MaxRPM
}

// RPM reads the tachometer of fan index.
func (g *Gateway) RPM(index int) (int, error) {
	dev, err := g.Device(index)
	if err != nil {
		return 0, err
	}

	value, err := g.readInt(dev.Hwmon, fmt.Sprintf("fan%d_input", dev.Channel))
	if err != nil {
		return 0, err
	}

	return int(value), nil
}

// Temperature reads the temperature sensor associated with fan index in °C.
func (g *Gateway) Temperature(index int) (float64, error) {
	dev, err := g.Device(index)
	if err != nil {
		return 0, err
	}

	value, err := g.readInt(dev.TempHwmon, dev.TempInput)
	if err != nil {
		return 0, err
	}

	return float64(value) / millidegreesPerDegree, nil
}

// Read samples both the tachometer and the temperature of fan index.
func (g *Gateway) Read(index int) (Reading, error) {
	rpm, err := g.RPM(index)
	if err != nil {
		return Reading{FanIndex: index}, err
	}

	temp, err := g.Temperature(index)
	if err != nil {
		return Reading{FanIndex: index, RPM: rpm}, err
	}

	return Reading{FanIndex: index, RPM: rpm, Temperature: temp}, nil
}

func (g *Gateway) readInt(device, file string) (int64, error) {
	errFactory := errors.New()

	raw, err := g.readFile(device, file)
	if err != nil {
		return 0, err
	}

	value, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrHardwareIO, errFactory.WithData(ErrParseFailed,
			fmt.Sprintf("%s/%s: %v", device, file, err)))
	}

	return value, nil
}

func (g *Gateway) readFile(device, file string) ([]byte, error) {
	errFactory := errors.New()

	dir, err := g.resolve(device)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		g.forget(device)
		return nil, errFactory.Wrap(errors.ErrHardwareIO, errFactory.Wrap(ErrReadFailed, err))
	}

	return raw, nil
}

func (g *Gateway) writeFile(device, file, value string) error {
	errFactory := errors.New()

	dir, err := g.resolve(device)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, file), []byte(value), 0o644); err != nil {
		g.forget(device)
		return errFactory.Wrap(errors.ErrHardwareIO, errFactory.Wrap(ErrWriteFailed, err))
	}

	return nil
}

// resolve finds the hwmonN directory whose name file matches device.
func (g *Gateway) resolve(device string) (string, error) {
	errFactory := errors.New()

	g.mu.Lock()
	defer g.mu.Unlock()

	if dir, ok := g.resolved[device]; ok {
		return dir, nil
	}

	entries, err := os.ReadDir(g.root)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrHardwareIO, errFactory.Wrap(ErrDeviceNotFound, err))
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "hwmon") {
			continue
		}

		dir := filepath.Join(g.root, entry.Name())
		name, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}

		if strings.TrimSpace(string(name)) == device {
			g.resolved[device] = dir
			return dir, nil
		}
	}

	return "", errFactory.Wrap(errors.ErrHardwareIO, errFactory.WithData(ErrDeviceNotFound, device))
}

func (g *Gateway) forget(device string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.resolved, device)
}
