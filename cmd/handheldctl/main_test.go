package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/handheldctl/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	hwmon := filepath.Join(dir, "hwmon")

	writeFile(t, filepath.Join(hwmon, "hwmon0", "name"), "k10temp\n")
	writeFile(t, filepath.Join(hwmon, "hwmon0", "temp1_input"), "52375\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "name"), "oxpec\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "fan1_input"), "2500\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "pwm1"), "128\n")
	writeFile(t, filepath.Join(hwmon, "hwmon1", "pwm1_enable"), "0\n")

	configPath := filepath.Join(dir, "handheldctl.toml")
	writeFile(t, configPath, fmt.Sprintf(`
log_level = "error"
pid_file = %q
hwmon_path = %q

[[fans]]
name = "CPU fan"
hwmon = "oxpec"
channel = 1
max_rpm = 5000
temp_hwmon = "k10temp"
temp_input = "temp1_input"

[power]
tool_path = %q
fallback_paths = []

[settings]
backend = "file"
path = %q
`, filepath.Join(dir, "handheldctl.pid"), hwmon,
		filepath.Join(dir, "missing", "ryzenadj"), filepath.Join(dir, "settings")))

	return configPath
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	assert.Contains(t, execute(t, "version"), version.Info())
}

func TestStatusCommand(t *testing.T) {
	out := execute(t, "--config", testConfig(t), "status")

	assert.Contains(t, out, "Daemon:     not running")
	assert.Contains(t, out, "CPU fan:")
	assert.Contains(t, out, "Mode:        auto")
	assert.Contains(t, out, "Speed:       2500 RPM (50%)")
	assert.Contains(t, out, "Temperature: 52.4°C")
	assert.Contains(t, out, "Output:      50%")
	assert.Contains(t, out, "Tool:        false")
	assert.Contains(t, out, "TDP:         15 W (3-25 W)")
}

func TestStatusDoesNotDriveFans(t *testing.T) {
	configPath := testConfig(t)
	execute(t, "--config", configPath, "status")

	enable, err := os.ReadFile(filepath.Join(filepath.Dir(configPath), "hwmon", "hwmon1", "pwm1_enable"))
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(enable))
}
