// Package powertool wraps the ryzenadj power-tuning utility and the
// kernel SMT switch.
package powertool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/handheldctl/internal/config"
	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
)

const (
	milliWattsPerWatt  = 1000
	defaultTimeout     = 800 * time.Millisecond
	stapmLimitRowLabel = "STAPM LIMIT"
)

// Profile is a requested CPU power configuration.
type Profile struct {
	TDPWatts     int  `json:"tdp_watts"`
	BoostEnabled bool `json:"boost_enabled"`
	SMTEnabled   bool `json:"smt_enabled"`
}

// Option configures a Tool.
type Option func(*Tool)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(t *Tool) {
		t.runner = r
	}
}

// Tool invokes ryzenadj. It keeps no state besides its configuration;
// every call re-checks whether the binary is installed.
type Tool struct {
	paths      []string
	timeout    time.Duration
	smtControl string
	runner     Runner
	log        logger.Logger
}

// New returns a Tool using the paths, timeout and SMT control file in cfg.
func New(cfg config.Power, log logger.Logger, opts ...Option) *Tool {
	paths := make([]string, 0, len(cfg.FallbackPaths)+1)
	if cfg.ToolPath != "" {
		paths = append(paths, cfg.ToolPath)
	}
	paths = append(paths, cfg.FallbackPaths...)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	t := &Tool{
		paths:      paths,
		timeout:    timeout,
		smtControl: cfg.SMTControl,
		runner:     ExecRunner(),
		log:        log,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Locate returns the first configured path holding a regular file.
func (t *Tool) Locate() (string, bool) {
	for _, path := range t.paths {
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}

	return "", false
}

// Available reports whether the tool is installed.
func (t *Tool) Available() bool {
	_, ok := t.Locate()
	return ok
}

// Info runs the tool's introspection command and returns its output.
func (t *Tool) Info(ctx context.Context) (string, error) {
	stdout, _, err := t.run(ctx, "-i")
	if err != nil {
		return "", err
	}

	return stdout, nil
}

// Apply sets the sustained, fast and slow limits to p.TDPWatts, selects
// the boost behaviour and then switches SMT.
func (t *Tool) Apply(ctx context.Context, p Profile) error {
	if _, _, err := t.run(ctx, Args(p)...); err != nil {
		return err
	}

	return t.setSMT(p.SMTEnabled)
}

// StapmLimit reads the active sustained power limit in watts from the
// introspection output.
func (t *Tool) StapmLimit(ctx context.Context) (float64, error) {
	info, err := t.Info(ctx)
	if err != nil {
		return 0, err
	}

	return ParseStapmLimit(info)
}

// Args encodes p as ryzenadj arguments.
func Args(p Profile) []string {
	limit := strconv.Itoa(p.TDPWatts * milliWattsPerWatt)
	args := []string{
		"--stapm-limit=" + limit,
		"--fast-limit=" + limit,
		"--slow-limit=" + limit,
	}

	if p.BoostEnabled {
		return append(args, "--max-performance")
	}

	return append(args, "--power-saving")
}

// ParseStapmLimit extracts the STAPM LIMIT row of a ryzenadj -i table.
func ParseStapmLimit(info string) (float64, error) {
	errFactory := errors.New()

	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "|")
		if len(fields) < 3 || strings.TrimSpace(fields[1]) != stapmLimitRowLabel {
			continue
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return 0, errFactory.Wrap(ErrInfoParseFailed, err)
		}

		return value, nil
	}

	return 0, errFactory.WithData(ErrInfoParseFailed, "no "+stapmLimitRowLabel+" row")
}

// run invokes the tool and treats anything written to stderr as failure.
func (t *Tool) run(ctx context.Context, args ...string) (string, string, error) {
	errFactory := errors.New()

	path, ok := t.Locate()
	if !ok {
		return "", "", errFactory.WithData(errors.ErrToolUnavailable, strings.Join(t.paths, ", "))
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := t.runner.Run(ctx, path, args...)
	t.log.Debug().
		Str("path", path).
		Strs("args", args).
		Dur("elapsed", time.Since(start)).
		Msg("Power tool invoked")

	if ctx.Err() == context.DeadlineExceeded {
		return stdout, stderr, errFactory.Wrap(errors.ErrTimeout, &ExecError{
			Args: append([]string{path}, args...), Stdout: stdout, Stderr: stderr, Err: ctx.Err(),
		})
	}

	if err != nil || stderr != "" {
		return stdout, stderr, errFactory.Wrap(errors.ErrExternalTool, &ExecError{
			Args: append([]string{path}, args...), Stdout: stdout, Stderr: stderr, Err: err,
		})
	}

	return stdout, stderr, nil
}

func (t *Tool) setSMT(enabled bool) error {
	errFactory := errors.New()

	if t.smtControl == "" {
		return nil
	}

	current, err := os.ReadFile(t.smtControl)
	if err != nil {
		if os.IsNotExist(err) {
			t.log.Debug().Str("path", t.smtControl).Msg("SMT control not present, skipping")
			return nil
		}
		return errFactory.Wrap(errors.ErrHardwareIO, errFactory.Wrap(ErrSMTWriteFailed, err))
	}

	state := strings.TrimSpace(string(current))
	if state == "notsupported" || state == "notimplemented" || state == "forceoff" {
		t.log.Debug().Str("state", state).Msg("SMT cannot be switched, skipping")
		return nil
	}

	want := "off"
	if enabled {
		want = "on"
	}
	if state == want {
		return nil
	}

	if err := os.WriteFile(t.smtControl, []byte(want), 0o644); err != nil {
		return errFactory.Wrap(errors.ErrHardwareIO, errFactory.Wrap(ErrSMTWriteFailed,
			fmt.Errorf("write %s: %w", t.smtControl, err)))
	}

	return nil
}
