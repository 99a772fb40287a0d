// Package power keeps the desired CPU power profile and applies it through
// the power tuning tool.
package power

import (
	"context"
	"fmt"
	"math"
	"sync"

	"codeberg.org/mutker/handheldctl/internal/config"
	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"codeberg.org/mutker/handheldctl/internal/powertool"
)

const (
	// FallbackMinTDP and FallbackMaxTDP bound the TDP when the hardware
	// limits are not configured.
	FallbackMinTDP = 3
	FallbackMaxTDP = 25

	infoErrorPrefix = "ryzenadj info error:\n"
)

// Profile is the desired CPU power state.
type Profile = powertool.Profile

// Tool is the subset of the power tuning tool used by the Controller.
type Tool interface {
	Available() bool
	Info(ctx context.Context) (string, error)
	Apply(ctx context.Context, p powertool.Profile) error
	StapmLimit(ctx context.Context) (float64, error)
}

// Limits is the accepted TDP range in watts.
type Limits struct {
	MinTDP int `json:"min_tdp"`
	MaxTDP int `json:"max_tdp"`
}

// Clamp returns tdp limited to the range.
func (l Limits) Clamp(tdp int) int {
	if tdp < l.MinTDP {
		return l.MinTDP
	}
	if tdp > l.MaxTDP {
		return l.MaxTDP
	}

	return tdp
}

// Controller applies power profiles. It is safe for concurrent use.
type Controller struct {
	tool   Tool
	log    logger.Logger
	limits Limits
	verify bool

	mu      sync.Mutex
	desired Profile
	hasSet  bool
}

// New returns a Controller using the limits and verification setting of
// cfg. The initial desired profile uses cfg.DefaultTDP with boost and SMT
// enabled but is not applied until Apply or Reapply.
func New(tool Tool, cfg config.Power, log logger.Logger) *Controller {
	limits := Limits{MinTDP: cfg.MinTDP, MaxTDP: cfg.MaxTDP}
	if limits.MinTDP <= 0 || limits.MaxTDP < limits.MinTDP {
		limits = Limits{MinTDP: FallbackMinTDP, MaxTDP: FallbackMaxTDP}
	}

	return &Controller{
		tool:   tool,
		log:    log,
		limits: limits,
		verify: cfg.Verify,
		desired: Profile{
			TDPWatts:     limits.Clamp(cfg.DefaultTDP),
			BoostEnabled: true,
			SMTEnabled:   true,
		},
	}
}

// HasCapability probes for the power tool. Every call looks again, so a
// tool installed after startup is picked up.
func (c *Controller) HasCapability() bool {
	available := c.tool.Available()
	c.log.Debug().Bool("available", available).Msg("Power tool probed")

	return available
}

// Info returns the tool's diagnostic output. Failures are reported in
// the returned text rather than as an error.
func (c *Controller) Info(ctx context.Context) string {
	info, err := c.tool.Info(ctx)
	if err == nil {
		return info
	}

	c.log.ErrorWithContext(err, "power", "info").Send()

	var execErr *powertool.ExecError
	if errors.As(err, &execErr) && execErr.Stderr != "" {
		return infoErrorPrefix + execErr.Stderr
	}

	return infoErrorPrefix + err.Error()
}

// Limits returns the accepted TDP range.
func (c *Controller) Limits() Limits {
	return c.limits
}

// Profile returns the desired profile.
func (c *Controller) Profile() Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

// Apply clamps p to the limits, records it as the desired profile and
// invokes the tool once. An absent tool fails without starting a process.
func (c *Controller) Apply(ctx context.Context, p Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	clamped := c.limits.Clamp(p.TDPWatts)
	if clamped != p.TDPWatts {
		c.log.Info().
			Int("requested", p.TDPWatts).
			Int("applied", clamped).
			Msg("TDP clamped to limits")
		p.TDPWatts = clamped
	}

	c.desired = p
	c.hasSet = true

	return c.apply(ctx, p)
}

// SetDesired records p, clamped to the limits, as the desired profile
// without applying it.
func (c *Controller) SetDesired(p Profile) Profile {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.TDPWatts = c.limits.Clamp(p.TDPWatts)
	c.desired = p
	c.hasSet = true

	return p
}

// Reapply applies the desired profile again, typically after resume from
// suspend reset the firmware limits.
func (c *Controller) Reapply(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasSet {
		return errors.New().WithMessage(ErrNoProfile, "no power profile applied yet")
	}

	return c.apply(ctx, c.desired)
}

func (c *Controller) apply(ctx context.Context, p Profile) error {
	errFactory := errors.New()

	if !c.tool.Available() {
		return errFactory.WithMessage(errors.ErrToolUnavailable, "power tool not installed")
	}

	if err := c.tool.Apply(ctx, p); err != nil {
		return errFactory.Wrap(ErrApplyFailed, err)
	}

	if c.verify {
		limit, err := c.tool.StapmLimit(ctx)
		if err != nil {
			return errFactory.Wrap(ErrVerifyFailed, err)
		}
		if int(math.Round(limit)) != p.TDPWatts {
			return errFactory.WithData(ErrVerifyFailed,
				fmt.Sprintf("STAPM limit %.3f W, want %d W", limit, p.TDPWatts))
		}
	}

	c.log.Info().
		Int("tdp", p.TDPWatts).
		Bool("boost", p.BoostEnabled).
		Bool("smt", p.SMTEnabled).
		Msg("Power profile applied")

	return nil
}
