// Package config defines the environment-populated record the core
// components consume and do not themselves parse (§6). Grounded in the
// teacher's api/pkg/config/config.go, which does the same
// envconfig.Process("", &cfg) population of a nested struct tree; here
// the tree is narrowed to the fields multishiva's core actually reads
// (self name, mode, listen port, optional host address, PSK, edge
// topology, and the handful of behavior/hotkey tunables) instead of
// the teacher's much larger provider/auth/billing surface.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Mode selects whether this process owns the keyboard/mouse (Host) or
// receives focus and injects events on behalf of a remote one (Agent).
type Mode string

const (
	ModeHost  Mode = "host"
	ModeAgent Mode = "agent"
)

// Config is the full set of values the core consumes, per §6's "Config
// record" input contract. Source (flags, env, file) is deliberately
// out of scope for the core; LoadFromEnv is one concrete way to
// populate it.
type Config struct {
	SelfName    string `envconfig:"MULTISHIVA_SELF_NAME"`
	Mode        Mode   `envconfig:"MULTISHIVA_MODE"`
	Port        uint16 `envconfig:"MULTISHIVA_PORT" default:"45289"`
	HostAddress string `envconfig:"MULTISHIVA_HOST_ADDRESS"`
	PSK         string `envconfig:"MULTISHIVA_PSK"`

	Edges    Edges
	Behavior Behavior
	Hotkeys  Hotkeys
}

// Edges maps the four screen borders to the neighbor machine name
// configured on that edge, if any (§4.2). Unset entries mean "no
// neighbor on this edge".
type Edges struct {
	Left   string `envconfig:"MULTISHIVA_EDGE_LEFT"`
	Right  string `envconfig:"MULTISHIVA_EDGE_RIGHT"`
	Top    string `envconfig:"MULTISHIVA_EDGE_TOP"`
	Bottom string `envconfig:"MULTISHIVA_EDGE_BOTTOM"`
}

// Behavior holds the tunables §6 lists under "behavior.*".
type Behavior struct {
	EdgeThresholdPx  uint32 `envconfig:"MULTISHIVA_EDGE_THRESHOLD_PX" default:"10"`
	FrictionMs       uint64 `envconfig:"MULTISHIVA_FRICTION_MS" default:"0"`
	ReconnectDelayMs uint64 `envconfig:"MULTISHIVA_RECONNECT_DELAY_MS" default:"0"`
}

// Hotkeys holds the optional kill-switch chord, as the raw string
// listed under "hotkeys.kill_switch" in §6. Parsing it into a
// []eventmodel.Key is the caller's job (ParseChord), kept out of this
// struct so config stays a plain envconfig target.
type Hotkeys struct {
	KillSwitch string `envconfig:"MULTISHIVA_KILL_SWITCH"`
}

// LoadFromEnv populates a Config from the process environment and
// validates the fields the core requires to be present (§6: self_name
// non-empty, mode Host or Agent, port non-zero, tls.psk non-empty).
func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the core's Config input contract
// requires. It does not validate Edges/Behavior/Hotkeys, which are all
// optional or carry usable zero-value defaults.
func (c Config) Validate() error {
	if c.SelfName == "" {
		return fmt.Errorf("config: MULTISHIVA_SELF_NAME is required")
	}
	if c.Mode != ModeHost && c.Mode != ModeAgent {
		return fmt.Errorf("config: MULTISHIVA_MODE must be %q or %q, got %q", ModeHost, ModeAgent, c.Mode)
	}
	if c.Port == 0 {
		return fmt.Errorf("config: MULTISHIVA_PORT must be non-zero")
	}
	if c.PSK == "" {
		return fmt.Errorf("config: MULTISHIVA_PSK is required")
	}
	return nil
}
