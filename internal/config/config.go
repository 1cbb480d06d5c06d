package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChannelConfig holds the two PWM pins of one H-bridge output.
type ChannelConfig struct {
	PPin int `yaml:"p_pin"` // forward (BCM)
	NPin int `yaml:"n_pin"` // reverse (BCM)
}

// MotorsConfig holds the DRV8833 wiring.
type MotorsConfig struct {
	EnablePin int           `yaml:"enable_pin"` // nSLEEP pin (BCM). Active HIGH.
	Left      ChannelConfig `yaml:"left"`
	Right     ChannelConfig `yaml:"right"`
}

// UnderlightsConfig describes the SN3218 underlight strip.
type UnderlightsConfig struct {
	Bus     int  `yaml:"bus"`     // /dev/i2c-N
	Address int  `yaml:"address"` // 7-bit I2C address
	Count   int  `yaml:"count"`   // RGB lights wired, 1-6
	Gamma   bool `yaml:"gamma"`
}

// AxesConfig names the controller axes used for driving.
type AxesConfig struct {
	Accelerate string `yaml:"accelerate"`
	Brake      string `yaml:"brake"`
	Steer      string `yaml:"steer"`
}

// ControllerConfig selects and supervises the game controller.
type ControllerConfig struct {
	Profile            string     `yaml:"profile"`      // empty = ask on startup
	DeviceIndex        int        `yaml:"device_index"` // /dev/input/jsN, -1 = scan
	ReconnectIntervalS float64    `yaml:"reconnect_interval_s"`
	AttemptBudgetMs    float64    `yaml:"attempt_budget_ms"`
	Axes               AxesConfig `yaml:"axes"`
}

// LoopConfig holds the control loop timing and the animation parameters.
type LoopConfig struct {
	TickMs        int     `yaml:"tick_ms"`
	RainbowStep   float64 `yaml:"rainbow_step"` // hue turns per tick
	PulseStep     float64 `yaml:"pulse_step"`   // radians per tick
	PulseMax      int     `yaml:"pulse_max"`    // peak red, 0-255
	ConfirmStepMs int     `yaml:"confirm_step_ms"`
}

// MQTTConfig is the optional telemetry broker. Empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// TelemetryConfig controls snapshot publishing.
type TelemetryConfig struct {
	PublishIntervalMs int        `yaml:"publish_interval_ms"`
	MQTT              MQTTConfig `yaml:"mqtt"`
}

// AxisConfig maps a named axis to a raw joystick axis.
type AxisConfig struct {
	Index    int     `yaml:"index"`
	Trigger  bool    `yaml:"trigger"`
	Invert   bool    `yaml:"invert"`
	RawMin   int     `yaml:"raw_min"`
	RawMax   int     `yaml:"raw_max"`
	Deadzone float64 `yaml:"deadzone"`
}

// ProfileConfig is a user-defined controller profile.
type ProfileConfig struct {
	Name       string                `yaml:"name"`
	DeviceName string                `yaml:"device_name"`
	Axes       map[string]AxisConfig `yaml:"axes"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel   int  `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockHardware bool `yaml:"mock_hardware"` // mock GPIO and I2C (true=dev/test, false=real Raspberry Pi)
	PWMHz        int  `yaml:"pwm_hz"`        // software PWM frequency of the motor pins
}

// Config aggregates all application configuration.
type Config struct {
	Motors      MotorsConfig      `yaml:"motors"`
	Underlights UnderlightsConfig `yaml:"underlights"`
	Controller  ControllerConfig  `yaml:"controller"`
	Loop        LoopConfig        `yaml:"loop"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Profiles    []ProfileConfig   `yaml:"profiles"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
}

// Default returns the configuration of a stock Trilobot.
func Default() *Config {
	return &Config{
		Motors: MotorsConfig{
			EnablePin: 26,
			Left:      ChannelConfig{PPin: 8, NPin: 11},
			Right:     ChannelConfig{PPin: 10, NPin: 9},
		},
		Underlights: UnderlightsConfig{Bus: 1, Address: 0x54, Count: 6},
		Controller: ControllerConfig{
			DeviceIndex:        -1,
			ReconnectIntervalS: 10,
			AttemptBudgetMs:    2,
			Axes:               AxesConfig{Accelerate: "R2", Brake: "L2", Steer: "LX"},
		},
		Loop: LoopConfig{
			TickMs:        10,
			RainbowStep:   0.5 / 360,
			PulseStep:     math.Pi / 200,
			PulseMax:      127,
			ConfirmStepMs: 100,
		},
		Telemetry: TelemetryConfig{
			PublishIntervalMs: 100,
			MQTT:              MQTTConfig{Topic: "trilogo/telemetry"},
		},
		Defaults: DefaultsConfig{DebugLevel: 1, PWMHz: 100},
	}
}

// ValidateConfigPath accepts only .yaml files inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	clean := filepath.Clean(path)
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.fillZero()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillZero restores defaults for values explicitly set to zero.
func (c *Config) fillZero() {
	d := Default()
	if c.Loop.TickMs <= 0 {
		c.Loop.TickMs = d.Loop.TickMs
	}
	if c.Loop.RainbowStep == 0 {
		c.Loop.RainbowStep = d.Loop.RainbowStep
	}
	if c.Loop.PulseStep == 0 {
		c.Loop.PulseStep = d.Loop.PulseStep
	}
	if c.Loop.ConfirmStepMs <= 0 {
		c.Loop.ConfirmStepMs = d.Loop.ConfirmStepMs
	}
	if c.Controller.ReconnectIntervalS <= 0 {
		c.Controller.ReconnectIntervalS = d.Controller.ReconnectIntervalS
	}
	if c.Controller.AttemptBudgetMs <= 0 {
		c.Controller.AttemptBudgetMs = d.Controller.AttemptBudgetMs
	}
	if c.Telemetry.PublishIntervalMs <= 0 {
		c.Telemetry.PublishIntervalMs = d.Telemetry.PublishIntervalMs
	}
	if c.Defaults.PWMHz <= 0 {
		c.Defaults.PWMHz = d.Defaults.PWMHz
	}
	if c.Underlights.Address == 0 {
		c.Underlights.Address = d.Underlights.Address
	}
	if c.Underlights.Count == 0 {
		c.Underlights.Count = d.Underlights.Count
	}
	axes := &c.Controller.Axes
	if axes.Accelerate == "" {
		axes.Accelerate = d.Controller.Axes.Accelerate
	}
	if axes.Brake == "" {
		axes.Brake = d.Controller.Axes.Brake
	}
	if axes.Steer == "" {
		axes.Steer = d.Controller.Axes.Steer
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Underlights.Count < 1 || c.Underlights.Count > 6 {
		return fmt.Errorf("underlights.count must be between 1 and 6, got %d", c.Underlights.Count)
	}
	if c.Underlights.Address < 0x03 || c.Underlights.Address > 0x77 {
		return fmt.Errorf("underlights.address must be a 7-bit address, got 0x%x", c.Underlights.Address)
	}
	if c.Underlights.Bus < 0 {
		return fmt.Errorf("underlights.bus must be >= 0, got %d", c.Underlights.Bus)
	}
	if c.Loop.PulseMax < 0 || c.Loop.PulseMax > 255 {
		return fmt.Errorf("loop.pulse_max must be between 0 and 255, got %d", c.Loop.PulseMax)
	}
	if c.Loop.RainbowStep < 0 || c.Loop.RainbowStep >= 1 {
		return fmt.Errorf("loop.rainbow_step must be in [0, 1), got %v", c.Loop.RainbowStep)
	}
	if c.Loop.PulseStep < 0 || c.Loop.PulseStep >= 2*math.Pi {
		return fmt.Errorf("loop.pulse_step must be in [0, 2pi), got %v", c.Loop.PulseStep)
	}
	if c.AttemptBudget() >= c.TickPeriod() {
		return fmt.Errorf("controller.attempt_budget_ms (%v) must be below loop.tick_ms (%v)", c.AttemptBudget(), c.TickPeriod())
	}
	if c.Controller.DeviceIndex < -1 {
		return fmt.Errorf("controller.device_index must be >= -1, got %d", c.Controller.DeviceIndex)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	pins := map[int]string{}
	for name, pin := range map[string]int{
		"motors.enable_pin":  c.Motors.EnablePin,
		"motors.left.p_pin":  c.Motors.Left.PPin,
		"motors.left.n_pin":  c.Motors.Left.NPin,
		"motors.right.p_pin": c.Motors.Right.PPin,
		"motors.right.n_pin": c.Motors.Right.NPin,
	} {
		if pin < 0 || pin > 27 {
			return fmt.Errorf("%s must be a BCM pin 0-27, got %d", name, pin)
		}
		if other, dup := pins[pin]; dup && pin != 0 {
			return fmt.Errorf("%s and %s share pin %d", name, other, pin)
		}
		pins[pin] = name
	}
	seen := map[string]bool{}
	for i, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profiles[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("profile %q defined twice", p.Name)
		}
		seen[p.Name] = true
		if len(p.Axes) == 0 {
			return fmt.Errorf("profile %q has no axes", p.Name)
		}
	}
	return nil
}

// TickPeriod returns the nominal control loop period.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Loop.TickMs) * time.Millisecond
}

// ReconnectInterval returns the minimum time between two reconnect attempts.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Controller.ReconnectIntervalS * float64(time.Second))
}

// AttemptBudget returns how long a tick waits for a reconnect attempt.
func (c *Config) AttemptBudget() time.Duration {
	return time.Duration(c.Controller.AttemptBudgetMs * float64(time.Millisecond))
}

// ConfirmStep returns the delay between two confirmation frames.
func (c *Config) ConfirmStep() time.Duration {
	return time.Duration(c.Loop.ConfirmStepMs) * time.Millisecond
}

// PublishInterval returns the telemetry publish period.
func (c *Config) PublishInterval() time.Duration {
	return time.Duration(c.Telemetry.PublishIntervalMs) * time.Millisecond
}

// MQTTEnabled reports whether a telemetry broker is configured.
func (c *Config) MQTTEnabled() bool {
	return c.Telemetry.MQTT.Broker != ""
}
