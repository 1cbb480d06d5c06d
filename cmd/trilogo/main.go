package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/TriloGo/internal/config"
	"github.com/cjeanneret/TriloGo/internal/debug"
	"github.com/cjeanneret/TriloGo/internal/hw/gamepad"
	"github.com/cjeanneret/TriloGo/internal/hw/gpio"
	"github.com/cjeanneret/TriloGo/internal/hw/i2c"
	"github.com/cjeanneret/TriloGo/internal/hw/motor"
	"github.com/cjeanneret/TriloGo/internal/hw/underlight"
	"github.com/cjeanneret/TriloGo/internal/logic/control"
	"github.com/cjeanneret/TriloGo/internal/logic/feedback"
	"github.com/cjeanneret/TriloGo/internal/logic/link"
	"github.com/cjeanneret/TriloGo/internal/telemetry"
	"github.com/cjeanneret/TriloGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web dashboard on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	profileName := flag.String("profile", "", "controller profile (overrides config; empty asks on startup)")
	listProfiles := flag.Bool("list-profiles", false, "print the known controller profiles and exit")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	registry, err := buildRegistry(cfg.Profiles)
	if err != nil {
		log.Fatalf("load controller profiles failed: %v", err)
	}
	if *listProfiles {
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return
	}

	name := *profileName
	if name == "" {
		name = cfg.Controller.Profile
	}
	if name == "" {
		name, err = chooseProfile(os.Stdin, os.Stdout, registry.Names())
		if err != nil {
			log.Fatalf("choose controller profile: %v", err)
		}
	}
	profile, err := registry.Lookup(name)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, profile, registry.Names(), webPort.port()); err != nil {
		log.Fatalf("trilogo: %v", err)
	}
}

// run owns the hardware for the lifetime of the robot. Every deferred
// release runs before it returns, whatever the exit path.
func run(ctx context.Context, cfg *config.Config, profile gamepad.Profile, profiles []string, port int) error {
	mock := cfg.Defaults.MockHardware
	debug.Value("Mock hardware", mock)
	debug.Value("Controller profile", profile.Name)

	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(mock, cfg.Defaults.PWMHz)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if cerr := gpioDriver.Close(); cerr != nil {
			log.Printf("closing GPIO driver failed: %v", cerr)
		}
	}()

	debug.Step(2, "Initializing motors")
	motors, err := motor.NewDrive(gpioDriver, motorConfig(cfg.Motors))
	if err != nil {
		return fmt.Errorf("init motors: %w", err)
	}
	defer func() {
		if cerr := motors.DisableMotors(); cerr != nil {
			log.Printf("disabling motors failed: %v", cerr)
		}
	}()
	debug.PrintStruct("Motors config", cfg.Motors)

	debug.Step(3, "Initializing underlights")
	conn, err := i2c.Open(cfg.Underlights.Bus, uint16(cfg.Underlights.Address), mock)
	if err != nil {
		return fmt.Errorf("open underlight bus: %w", err)
	}
	strip, err := underlight.New(conn, underlight.Config{Count: cfg.Underlights.Count, Gamma: cfg.Underlights.Gamma})
	if err != nil {
		conn.Close()
		return fmt.Errorf("init underlights: %w", err)
	}
	defer func() {
		if cerr := strip.Close(); cerr != nil {
			log.Printf("closing underlights failed: %v", cerr)
		}
	}()

	debug.Step(4, "Initializing controller")
	pad := gamepad.New(profile, cfg.Controller.DeviceIndex)
	sup := link.NewSupervisor(pad, link.WithAttemptBudget(cfg.AttemptBudget()))
	defer func() {
		if cerr := sup.Close(); cerr != nil {
			log.Printf("closing controller failed: %v", cerr)
		}
	}()

	anim := feedback.NewAnimator(strip.Count(), feedback.Config{
		RainbowStep: cfg.Loop.RainbowStep,
		PulseStep:   cfg.Loop.PulseStep,
		PulseMax:    uint8(cfg.Loop.PulseMax),
	})
	loop := control.NewLoop(sup, motors, strip, anim, control.Config{
		TickPeriod:        cfg.TickPeriod(),
		ReconnectInterval: cfg.ReconnectInterval(),
		AccelerateAxis:    cfg.Controller.Axes.Accelerate,
		BrakeAxis:         cfg.Controller.Axes.Brake,
		SteerAxis:         cfg.Controller.Axes.Steer,
	})

	debug.Step(5, "Initializing telemetry")
	hub := telemetry.NewHub(cfg.PublishInterval())
	loop.SetReporter(hub)

	if cfg.MQTTEnabled() {
		sink, err := telemetry.NewMQTTSink(telemetry.MQTTConfig{
			Broker:   cfg.Telemetry.MQTT.Broker,
			Topic:    cfg.Telemetry.MQTT.Topic,
			ClientID: cfg.Telemetry.MQTT.ClientID,
		})
		if err != nil {
			return fmt.Errorf("init MQTT telemetry: %w", err)
		}
		defer sink.Close()
		hub.AddSink(sink)
		debug.Value("MQTT broker", cfg.Telemetry.MQTT.Broker)
	}

	g, gctx := errgroup.WithContext(ctx)

	if port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		hub.AddSink(broadcaster)

		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, hub, web.ProfileInfo{
			Active:    profile.Name,
			Available: profiles,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	debug.Section("Connecting controller")
	if err := sup.Connect(gctx); err != nil {
		if gctx.Err() != nil {
			return ignoreCanceled(g.Wait())
		}
		debug.Info("No controller yet (%v), retrying every %v", err, cfg.ReconnectInterval())
	} else if err := control.Confirm(gctx, strip, feedback.ConfirmationFrames(strip.Count()), cfg.ConfirmStep()); err != nil && gctx.Err() == nil {
		return fmt.Errorf("connection confirmation: %w", err)
	}

	debug.Summary("TriloGo running")
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return loop.Run(gctx) })

	if err := ignoreCanceled(g.Wait()); err != nil {
		return err
	}
	debug.Info("Shutdown complete after %d ticks", loop.Ticks())
	return nil
}

// ignoreCanceled treats a signal-driven shutdown as success.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func motorConfig(c config.MotorsConfig) motor.Config {
	return motor.Config{
		EnablePin: c.EnablePin,
		Left:      motor.Channel{PPin: c.Left.PPin, NPin: c.Left.NPin},
		Right:     motor.Channel{PPin: c.Right.PPin, NPin: c.Right.NPin},
	}
}

// buildRegistry adds the profiles defined in the config to the built-in ones.
func buildRegistry(custom []config.ProfileConfig) (*gamepad.Registry, error) {
	registry := gamepad.NewRegistry()
	for _, pc := range custom {
		if err := registry.Add(profileFromConfig(pc)); err != nil {
			return nil, fmt.Errorf("profile %q: %w", pc.Name, err)
		}
	}
	return registry, nil
}

func profileFromConfig(pc config.ProfileConfig) gamepad.Profile {
	p := gamepad.Profile{
		Name:       pc.Name,
		DeviceName: pc.DeviceName,
		Axes:       make(map[string]gamepad.AxisMapping, len(pc.Axes)),
	}
	for name, a := range pc.Axes {
		p.Axes[name] = gamepad.AxisMapping{
			Index:    a.Index,
			Trigger:  a.Trigger,
			Invert:   a.Invert,
			RawMin:   a.RawMin,
			RawMax:   a.RawMax,
			Deadzone: a.Deadzone,
		}
	}
	return p
}

// chooseProfile asks for a profile on w and reads the answer from r, by
// number or by name, until a valid one is given.
func chooseProfile(r io.Reader, w io.Writer, names []string) (string, error) {
	if len(names) == 0 {
		return "", errors.New("no controller profiles available")
	}
	fmt.Fprintln(w, "Select your controller:")
	for i, name := range names {
		fmt.Fprintf(w, "  %d: %s\n", i+1, name)
	}

	sc := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, "> ")
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		answer := strings.TrimSpace(sc.Text())
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(names) {
			return names[n-1], nil
		}
		for _, name := range names {
			if strings.EqualFold(answer, name) {
				return name, nil
			}
		}
		fmt.Fprintf(w, "Invalid choice %q, enter 1-%d\n", answer, len(names))
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
