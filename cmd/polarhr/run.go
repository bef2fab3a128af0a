package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/polarhr/internal/bluez"
	"github.com/srg/polarhr/internal/device"
	"github.com/srg/polarhr/internal/groutine"
	"github.com/srg/polarhr/internal/health"
	"github.com/srg/polarhr/internal/hrm"
	"github.com/srg/polarhr/internal/monitor"
	"github.com/srg/polarhr/internal/sink"
	"github.com/srg/polarhr/internal/status"
	"github.com/srg/polarhr/internal/watchdog"
	"github.com/srg/polarhr/pkg/config"
)

// busSession is an open system bus connection.
type busSession interface {
	monitor.Bus
	Close() error
}

// Replaced in tests.
var (
	openBus = func(logger *logrus.Logger) (busSession, error) {
		bus, err := bluez.Open(logger)
		if err != nil {
			return nil, err
		}
		return bus, nil
	}
	clock device.Clock = device.SystemClock{}
)

// loadConfig reads --config and applies the flags the user set on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	for name, dst := range map[string]*string{
		"output":  &cfg.Output,
		"format":  &cfg.Format,
		"adapter": &cfg.Adapter,
		"osc":     &cfg.OSC,
		"listen":  &cfg.Listen,
	} {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("device") {
		cfg.Devices, _ = flags.GetStringArray("device")
	}
	if flags.Changed("health-warnings") {
		cfg.HealthWarnings, _ = flags.GetBool("health-warnings")
	}
	if flags.Changed("no-extras") {
		noExtras, _ := flags.GetBool("no-extras")
		cfg.Extras = !noExtras
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// pendingOutput forwards to the sample output once it is open. The output
// path depends on the model of the acquired strap.
type pendingOutput struct {
	target sink.Emitter
}

func (p *pendingOutput) Emit(s hrm.Sample) error {
	if p.target == nil {
		return ErrOutputNotOpen
	}
	return p.target.Emit(s)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	opts, err := cfg.MonitorOptions()
	if err != nil {
		return err
	}
	format, err := sink.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	var relay *sink.OSCRelay
	if cfg.OSC != "" {
		if relay, err = sink.NewOSCRelay(cfg.OSC); err != nil {
			return err
		}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bus, err := openBus(logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	out := &pendingOutput{}
	fanout := sink.NewFanout(out, logger)
	if cfg.HealthWarnings {
		fanout.Add(health.NewScreener(health.NewWarner(cmd.ErrOrStderr())))
	}
	if relay != nil {
		fanout.Add(relay)
	}

	store := status.NewStore()
	notifier := watchdog.New(logger)
	defer func() {
		if err := notifier.Stopping(); err != nil {
			logger.WithError(err).Debug("Stopping notification failed")
		}
	}()

	mon := monitor.New(bus, fanout, clock, logger, opts).
		WithNotifier(notifier).
		WithStatus(store)
	if relay != nil {
		mon.WithConnectionObserver(relay)
	}
	if cfg.Extras {
		dir, err := sink.CacheDir()
		if err != nil {
			return err
		}
		mon.WithExtras(func(prefix string) monitor.Appender {
			return sink.Files{Dir: dir, Prefix: prefix}
		})
	}
	defer func() {
		if err := mon.Close(); err != nil {
			logger.WithError(err).Debug("Failed to remove signal matches")
		}
	}()

	if cfg.Listen != "" {
		errs := groutine.Go(ctx, "status-server", status.NewServer(cfg.Listen, store, logger).Serve)
		go func() {
			if err := <-errs; err != nil {
				logger.WithError(err).Error("Status server stopped")
			}
		}()
	}

	found, err := mon.Acquire(ctx)
	if err != nil {
		return err
	}

	output, err := sink.OpenOutput(cfg.Output, found.ModelPrefix(), format, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer output.Close()
	out.target = output
	logger.WithField("output", output.Path).Info("Writing samples")

	if relay != nil {
		defer func() {
			if err := relay.Close(); err != nil {
				logger.WithError(err).Debug("Failed to reset OSC parameters")
			}
		}()
	}

	return mon.Run(ctx)
}
