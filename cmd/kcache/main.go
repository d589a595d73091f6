package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxnlabs/kernel-cache/internal/config"
	"github.com/fxnlabs/kernel-cache/internal/logger"
	"github.com/fxnlabs/kernel-cache/internal/metrics"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// state is filled by the app's Before hook and read by every command.
type state struct {
	home    string
	dev     bool
	metrics bool
	cfg     *config.Config
	log     *zap.Logger
}

func configPath(home string) string {
	return filepath.Join(home, "config.yaml")
}

// load reads home/config.yaml (defaults when absent) and overlays the environment.
func (s *state) load(environ []string) error {
	cfg, err := config.LoadConfig(configPath(s.home))
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(environ); err != nil {
		return fmt.Errorf("apply environment: %w", err)
	}

	var opts []logger.Option
	if s.dev {
		opts = append(opts, logger.WithDevelopment())
	}
	zapLogger, err := logger.New(cfg.Logger.Verbosity, opts...)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.log = zapLogger.Named("kcache")
	return nil
}

func newApp(st *state) *cli.App {
	return &cli.App{
		Name:  "kcache",
		Usage: "Inspect, plan and tune the GPU kernel cache",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "home",
				Value:       config.GetDefaultConfigHome(),
				Usage:       "Directory holding config.yaml",
				EnvVars:     []string{"KCACHE_HOME"},
				Destination: &st.home,
			},
			&cli.BoolFlag{
				Name:        "dev",
				Usage:       "Human readable development logging",
				Destination: &st.dev,
			},
			&cli.BoolFlag{
				Name:        "metrics",
				Usage:       "Print the collected kcache_ metrics after the command",
				Destination: &st.metrics,
			},
		},
		Before: func(c *cli.Context) error {
			return st.load(os.Environ())
		},
		After: func(c *cli.Context) error {
			if !st.metrics {
				return nil
			}
			samples, err := metrics.Snapshot(nil)
			if err != nil {
				return err
			}
			for _, s := range samples {
				fmt.Fprintf(c.App.Writer, "%s{%s} %g\n", s.Name, s.Labels, s.Value)
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(st),
			pathsCommand(st),
			infoCommand(st),
			planCommand(st),
			tuneCommand(st),
			lookupCommand(st),
		},
	}
}

func main() {
	st := &state{}
	if err := newApp(st).Run(os.Args); err != nil {
		if st.log != nil {
			st.log.Fatal("failed to run app", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}
