package main

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/kernel-cache/fixtures"
	"github.com/fxnlabs/kernel-cache/internal/cache"
	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/handle"
	"github.com/fxnlabs/kernel-cache/internal/kerndb"
	"github.com/fxnlabs/kernel-cache/internal/solver"
	"github.com/fxnlabs/kernel-cache/internal/solver/conv"
	"github.com/fxnlabs/kernel-cache/internal/target"
	"github.com/fxnlabs/kernel-cache/internal/tensor"
	"github.com/fxnlabs/kernel-cache/internal/tensorop"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func initCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default config.yaml into the home directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing config"},
		},
		Action: func(c *cli.Context) error {
			path := configPath(st.home)
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := os.MkdirAll(st.home, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, fixtures.ConfigTemplate, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
			return nil
		},
	}
}

func pathsCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "paths",
		Usage: "Show the resolved cache directories",
		Action: func(c *cli.Context) error {
			paths, err := cache.Once(st.cfg.Cache, st.log)
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "user:     %s\n", orNone(paths.User))
			fmt.Fprintf(w, "system:   %s\n", orNone(paths.System))
			fmt.Fprintf(w, "disabled: %t\n", paths.Disabled)
			fmt.Fprintf(w, "backend:  %s\n", st.cfg.Cache.Backend)
			if paths.User != "" {
				fmt.Fprintf(w, "network:  %t\n", cache.IsNetworkedFilesystem(paths.User))
			}
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func infoCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the device, its database names and the registered solvers",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "banner", Value: true, Usage: "Print the banner"},
		},
		Action: func(c *cli.Context) error {
			var (
				m        *gpu.Manager
				t        target.Properties
				reg      *solver.Registry
				paths    cache.Paths
				embedded kerndb.Embedded
			)
			stop, err := withRuntime(c.Context, st, &m, &t, &reg, &paths, &embedded)
			if err != nil {
				return err
			}
			defer stop()

			w := c.App.Writer
			if c.Bool("banner") {
				fmt.Fprintln(w, figure.NewFigure("kcache", "", true).String())
			}
			info := m.GetDeviceInfo()
			fmt.Fprintf(w, "device:   %s (%s)\n", info.Name, m.GetBackendType())
			fmt.Fprintf(w, "hardware: %t\n", m.IsGPUAvailable())
			fmt.Fprintf(w, "target:   %s\n", t)
			fmt.Fprintf(w, "db id:    %s\n", t.DbID())
			fmt.Fprintf(w, "basename: %s\n", t.DbBasename())
			for _, db := range []struct {
				name string
				ext  kerndb.Ext
			}{{"kernel db", kerndb.KernelExt}, {"perf db", kerndb.PerfExt}} {
				opened := kerndb.Open(t, paths.User, paths.System, db.ext, kerndb.WithEmbedded(embedded))
				if multi, ok := opened.Store.(*kerndb.MultiFileDB); ok {
					fmt.Fprintf(w, "%-10s user=%t system=%t\n", db.name+":", multi.HasUserTier(), multi.HasSystemTier())
				}
			}
			for _, name := range slices.Sorted(maps.Keys(embedded)) {
				if mem, ok := embedded[name].(*kerndb.MemDB); ok {
					fmt.Fprintf(w, "embedded: %s (%d records)\n", name, mem.Len())
				}
			}
			fmt.Fprintln(w, "solvers:")
			for _, s := range reg.Solvers() {
				fmt.Fprintf(w, "  %s tunable=%t\n", s.ID(), s.IsTunable())
			}
			return nil
		},
	}
}

// parseDims reads "8x16x32x32".
func parseDims(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "x")
	dims := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid dimension %q in %q", p, s)
		}
		dims[i] = n
	}
	return dims, nil
}

func parseType(s string) (tensor.DataType, error) {
	for _, dt := range []tensor.DataType{tensor.Half, tensor.Float, tensor.Double, tensor.BFloat16, tensor.Int8, tensor.Int32} {
		if strings.EqualFold(dt.String(), s) {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

func descriptor(dt tensor.DataType, lengths, strides string) (tensor.Descriptor, error) {
	lens, err := parseDims(lengths)
	if err != nil {
		return tensor.Descriptor{}, err
	}
	if strides == "" {
		return tensor.New(dt, lens...), nil
	}
	strs, err := parseDims(strides)
	if err != nil {
		return tensor.Descriptor{}, err
	}
	return tensor.NewStrided(dt, lens, strs)
}

func planCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Resolve the elementwise kernel for C = op(A, B) + beta*C",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "op", Value: "add", Usage: "add, mul, min or max"},
			&cli.StringFlag{Name: "type", Value: "float"},
			&cli.StringFlag{Name: "c", Value: "8x16x32x32", Usage: "C lengths"},
			&cli.StringFlag{Name: "c-strides", Usage: "C strides (packed when empty)"},
			&cli.StringFlag{Name: "b", Value: "1x16x1x1", Usage: "B lengths"},
			&cli.Float64Flag{Name: "beta", Value: 0},
			&cli.BoolFlag{Name: "run", Usage: "Build and launch the kernel through the binary cache"},
		},
		Action: func(c *cli.Context) error {
			op, err := tensorop.ParseOp(c.String("op"))
			if err != nil {
				return err
			}
			dt, err := parseType(c.String("type"))
			if err != nil {
				return err
			}
			cd, err := descriptor(dt, c.String("c"), c.String("c-strides"))
			if err != nil {
				return err
			}
			bd, err := descriptor(dt, c.String("b"), "")
			if err != nil {
				return err
			}
			p := tensorop.Problem{Op: op, A: cd, B: bd, C: cd, Alpha0: 1, Alpha1: 1, Beta: float32(c.Float64("beta"))}

			pl, err := tensorop.NewPlan(p)
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "strategy: %s\n", pl.Strategy)
			fmt.Fprintf(w, "kernel:   %s\n", pl.Kernel)
			fmt.Fprintf(w, "options: %s\n", pl.Options)
			fmt.Fprintf(w, "local:    %v\n", pl.Geometry.Local)
			fmt.Fprintf(w, "global:   %v\n", pl.Geometry.Global)
			fmt.Fprintf(w, "bitmap:   %b\n", pl.Broadcast.Bitmap)
			fmt.Fprintf(w, "netcfg:   %s\n", pl.NetworkConfig)
			fmt.Fprintf(w, "bytes:    %d\n", cd.Bytes())

			if !c.Bool("run") {
				return nil
			}
			var h *handle.Handle
			stop, err := withRuntime(c.Context, st, &h)
			if err != nil {
				return err
			}
			defer stop()

			key, err := tensorop.CacheKey(h.Target(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "key:      %s\n", key)
			if err := tensorop.OpTensor(c.Context, h, p, tensorop.Buffers{A: 0x1000, B: 0x2000, C: 0x3000}); err != nil {
				return err
			}
			fmt.Fprintf(w, "device:   %s\n", h.GetKernelTime())
			return nil
		},
	}
}

var convFlags = []cli.Flag{
	&cli.StringFlag{Name: "type", Value: "float"},
	&cli.IntFlag{Name: "n", Value: 2, Usage: "batch"},
	&cli.IntFlag{Name: "c", Value: 16, Usage: "input channels"},
	&cli.IntFlag{Name: "k", Value: 16, Usage: "output channels"},
	&cli.IntFlag{Name: "groups", Value: 1},
	&cli.StringFlag{Name: "in", Value: "4x8x8", Usage: "input D x H x W"},
	&cli.IntFlag{Name: "filter", Value: 3, Usage: "cubic filter size"},
	&cli.IntFlag{Name: "pad", Value: 1},
	&cli.IntFlag{Name: "stride", Value: 1},
}

// convProblem builds a channels-last 3-D forward convolution from the flags.
func convProblem(c *cli.Context) (*conv.Problem, error) {
	dt, err := parseType(c.String("type"))
	if err != nil {
		return nil, err
	}
	spatial, err := parseDims(c.String("in"))
	if err != nil {
		return nil, err
	}
	if len(spatial) != 3 {
		return nil, fmt.Errorf("--in needs three dimensions, got %q", c.String("in"))
	}
	n, ch, k, g := c.Int("n"), c.Int("c"), c.Int("k"), c.Int("groups")
	filter, pad, stride := c.Int("filter"), c.Int("pad"), c.Int("stride")
	if g <= 0 || ch%g != 0 || k%g != 0 || stride <= 0 {
		return nil, fmt.Errorf("channels %d/%d must divide into %d groups", ch, k, g)
	}

	out := make([]int, 3)
	for i, in := range spatial {
		out[i] = (in+2*pad-filter)/stride + 1
		if out[i] <= 0 {
			return nil, fmt.Errorf("filter %d does not fit input %v", filter, spatial)
		}
	}
	return &conv.Problem{
		Direction: conv.Forward,
		In:        tensor.New(dt, n, ch, spatial[0], spatial[1], spatial[2]).WithLayout("NDHWC"),
		Weights:   tensor.New(dt, k, ch/g, filter, filter, filter).WithLayout("NDHWC"),
		Out:       tensor.New(dt, n, k, out[0], out[1], out[2]).WithLayout("NDHWC"),
		Groups:    g,
		Pads:      []int{pad, pad, pad},
		Strides:   []int{stride, stride, stride},
		Dilations: []int{1, 1, 1},
	}, nil
}

func tuneCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "tune",
		Usage: "Search the fastest solver config for a 3-D convolution and store it",
		Flags: convFlags,
		Action: func(c *cli.Context) error {
			p, err := convProblem(c)
			if err != nil {
				return err
			}
			st.cfg.Tuning.Enabled = true

			var (
				reg *solver.Registry
				ec  *solver.ExecutionContext
				pdb *solver.PerfDB
			)
			stop, err := withRuntime(c.Context, st, &reg, &ec, &pdb)
			if err != nil {
				return err
			}
			defer stop()

			params := conv.InvokeParams{In: 0x1000, Weights: 0x2000, Out: 0x3000}
			for _, s := range reg.Applicable(ec, p) {
				if !s.IsTunable() {
					continue
				}
				res, err := solver.GenericSearch(c.Context, ec, s, p, params)
				if err != nil {
					st.log.Warn("search failed", zap.String("solver", s.ID()), zap.Error(err))
					continue
				}
				for _, trial := range res.Trials {
					status := trial.Time.String()
					if trial.Err != nil {
						status = trial.Err.Error()
					}
					fmt.Fprintf(c.App.Writer, "  %-80s %s\n", trial.Config, status)
				}
				fmt.Fprintf(c.App.Writer, "%s: best %s (%s)\n", s.ID(), res.Best, res.BestTime)
				if err := pdb.Update(s, p, res.Best); err != nil {
					return fmt.Errorf("store tuned config: %w", err)
				}
				return nil
			}
			return fmt.Errorf("no tunable solver applies to %s", p.Key())
		},
	}
}

func lookupCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "lookup",
		Usage: "Show the solution the registry picks for a 3-D convolution",
		Flags: convFlags,
		Action: func(c *cli.Context) error {
			p, err := convProblem(c)
			if err != nil {
				return err
			}
			st.cfg.Tuning.Enabled = false

			var (
				reg *solver.Registry
				ec  *solver.ExecutionContext
			)
			stop, err := withRuntime(c.Context, st, &reg, &ec)
			if err != nil {
				return err
			}
			defer stop()

			found, err := reg.FindSolution(c.Context, ec, p, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "solver: %s\n", found.Solver.ID())
			if found.Config != nil {
				fmt.Fprintf(c.App.Writer, "config: %s\n", found.Config)
				fmt.Fprintf(c.App.Writer, "source: %s\n", found.Source)
			}
			return nil
		},
	}
}
