package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wardmap/internal/config"
)

// Version is set at build time.
var Version = "dev"

type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
	stdout  io.Writer
	stderr  io.Writer

	// staleOutput is the map path a failed run must not leave behind.
	staleOutput string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		if a.staleOutput != "" {
			if rmErr := os.Remove(a.staleOutput); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				fmt.Fprintf(stderr, "Error: remove stale map: %v\n", rmErr)
			}
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wardmap",
		Short: "Ward population by county, as tables and a choropleth map",
		Long: `wardmap joins electoral ward polygons onto county polygons, sums the
resident population per county and per ward, prints the totals and
draws a population map of the wards with the county outlines on top.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "crs" {
				return nil
			}
			cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if cmd.Name() == "run" && cfg.Render.RemoveStale {
				a.staleOutput = cfg.Render.Output
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			a.cfg = cfg
			a.logger = newLogger(a.stderr, cfg.Verbose)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.DefaultConfigFile+")")
	flags.BoolP("verbose", "v", false, "debug logging")
	flags.String("wards", "", "path to the wards shapefile")
	flags.String("counties", "", "path to the counties shapefile")
	flags.Int("target-epsg", 0, "EPSG code both layers are projected into")
	flags.StringP("output", "o", "", "PNG file the map is written to")
	flags.String("predicate", "", "join predicate (intersects|within|centroid|dominant)")
	flags.Bool("interactive", false, "open the map in an image viewer after rendering")

	_ = root.RegisterFlagCompletionFunc("predicate", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"intersects", "within", "centroid", "dominant"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		a.runCmd(),
		a.reportCmd(),
		a.validateCmd(),
		a.crsCmd(),
		a.versionCmd(),
	)
	return root
}

// newLogger builds the production JSON logger on w, at debug level when
// verbose is set.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.AddSync(w),
		cfg.Level,
	)
	return zap.New(core, zap.AddCaller())
}
