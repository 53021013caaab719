package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	charmlog "github.com/charmbracelet/log"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/conda-tools/condactl/pkg/build"
	"github.com/conda-tools/condactl/pkg/dag"
	"github.com/conda-tools/condactl/pkg/render"
)

func cmdTest() *cobra.Command {
	var traceFile string

	cfg := testConfig{}

	cmd := &cobra.Command{
		Use:  "test",
		Long: `Test built packages. Accepts either no positional arguments (for testing everything) or a list of packages to test.`,
		Example: `
    # Run every recipe's test block against its built artifact
    condactl test

    # Test a few packages
    condactl test casq loguru

    # Test packages built into a different channel directory
    condactl test -o ./channel casq
    `,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if traceFile != "" {
				w, err := os.Create(traceFile)
				if err != nil {
					return fmt.Errorf("creating trace file: %w", err)
				}
				defer w.Close()
				exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
				if err != nil {
					return fmt.Errorf("creating stdout exporter: %w", err)
				}
				tp := trace.NewTracerProvider(trace.WithBatcher(exporter))
				otel.SetTracerProvider(tp)

				defer func() {
					if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
						clog.FromContext(ctx).Errorf("Shutting down trace provider: %v", err)
					}
				}()

				tctx, span := otel.Tracer("condactl").Start(ctx, "test")
				defer span.End()
				ctx = tctx
			}

			if cfg.jobs == 0 {
				cfg.jobs = runtime.GOMAXPROCS(0)
			}

			if cfg.outDir == "" {
				cfg.outDir = filepath.Join(cfg.dir, "output")
			}

			return testAll(ctx, &cfg, args)
		},
	}

	cmd.Flags().StringVarP(&cfg.dir, "dir", "d", ".", "directory containing the recipe repository")
	cmd.Flags().StringVarP(&cfg.outDir, "out-dir", "o", "", "channel directory holding the built packages (default is <dir>/output)")
	cmd.Flags().StringVar(&cfg.cacheDir, "cache-dir", "", "directory used to cache downloaded source distributions")

	cmd.Flags().IntVarP(&cfg.jobs, "jobs", "j", 0, "number of jobs to run concurrently (default is GOMAXPROCS)")
	cmd.Flags().StringVar(&traceFile, "trace", "", "where to write trace output")

	return cmd
}

type testConfig struct {
	dir      string
	outDir   string
	cacheDir string

	jobs int
}

func testAll(ctx context.Context, cfg *testConfig, packages []string) error {
	log := clog.FromContext(ctx)

	g, err := cfg.getPackages(ctx)
	if err != nil {
		return fmt.Errorf("getting packages: %w", err)
	}

	todoPkgs := make(map[string]struct{}, len(packages))
	for _, pkg := range packages {
		if g.Resolved(pkg) == nil {
			return fmt.Errorf("package %q not found in %s", pkg, cfg.dir)
		}
		todoPkgs[pkg] = struct{}{}
	}

	eg, ctx := errgroup.WithContext(ctx)
	if cfg.jobs > 0 {
		log.Info("Limiting max jobs", "jobs", cfg.jobs)
		eg.SetLimit(cfg.jobs)
	}

	// If only one package or sequential tests, log to stdout, otherwise log to files
	logStdout := len(packages) == 1 || cfg.jobs == 1

	failures := testFailures{}

	// Tests don't depend on each other, so a simple fan-out will do.
	for _, pkg := range g.Nodes() {
		if _, ok := todoPkgs[pkg]; len(todoPkgs) > 0 && !ok {
			log.Debugf("Skipping package %q", pkg)
			continue
		}

		res := g.Resolved(pkg)

		eg.Go(func() error {
			log.Infof("Testing %s", res.Recipe.Name())

			pctx := ctx
			if !logStdout {
				logf, err := cfg.packageLogFile(res)
				if err != nil {
					return fmt.Errorf("creating log file: %w", err)
				}
				defer logf.Close()

				pctx = clog.WithLogger(pctx,
					clog.New(slog.NewTextHandler(logf, nil)),
				)
			}

			if err := testPackage(pctx, cfg, res); err != nil {
				log.Errorf("Testing package: %s: %q", res.Recipe.Name(), err)
				failures.add(res.Recipe.Name())
			}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	log.Info("Finished testing packages")

	if failures.count > 0 {
		log.Fatalf("failed to test %d packages", failures.count)
	}

	return nil
}

func testPackage(ctx context.Context, cfg *testConfig, res *render.Resolved) error {
	ctx, span := otel.Tracer("condactl").Start(ctx, res.Recipe.Name())
	defer span.End()

	opts := []build.Option{
		build.WithOutDir(cfg.outDir),
		build.WithRecipeDir(filepath.Join(cfg.dir, "recipes", res.Dir)),
	}
	if cfg.cacheDir != "" {
		opts = append(opts, build.WithCacheDir(cfg.cacheDir))
	}

	tc, err := build.New(ctx, res, opts...)
	if err != nil {
		return fmt.Errorf("creating tester: %w", err)
	}

	return tc.Test(ctx)
}

func (c *testConfig) getPackages(ctx context.Context) (*dag.Graph, error) {
	ctx, span := otel.Tracer("condactl").Start(ctx, "getPackages")
	defer span.End()

	// We want to ignore info level here during setup, but further down below we pull whatever was passed to use via ctx.
	log := clog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{ReportTimestamp: true, Level: charmlog.WarnLevel}))
	ctx = clog.WithLogger(ctx, log)

	g, err := dag.NewGraph(ctx, os.DirFS(filepath.Join(c.dir, "recipes")))
	if err != nil {
		return nil, fmt.Errorf("parsing recipes: %w", err)
	}

	return g, nil
}

func (c *testConfig) logDir() string {
	return filepath.Join(c.outDir, "testlogs")
}

func (c *testConfig) packageLogFile(res *render.Resolved) (io.WriteCloser, error) {
	logDir := c.logDir()

	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	filePath := filepath.Join(logDir, fmt.Sprintf("%s-%s.test.log", res.Recipe.Name(), res.Recipe.FullVersion()))

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}

	return f, nil
}

type testFailures struct {
	mu       sync.Mutex
	failures []string
	count    int
}

func (t *testFailures) add(fail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	t.failures = append(t.failures, fail)
}
