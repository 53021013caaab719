package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"

	"github.com/conda-tools/condactl/pkg/build"
	"github.com/conda-tools/condactl/pkg/dag"
	"github.com/conda-tools/condactl/pkg/index"
	"github.com/conda-tools/condactl/pkg/render"
)

func cmdBuild() *cobra.Command {
	var dir, outDir, cacheDir, cacheSource string
	var jobs int
	var dryrun, force, keepWorkDir, noTest, generateIndex bool

	cmd := &cobra.Command{
		Use:           "build [package...]",
		Short:         "Build recipes into package artifacts, in dependency order",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := clog.FromContext(ctx)

			if jobs == 0 {
				jobs = runtime.GOMAXPROCS(0)
			}
			jobch := make(chan struct{}, jobs)

			if outDir == "" {
				outDir = filepath.Join(dir, "output")
			}

			g, err := dag.NewGraph(ctx, os.DirFS(filepath.Join(dir, "recipes")))
			if err != nil {
				return err
			}

			// Only build the named packages and what they depend on.
			if len(args) > 0 {
				g, err = g.SubgraphWithRoots(args)
				if err != nil {
					return err
				}
			}

			newTask := func(ctx context.Context, pkg string) *task {
				// Dependents watch ctx.Done() to learn this task finished.
				ctx, cancel := context.WithCancel(ctx)
				return &task{
					pkg:         pkg,
					res:         g.Resolved(pkg),
					dir:         dir,
					outDir:      outDir,
					cacheDir:    cacheDir,
					cacheSource: cacheSource,
					dryrun:      dryrun,
					force:       force,
					keepWorkDir: keepWorkDir,
					noTest:      noTest,
					ctx:         ctx,
					cancel:      cancel,
					deps:        map[string]<-chan struct{}{},
					jobch:       jobch,
				}
			}

			tasks := map[string]*task{}
			for _, pkg := range g.Nodes() {
				log := clog.New(log.Handler()).With("package", pkg)
				ctx := clog.WithLogger(ctx, log)
				tasks[pkg] = newTask(ctx, pkg)
			}
			for _, pkg := range g.Nodes() {
				for _, dep := range g.DependenciesOf(pkg) {
					tasks[pkg].deps[dep] = tasks[dep].ctx.Done()
				}
			}

			if len(tasks) == 0 {
				return fmt.Errorf("no packages to build")
			}

			for _, t := range tasks {
				go t.start(ctx)
			}
			count := len(tasks)

			for _, t := range tasks {
				if err := t.wait(ctx); err != nil {
					return fmt.Errorf("failed to build %s: %w", t.pkg, err)
				}
				delete(tasks, t.pkg)
				log.Infof("Finished building %s (%d/%d)", t.pkg, count-len(tasks), count)
			}

			if generateIndex && !dryrun {
				if err := index.WriteChannel(ctx, outDir); err != nil {
					return fmt.Errorf("indexing channel %s: %w", outDir, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory containing the recipe repository")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "directory to place built packages in (default is <dir>/output)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "directory used to cache downloaded source distributions")
	cmd.Flags().StringVar(&cacheSource, "cache-source", "", "gs:// mirror checked for source archives before the upstream URL")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "number of jobs to run concurrently (default is GOMAXPROCS)")
	cmd.Flags().BoolVar(&dryrun, "dry-run", false, "print what would be built instead of building it")
	cmd.Flags().BoolVar(&force, "force", false, "rebuild packages whose artifacts already exist")
	cmd.Flags().BoolVar(&keepWorkDir, "keep-workdir", false, "leave the scratch directory behind for debugging")
	cmd.Flags().BoolVar(&noTest, "no-test", false, "skip the post-build smoke tests")
	cmd.Flags().BoolVar(&generateIndex, "generate-index", true, "write repodata.json for the channel after building")
	return cmd
}

type task struct {
	pkg, dir, outDir, cacheDir, cacheSource string
	dryrun, force, keepWorkDir, noTest      bool
	res                                     *render.Resolved

	err    error
	deps   map[string]<-chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	jobch  chan struct{}
}

func (t *task) start(ctx context.Context) {
	log := clog.FromContext(t.ctx)
	log.Infof("task %q waiting on %q", t.pkg, maps.Keys(t.deps))

	defer t.cancel() // signal that we're done, one way or another.

	tick := time.NewTicker(30 * time.Second)
	defer tick.Stop()
	for depname, dep := range t.deps {
		for done := false; !done; {
			select {
			case <-tick.C:
				log.Debugf("task %q waiting on: %s", t.pkg, maps.Keys(t.deps))
			case <-dep:
				// this dep is done.
				delete(t.deps, depname)
				done = true
			case <-ctx.Done():
				return // cancelled or failed
			}
		}
	}

	// Block on jobch, to limit concurrency. Remove from jobch when done.
	t.jobch <- struct{}{}
	defer func() { <-t.jobch }()

	// all deps are done and we're clear to launch.
	t.err = t.do(t.ctx)
}

func (t *task) do(ctx context.Context) error {
	opts := []build.Option{
		build.WithOutDir(t.outDir),
		build.WithRecipeDir(filepath.Join(t.dir, "recipes", t.res.Dir)),
		build.WithCacheSource(t.cacheSource),
		build.WithDryRun(t.dryrun),
		build.WithForce(t.force),
		build.WithKeepWorkDir(t.keepWorkDir),
		build.WithNoTest(t.noTest),
	}
	if t.cacheDir != "" {
		opts = append(opts, build.WithCacheDir(t.cacheDir))
	}

	bc, err := build.New(ctx, t.res, opts...)
	if err != nil {
		return err
	}
	return bc.BuildPackage(ctx)
}

func (t *task) wait(ctx context.Context) error {
	select {
	case <-t.ctx.Done(): // This task completed.
		return t.err
	case <-ctx.Done(): // The parent context was cancelled.
		return ctx.Err()
	}
}
