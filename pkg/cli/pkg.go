package cli

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-version"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/conda-tools/condactl/pkg/index"
)

func cmdPkg() *cobra.Command {
	cmd := &cobra.Command{Use: "pkg"}
	cmd.AddCommand(cmdCp())
	return cmd
}

func cmdCp() *cobra.Command {
	var latest bool
	var indexURL, outDir, gcsPath string
	cmd := &cobra.Command{
		Use:          "cp package [package...]",
		Aliases:      []string{"copy"},
		Short:        "Copy packages from a remote channel into a local one",
		SilenceUsage: true,
		Args:         cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			errg, ctx := errgroup.WithContext(cmd.Context())

			repoURL := strings.TrimSuffix(indexURL, "/"+index.Filename)

			repodata, err := index.Fetch(ctx, indexURL)
			if err != nil {
				return fmt.Errorf("fetching %q: %w", indexURL, err)
			}

			subdir := repodata.Info.Subdir
			if subdir == "" {
				subdir = repoURL[strings.LastIndex(repoURL, "/")+1:]
			}

			wantSet := map[string]struct{}{}
			for _, p := range args {
				wantSet[p] = struct{}{}
			}
			packages := map[string]index.PackageRecord{}
			for fn, rec := range repodata.Packages {
				if _, ok := wantSet[rec.Name]; !ok {
					continue
				}
				packages[fn] = rec
			}

			if latest {
				packages = onlyLatest(packages)
			}

			if len(packages) == 0 {
				return fmt.Errorf("no packages found")
			}

			log.Printf("downloading %d packages for %s", len(packages), subdir)

			var bucket, bucketPath string
			var client *storage.Client
			if gcsPath != "" {
				bucket, bucketPath, _ = strings.Cut(strings.TrimPrefix(gcsPath, "gs://"), "/")
				client, err = storage.NewClient(ctx)
				if err != nil {
					return err
				}
			}

			if err := os.MkdirAll(filepath.Join(outDir, subdir), 0o755); err != nil {
				return err
			}

			for fn := range packages {
				errg.Go(func() error {
					dst := filepath.Join(outDir, subdir, fn)
					if _, err := os.Stat(dst); err == nil {
						log.Printf("skipping %s: already exists", dst)
						return nil
					}

					var rc io.ReadCloser
					if client == nil {
						url := fmt.Sprintf("%s/%s", repoURL, fn)
						log.Println("downloading", url)
						req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
						if err != nil {
							return err
						}
						resp, err := http.DefaultClient.Do(req)
						if err != nil {
							return err
						}
						defer resp.Body.Close()
						if resp.StatusCode >= 400 {
							return fmt.Errorf("GET %q: status %d", url, resp.StatusCode)
						}
						rc = resp.Body
					} else {
						fullPath := path.Join(bucketPath, subdir, fn)
						log.Printf("downloading gs://%s/%s", bucket, fullPath)
						r, err := client.Bucket(bucket).Object(fullPath).NewReader(ctx)
						if err != nil {
							return err
						}
						defer r.Close()
						rc = r
					}

					f, err := os.Create(dst)
					if err != nil {
						return err
					}
					defer f.Close()
					n, err := io.Copy(f, rc)
					if err != nil {
						return err
					}
					log.Printf("wrote %s (%s)", dst, humanize.Bytes(uint64(n)))
					return nil
				})
			}

			if err := errg.Wait(); err != nil {
				return err
			}

			// Reindex everything currently in the outDir, not just what this
			// run copied.
			repodata, err = index.Subdir(ctx, outDir, subdir)
			if err != nil {
				return err
			}
			fn := filepath.Join(outDir, subdir, index.Filename)
			log.Printf("writing index: %s (%d total packages)", fn, len(repodata.Packages))
			return index.Write(repodata, fn)
		},
	}
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "./packages", "directory to copy packages to")
	cmd.Flags().StringVarP(&indexURL, "index", "i", "https://conda.anaconda.org/conda-forge/noarch/repodata.json", "repodata.json URL")
	cmd.Flags().BoolVar(&latest, "latest", true, "copy only the latest version of each package")
	cmd.Flags().StringVar(&gcsPath, "gcs", "", "copy objects from a GCS bucket")
	return cmd
}

func onlyLatest(packages map[string]index.PackageRecord) map[string]index.PackageRecord {
	// highest version seen per package name, keyed by filename
	highest := map[string]string{}

	for fn, rec := range packages {
		got, err := version.NewVersion(rec.Version)
		if err != nil {
			log.Printf("parsing %q: %v", fn, err)
			continue
		}

		haveFn, ok := highest[rec.Name]
		if !ok {
			highest[rec.Name] = fn
			continue
		}

		have, err := version.NewVersion(packages[haveFn].Version)
		if err != nil {
			log.Printf("parsing %q: %v", haveFn, err)
			continue
		}

		if got.GreaterThan(have) {
			highest[rec.Name] = fn
		}
	}

	out := make(map[string]index.PackageRecord, len(highest))
	for _, fn := range maps.Values(highest) {
		out[fn] = packages[fn]
	}
	return out
}
