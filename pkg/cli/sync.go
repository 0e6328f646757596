// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/afero"

	"github.com/abcxyz/directory-sync/pkg/config"
	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
)

var (
	_ cli.Command = (*SyncRunCommand)(nil)
	_ cli.Command = (*SyncDirectoryCommand)(nil)
)

type SyncRunCommand struct {
	cli.BaseCommand

	cfg  config.Config
	once bool

	// testFS overrides the file system in tests.
	testFS afero.Fs
}

func (c *SyncRunCommand) Desc() string {
	return `Reconcile the memberships of every directory`
}

func (c *SyncRunCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]

  Poll every directory of the manifest, diff group memberships against the
  stored snapshot and dispatch the changes. Runs a pass every interval until
  interrupted, or a single pass with -once.

  Sync every directory every 5 minutes, forwarding to a SCIM API:

  dsyncctl sync run \
	-manifest directories.yaml \
	-interval 5m \
	-handler scim \
	-scim-forward-url https://app.example.com/scim/v2
`
}

func (c *SyncRunCommand) Flags() *cli.FlagSet {
	set := c.NewFlagSet()
	c.cfg.RegisterFlags(set)

	f := set.NewSection("COMMAND OPTIONS")
	f.BoolVar(&cli.BoolVar{
		Name:    "once",
		Target:  &c.once,
		Default: false,
		Usage:   `Run a single pass and exit. The exit status reflects failed directories.`,
	})
	return set
}

func (c *SyncRunCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}

	e, err := newEngine(ctx, &c.cfg, fileSystem(c.testFS))
	if err != nil {
		return err
	}
	defer e.Close()

	scheduler := dirsync.NewScheduler(e.reconciler, c.cfg.Interval)
	if c.once {
		if err := scheduler.RunOnce(ctx); err != nil {
			return err //nolint:wrapcheck // Want passthrough
		}
		dirs, _ := e.registry.Directories(ctx)
		c.Outf("reconciled %d directories", len(dirs))
		return nil
	}

	var stopMetrics func() error
	if c.cfg.MetricsAddr != "" {
		stopMetrics = serveMetrics(ctx, c.cfg.MetricsAddr, e.metrics.Handler())
	}

	runErr := scheduler.Run(ctx)
	if stopMetrics != nil {
		runErr = errors.Join(runErr, stopMetrics())
	}
	return runErr
}

type SyncDirectoryCommand struct {
	cli.BaseCommand

	cfg         config.Config
	directoryID string

	testFS afero.Fs
}

func (c *SyncDirectoryCommand) Desc() string {
	return `Reconcile the memberships of one directory`
}

func (c *SyncDirectoryCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]

  Run a single reconciliation of the directory with the given ID.

  dsyncctl sync directory -manifest directories.yaml -id dir_123
`
}

func (c *SyncDirectoryCommand) Flags() *cli.FlagSet {
	set := c.NewFlagSet()
	c.cfg.RegisterFlags(set)

	f := set.NewSection("COMMAND OPTIONS")
	f.StringVar(&cli.StringVar{
		Name:    "id",
		Target:  &c.directoryID,
		Example: "dir_123",
		Usage:   `ID of the directory to reconcile.`,
	})

	set.AfterParse(func(merr error) error {
		if c.directoryID == "" {
			return fmt.Errorf("-id is required")
		}
		return nil
	})
	return set
}

func (c *SyncDirectoryCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}

	e, err := newEngine(ctx, &c.cfg, fileSystem(c.testFS))
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.reconciler.ReconcileDirectory(ctx, c.directoryID); err != nil {
		return err //nolint:wrapcheck // Want passthrough
	}
	c.Outf("reconciled directory %s", c.directoryID)
	return nil
}

// serveMetrics serves handler on addr until the returned stop function is
// called.
func serveMetrics(ctx context.Context, addr string, handler http.Handler) func() error {
	logger := logging.FromContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.InfoContext(ctx, "serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "metrics server failed", "error", err)
		}
	}()

	return func() error {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop metrics server: %w", err)
		}
		return nil
	}
}

func fileSystem(fs afero.Fs) afero.Fs {
	if fs != nil {
		return fs
	}
	return afero.NewOsFs()
}
