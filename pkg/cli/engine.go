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

	"github.com/spf13/afero"

	"github.com/abcxyz/directory-sync/pkg/audit"
	"github.com/abcxyz/directory-sync/pkg/config"
	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/directory-sync/pkg/github"
	"github.com/abcxyz/directory-sync/pkg/gitlab"
	"github.com/abcxyz/directory-sync/pkg/googlegroups"
	"github.com/abcxyz/directory-sync/pkg/metrics"
	"github.com/abcxyz/directory-sync/pkg/registry"
	"github.com/abcxyz/directory-sync/pkg/scim"
	"github.com/abcxyz/directory-sync/pkg/store"
	"github.com/abcxyz/directory-sync/pkg/webhook"
	"github.com/abcxyz/pkg/logging"
)

// engine is the wired sync engine of one process.
type engine struct {
	registry   dirsync.Registry
	reconciler *dirsync.Reconciler
	metrics    *metrics.Observer
	closers    []func() error
}

// newEngine builds the engine described by cfg. Files are read from fs.
func newEngine(ctx context.Context, cfg *config.Config, fs afero.Fs) (_ *engine, retErr error) {
	logger := logging.FromContext(ctx)
	e := &engine{metrics: metrics.NewObserver()}
	defer func() {
		if retErr != nil {
			retErr = errors.Join(retErr, e.Close())
		}
	}()

	reg, err := registry.LoadManifest(fs, cfg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load directories: %w", err)
	}
	e.registry = reg
	if cfg.Tenant != "" || cfg.Product != "" {
		e.registry = reg.Scope(cfg.Tenant, cfg.Product)
		logger.InfoContext(ctx, "scoped directories",
			"tenant", cfg.Tenant,
			"product", cfg.Product)
	}

	adapters, err := newAdapters(ctx, cfg, fs)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "registered provider adapters", "types", adapters.Types())

	var membershipStore dirsync.MembershipStore = store.NewMemoryStore()
	if cfg.StoreDriver != "" {
		sqlStore, err := store.Open(cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open membership store: %w", err)
		}
		e.closers = append(e.closers, sqlStore.Close)
		if err := sqlStore.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to create membership store schema: %w", err)
		}
		membershipStore = sqlStore
	}

	handler, err := newRequestHandler(cfg, e.registry)
	if err != nil {
		return nil, err
	}

	callbacks := []dirsync.EventCallback{audit.LogCallback}
	if cfg.AuditTarget != "" {
		ce, err := audit.NewHTTPCloudEventsCallback(cfg.AuditTarget, audit.DefaultSource)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit callback: %w", err)
		}
		callbacks = append(callbacks, ce.Callback)
	}

	e.reconciler = dirsync.NewReconciler(&dirsync.ReconcilerParams{
		Registry:         e.registry,
		Adapters:         adapters,
		Store:            membershipStore,
		Dispatcher:       dirsync.NewDispatcher(handler, audit.Multi(callbacks...), dirsync.WithDispatchTimeout(cfg.DispatchTimeout)),
		Observer:         dirsync.MultiObserver{dirsync.LogObserver{}, e.metrics},
		EmptyPolicy:      dirsync.NewEmptyPolicy(cfg.EmptyThreshold),
		DirectoryWorkers: cfg.DirectoryWorkers,
		GroupWorkers:     cfg.GroupWorkers,
		FetchTimeout:     cfg.FetchTimeout,
	})
	return e, nil
}

// Close releases the resources of the engine.
func (e *engine) Close() error {
	var merr error
	for _, c := range e.closers {
		merr = errors.Join(merr, c())
	}
	e.closers = nil
	return merr
}

func newAdapters(ctx context.Context, cfg *config.Config, fs afero.Fs) (*dirsync.AdapterRegistry, error) {
	adapters := dirsync.NewAdapterRegistry()
	register := func(directoryType string, adapter dirsync.ProviderAdapter) {
		adapters.Register(directoryType, dirsync.NewRateLimitedAdapter(adapter, cfg.ProviderRPS, cfg.ProviderBurst))
	}

	register(scim.DirectoryType, scim.NewAdapter(http.DefaultClient))

	google, err := googlegroups.NewAdapterFromConfig(fs, &cfg.Google)
	if err != nil {
		return nil, fmt.Errorf("failed to create google adapter: %w", err)
	}
	register(googlegroups.DirectoryType, google)

	if cfg.GitLab.Enabled() {
		register(gitlab.DirectoryType, gitlab.NewAdapterFromConfig(&cfg.GitLab))
	}
	if cfg.GitHub.Enabled() {
		gh, err := github.NewAdapterFromConfig(ctx, &cfg.GitHub)
		if err != nil {
			return nil, fmt.Errorf("failed to create github adapter: %w", err)
		}
		register(github.DirectoryType, gh)
	}
	return adapters, nil
}

func newRequestHandler(cfg *config.Config, reg dirsync.Registry) (dirsync.RequestHandler, error) {
	switch cfg.Handler {
	case config.HandlerSCIM:
		forwarder, err := scim.NewForwarder(http.DefaultClient, cfg.SCIMForwardURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create scim forwarder: %w", err)
		}
		return forwarder, nil
	case config.HandlerWebhook, "":
		return webhook.NewHandler(reg), nil
	default:
		return nil, fmt.Errorf("unknown request handler %q", cfg.Handler)
	}
}
