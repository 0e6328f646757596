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

// Package config holds the runtime configuration of the sync engine.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/abcxyz/directory-sync/pkg/github"
	"github.com/abcxyz/directory-sync/pkg/gitlab"
	"github.com/abcxyz/directory-sync/pkg/googlegroups"
	"github.com/abcxyz/directory-sync/pkg/store"
	"github.com/abcxyz/pkg/cli"
)

const (
	HandlerWebhook = "webhook"
	HandlerSCIM    = "scim"

	DefaultInterval        = 10 * time.Minute
	DefaultEmptyThreshold  = 3
	DefaultFetchTimeout    = time.Minute
	DefaultDispatchTimeout = 30 * time.Second
	DefaultWorkers         = 4
)

var allowedHandlers = []string{HandlerWebhook, HandlerSCIM}

// Config is the configuration of a sync engine process.
type Config struct {
	ManifestPath string
	Tenant       string
	Product      string

	Interval         time.Duration
	DirectoryWorkers int
	GroupWorkers     int
	FetchTimeout     time.Duration
	DispatchTimeout  time.Duration
	EmptyThreshold   int
	ProviderRPS      float64
	ProviderBurst    int

	StoreDriver string
	StoreDSN    string

	Handler        string
	SCIMForwardURL string

	AuditTarget string
	MetricsAddr string

	GitHub github.ClientConfig
	GitLab gitlab.ClientConfig
	Google googlegroups.ClientConfig
}

// RegisterFlags registers the engine flags and the provider flags on set.
func (c *Config) RegisterFlags(set *cli.FlagSet) {
	f := set.NewSection("SYNC OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "manifest",
		Aliases: []string{"m"},
		EnvVar:  "DIRSYNC_MANIFEST",
		Target:  &c.ManifestPath,
		Example: "directories.yaml",
		Usage:   `Path to the YAML manifest listing the directories to sync.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "tenant",
		EnvVar:  "DIRSYNC_TENANT",
		Target:  &c.Tenant,
		Example: "acme",
		Usage:   `Only sync the directories of this tenant. All tenants when empty.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "product",
		EnvVar:  "DIRSYNC_PRODUCT",
		Target:  &c.Product,
		Example: "portal",
		Usage:   `Only sync the directories of this product. All products when empty.`,
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "interval",
		EnvVar:  "DIRSYNC_INTERVAL",
		Target:  &c.Interval,
		Default: DefaultInterval,
		Usage:   `Time between the starts of two reconciliation passes.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "directory-workers",
		EnvVar:  "DIRSYNC_DIRECTORY_WORKERS",
		Target:  &c.DirectoryWorkers,
		Default: DefaultWorkers,
		Usage:   `Maximum number of directories reconciled concurrently.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "group-workers",
		EnvVar:  "DIRSYNC_GROUP_WORKERS",
		Target:  &c.GroupWorkers,
		Default: DefaultWorkers,
		Usage:   `Maximum number of groups reconciled concurrently within a directory.`,
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "fetch-timeout",
		EnvVar:  "DIRSYNC_FETCH_TIMEOUT",
		Target:  &c.FetchTimeout,
		Default: DefaultFetchTimeout,
		Usage:   `Bound of each provider call. Zero disables the bound.`,
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "dispatch-timeout",
		EnvVar:  "DIRSYNC_DISPATCH_TIMEOUT",
		Target:  &c.DispatchTimeout,
		Default: DefaultDispatchTimeout,
		Usage:   `Bound of each dispatched change request. Zero disables the bound.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "empty-threshold",
		EnvVar:  "DIRSYNC_EMPTY_THRESHOLD",
		Target:  &c.EmptyThreshold,
		Default: DefaultEmptyThreshold,
		Usage: `Number of consecutive empty provider results after which an empty ` +
			`result is trusted. Zero or less never trusts an empty result.`,
	})

	f.Float64Var(&cli.Float64Var{
		Name:   "provider-rps",
		EnvVar: "DIRSYNC_PROVIDER_RPS",
		Target: &c.ProviderRPS,
		Usage:  `Maximum provider calls per second per directory type. Zero disables limiting.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "provider-burst",
		EnvVar:  "DIRSYNC_PROVIDER_BURST",
		Target:  &c.ProviderBurst,
		Default: 1,
		Usage:   `Burst of provider calls admitted by the rate limit.`,
	})

	f = set.NewSection("STORE OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "store-driver",
		EnvVar:  "DIRSYNC_STORE_DRIVER",
		Target:  &c.StoreDriver,
		Example: "sqlite3",
		Usage: fmt.Sprintf(`Membership store driver, one of %q or %q. `+
			`Memberships are kept in memory when empty.`, store.DriverSQLite, store.DriverPostgres),
	})

	f.StringVar(&cli.StringVar{
		Name:    "store-dsn",
		EnvVar:  "DIRSYNC_STORE_DSN",
		Target:  &c.StoreDSN,
		Example: "file:dirsync.db",
		Usage:   `Data source name of the membership store.`,
	})

	f = set.NewSection("DISPATCH OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "handler",
		EnvVar:  "DIRSYNC_HANDLER",
		Target:  &c.Handler,
		Default: HandlerWebhook,
		Usage:   fmt.Sprintf(`Request handler applying change requests, one of %q.`, allowedHandlers),
	})

	f.StringVar(&cli.StringVar{
		Name:    "scim-forward-url",
		EnvVar:  "DIRSYNC_SCIM_FORWARD_URL",
		Target:  &c.SCIMForwardURL,
		Example: "https://app.example.com/scim/v2",
		Usage:   `Base URL of the SCIM API change requests are forwarded to with -handler=scim.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "audit-target",
		EnvVar:  "DIRSYNC_AUDIT_TARGET",
		Target:  &c.AuditTarget,
		Example: "https://events.example.com",
		Usage:   `HTTP endpoint receiving every dispatch attempt as a CloudEvent.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "metrics-addr",
		EnvVar:  "DIRSYNC_METRICS_ADDR",
		Target:  &c.MetricsAddr,
		Example: ":9090",
		Usage:   `Address serving Prometheus metrics on /metrics. Disabled when empty.`,
	})

	c.GitHub.RegisterFlags(set)
	c.GitLab.RegisterFlags(set)
	c.Google.RegisterFlags(set)

	set.AfterParse(func(merr error) error {
		return c.Validate()
	})
}

// Validate reports invalid combinations of values.
func (c *Config) Validate() error {
	var merr error
	if c.ManifestPath == "" {
		merr = errors.Join(merr, fmt.Errorf("-manifest is required"))
	}
	if c.Interval <= 0 {
		merr = errors.Join(merr, fmt.Errorf("-interval must be positive, got %s", c.Interval))
	}
	if c.FetchTimeout < 0 || c.DispatchTimeout < 0 {
		merr = errors.Join(merr, fmt.Errorf("timeouts must not be negative"))
	}
	if c.ProviderRPS < 0 {
		merr = errors.Join(merr, fmt.Errorf("-provider-rps must not be negative"))
	}
	if !slices.Contains(allowedHandlers, c.Handler) {
		merr = errors.Join(merr, fmt.Errorf("-handler %q not in allowed list: %q", c.Handler, allowedHandlers))
	}
	if c.Handler == HandlerSCIM && c.SCIMForwardURL == "" {
		merr = errors.Join(merr, fmt.Errorf("-scim-forward-url is required with -handler=%s", HandlerSCIM))
	}
	if c.StoreDriver != "" && c.StoreDSN == "" {
		merr = errors.Join(merr, fmt.Errorf("-store-dsn is required with -store-driver"))
	}
	return merr
}
