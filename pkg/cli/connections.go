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
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/abcxyz/directory-sync/pkg/bootstrap"
	"github.com/abcxyz/pkg/cli"
)

var _ cli.Command = (*ConnectionsValidateCommand)(nil)

type ConnectionsValidateCommand struct {
	cli.BaseCommand

	dir   string
	watch bool

	testFS afero.Fs
}

func (c *ConnectionsValidateCommand) Desc() string {
	return `Validate static connection definitions`
}

func (c *ConnectionsValidateCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]

  Load every connection definition of a directory and report the invalid
  ones. SAML definitions need a metadata file with the same base name and
  the .xml extension.

  dsyncctl connections validate -dir ./connections

  With -watch the definitions are validated again on every change until
  interrupted.
`
}

func (c *ConnectionsValidateCommand) Flags() *cli.FlagSet {
	set := c.NewFlagSet()

	f := set.NewSection("COMMAND OPTIONS")
	f.StringVar(&cli.StringVar{
		Name:    "dir",
		Target:  &c.dir,
		EnvVar:  "DIRSYNC_CONNECTIONS_DIR",
		Example: "./connections",
		Usage:   `Directory holding the connection definitions.`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:    "watch",
		Target:  &c.watch,
		Default: false,
		Usage:   `Keep validating the definitions whenever the directory changes.`,
	})

	set.AfterParse(func(merr error) error {
		if c.dir == "" {
			return fmt.Errorf("-dir is required")
		}
		return nil
	})
	return set
}

func (c *ConnectionsValidateCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}

	loader := &bootstrap.Loader{Fs: fileSystem(c.testFS), Getwd: os.Getwd}
	if c.watch {
		w := bootstrap.NewWatcher(loader, c.dir, bootstrap.DefaultDebounce,
			func(ctx context.Context, connections []*bootstrap.Connection, err error) {
				c.report(connections)
				if err != nil {
					c.Errf("invalid connection definitions: %s", err)
				}
			})
		return w.Run(ctx) //nolint:wrapcheck // Want passthrough
	}

	connections, err := loader.Load(c.dir)
	c.report(connections)
	if err != nil {
		return fmt.Errorf("invalid connection definitions: %w", err)
	}
	return nil
}

func (c *ConnectionsValidateCommand) report(connections []*bootstrap.Connection) {
	for _, conn := range connections {
		kind := "saml"
		if conn.IsOIDC() {
			kind = "oidc"
		}
		c.Outf("%s\t%s\t%s/%s", conn.Source, kind, conn.Tenant, conn.Product)
	}
}
