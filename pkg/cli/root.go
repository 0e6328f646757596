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

// Package cli implements the dsyncctl commands.
package cli

import (
	"github.com/abcxyz/pkg/cli"
)

// Version is the version of the binary. It is set at build time.
var Version = "devel"

// RootCmd returns the dsyncctl root command.
func RootCmd() cli.Command {
	return &cli.RootCommand{
		Name:    "dsyncctl",
		Version: Version,
		Commands: map[string]cli.CommandFactory{
			"sync": func() cli.Command {
				return &cli.RootCommand{
					Name:        "sync",
					Description: "Reconcile directory group memberships",
					Commands: map[string]cli.CommandFactory{
						"run": func() cli.Command {
							return &SyncRunCommand{}
						},
						"directory": func() cli.Command {
							return &SyncDirectoryCommand{}
						},
					},
				}
			},
			"connections": func() cli.Command {
				return &cli.RootCommand{
					Name:        "connections",
					Description: "Manage static SSO connection definitions",
					Commands: map[string]cli.CommandFactory{
						"validate": func() cli.Command {
							return &ConnectionsValidateCommand{}
						},
					},
				}
			},
		},
	}
}
