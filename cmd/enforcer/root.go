// Copyright 2026 NetShield Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// Exit codes: 0 clean shutdown, 1 startup/fatal failure, 2
// configuration error.
const (
	exitOK   = 0
	exitFail = 1
	exitConfig = 2
)

// configError marks an error that should exit with exitConfig instead
// of exitFail.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func wrapConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *configError
	if errors.As(err, &ce) {
		return exitConfig
	}
	return exitFail
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "enforcer",
		Short:         "Consume session events and enforce parental-control firewall policy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "enforcer.yaml", "path to the enforcer configuration file")

	root.AddCommand(newRunCommand(&configPath))
	root.AddCommand(newValidateConfigCommand(&configPath))
	root.AddCommand(newVersionCommand())
	return root
}
