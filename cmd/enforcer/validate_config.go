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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netshield/enforcer/pkg/config"
)

func newValidateConfigCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the enforcer configuration without starting the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return wrapConfigError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config at %s is valid\n", *configPath)
			fmt.Fprintf(cmd.OutOrStdout(), "eventSource.addr=%s topic=%s consumerGroup=%s\n",
				cfg.EventSource.Addr, cfg.EventSource.Topic, cfg.EventSource.ConsumerGroup)
			fmt.Fprintf(cmd.OutOrStdout(), "facade.url=%s dispatch.workers=%d index.shards=%d\n",
				cfg.Facade.URL, cfg.Dispatch.Workers, cfg.Index.Shards)
			return nil
		},
	}
}
