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

// Command enforcer runs the parental-control firewall enforcement
// pipeline: it consumes session lifecycle events, resolves the active
// policy for each subscriber, and drives the remote rule facade to
// install, migrate, and remove firewall rules.
package main

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	err := newRootCommand().Execute()
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
