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

// Package log thinly wraps k8s.io/klog/v2 the way Antrea's
// controllers call it directly (klog.InfoS, klog.V(n), klog.ErrorS),
// adding only a TaskLogger that binds the phoneId key-value pair once
// per enforcement task instead of repeating it at every call site.
package log

import (
	"flag"

	"k8s.io/klog/v2"
)

// SetLevel maps one of DEBUG/INFO/WARN/ERROR onto klog's -v verbosity.
// klog has no native WARN/ERROR verbosity split (those always print),
// so this only controls how much of the DEBUG/INFO chatter surfaces.
func SetLevel(level string) {
	v := "0"
	switch level {
	case "DEBUG":
		v = "3"
	case "INFO":
		v = "1"
	}
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	_ = fs.Set("v", v)
}

// TaskLogger binds phoneId once so call sites don't repeat it.
type TaskLogger struct {
	phoneID string
}

// ForPhone returns a TaskLogger bound to phoneID.
func ForPhone(phoneID string) TaskLogger {
	return TaskLogger{phoneID: phoneID}
}

// Info logs at V(0) with phoneId plus the given key-value pairs.
func (l TaskLogger) Info(msg string, keysAndValues ...interface{}) {
	klog.InfoS(msg, append([]interface{}{"phoneId", l.phoneID}, keysAndValues...)...)
}

// V logs at a verbosity level with phoneId bound.
func (l TaskLogger) V(level klog.Level, msg string, keysAndValues ...interface{}) {
	klog.V(level).InfoS(msg, append([]interface{}{"phoneId", l.phoneID}, keysAndValues...)...)
}

// Error logs err with phoneId plus the given key-value pairs.
func (l TaskLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	klog.ErrorS(err, msg, append([]interface{}{"phoneId", l.phoneID}, keysAndValues...)...)
}
