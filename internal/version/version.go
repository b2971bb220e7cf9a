/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build identity.
package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Version and Commit are set at build time via ldflags:
//
//	-X github.com/friendsincode/cadence/internal/version.Version=X.Y.Z
var (
	Version = "0.1.0-dev"
	Commit  = ""
)

// String renders the version line printed by `cadence version`.
func String() string {
	s := "cadence " + Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return fmt.Sprintf("%s %s/%s %s", s, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// Release is the identifier reported to Sentry and tracing.
func Release() string {
	if Commit == "" {
		return "cadence@" + Version
	}
	return "cadence@" + Version + "+" + Commit
}

// Compare compares two semver strings, ignoring pre-release suffixes.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func Compare(a, b string) int {
	pa, pb := parse(a), parse(b)
	for i := range pa {
		switch {
		case pa[i] < pb[i]:
			return -1
		case pa[i] > pb[i]:
			return 1
		}
	}
	return 0
}

func parse(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	if core, _, ok := strings.Cut(v, "-"); ok {
		v = core
	}
	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		out[i], _ = strconv.Atoi(part)
	}
	return out
}
