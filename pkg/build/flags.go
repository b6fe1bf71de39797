// SPDX-License-Identifier: MIT
//
// Package build exposes the build metadata embedded into the partialsynth
// binary at link time. Name, timestamp, commit and version are injected with
// linker flags, for example:
//
//	go build -ldflags "-X partialsynth/pkg/build.buildName=partialsynth \
//	  -X partialsynth/pkg/build.buildVersion=0.3.0"
//
// Development builds run without the flags; the missing fields keep their
// "dev" placeholder and Initialize reports which ones were absent.
package build

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncomplete is returned by Initialize when one or more linker flags were
// not provided.
var ErrIncomplete = errors.New("build information incomplete")

const description = "Real-time spectral partial analysis and wavetable resynthesis"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables for build information. These are populated by
// -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:        "partialsynth",
		Description: description,
		Time:        "dev",
		Commit:      "dev",
		Version:     "dev",
	}
}

// Initialize copies the linker-provided values into the build information.
// Every provided value is applied even when others are missing; the returned
// error wraps ErrIncomplete and names the missing flags.
func Initialize() error {
	var missing []string
	apply := func(dst *string, src, name string) {
		if src == "" {
			missing = append(missing, name)
			return
		}
		*dst = src
	}

	apply(&buildFlags.Name, buildName, "BuildName")
	apply(&buildFlags.Time, buildTime, "BuildTime")
	apply(&buildFlags.Commit, buildCommit, "BuildCommit")
	apply(&buildFlags.Version, buildVersion, "BuildVersion")

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
