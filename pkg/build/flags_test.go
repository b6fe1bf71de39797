// SPDX-License-Identifier: MIT
package build

import (
	"errors"
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	if buildFlags != nil {
		origFlags = *buildFlags
	}

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	if buildFlags != nil {
		*buildFlags = origFlags
	}

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantMissing string
	}{
		{"Missing BuildName", "", "2025-04-13", "abcdef123", "v1.0.0", "BuildName"},
		{"Missing BuildTime", "testapp", "", "abcdef123", "v1.0.0", "BuildTime"},
		{"Missing BuildCommit", "testapp", "2025-04-13", "", "v1.0.0", "BuildCommit"},
		{"Missing BuildVersion", "testapp", "2025-04-13", "abcdef123", "", "BuildVersion"},
		{"Success Case", "testapp", "2025-04-13", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = defaultFlags()

			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantMissing != "" {
				if !errors.Is(err, ErrIncomplete) {
					t.Fatalf("Initialize() error = %v, want ErrIncomplete", err)
				}
				if !strings.Contains(err.Error(), tt.wantMissing) {
					t.Errorf("Initialize() error = %v, want mention of %s", err, tt.wantMissing)
				}
				return
			}

			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if buildFlags.Name != tt.buildName {
				t.Errorf("buildFlags.Name = %v, want %v", buildFlags.Name, tt.buildName)
			}
			if buildFlags.Version != tt.buildVer {
				t.Errorf("buildFlags.Version = %v, want %v", buildFlags.Version, tt.buildVer)
			}
		})
	}
}

func TestInitializeKeepsPlaceholders(t *testing.T) {
	buildFlags = defaultFlags()
	buildName, buildTime, buildCommit, buildVersion = "", "", "", "v2.0.0"

	_ = Initialize()

	flags := GetBuildFlags()
	if flags.Name != "partialsynth" {
		t.Errorf("Name = %q, want placeholder partialsynth", flags.Name)
	}
	if flags.Version != "v2.0.0" {
		t.Errorf("Version = %q, want v2.0.0", flags.Version)
	}
	if flags.Description == "" {
		t.Error("Description should never be empty")
	}
}
