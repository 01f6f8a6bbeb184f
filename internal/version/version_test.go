package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestVersion_DefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
}

func TestColored(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	orig := Version
	defer func() { Version = orig }()

	cases := []struct {
		in, want string
	}{
		{"0.1.0-dev", "0.1.0-dev"},
		{"1.2.3", "1.2.3"},
		{"1.0.0-beta.1", "1.0.0-beta.1"},
		{"weird", "weird"},
	}
	for _, tc := range cases {
		Version = tc.in
		if got := Colored(); got != tc.want {
			t.Errorf("Colored(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestInfo(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	defer func() { Version, GitCommit, BuildDate = origVersion, origCommit, origDate }()

	Version, GitCommit, BuildDate = "1.2.3", "", ""
	if got := Info(); got != "irasm 1.2.3 (bytecode v7)" {
		t.Fatalf("Info = %q", got)
	}
	GitCommit, BuildDate = "abc123", "2024-01-15T10:30:00Z"
	got := Info()
	if !strings.Contains(got, "commit abc123") || !strings.Contains(got, "built 2024-01-15T10:30:00Z") {
		t.Fatalf("Info = %q", got)
	}
}
