package version

import (
	"regexp"
	"testing"
)

var semver = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

func TestVersion(t *testing.T) {
	if !semver.MatchString(Version) {
		t.Errorf("Version = %q, want a v-prefixed semantic version", Version)
	}
}

func TestVersionPattern(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"v0.3.1", true},
		{"v1.0.0-rc.1", true},
		{"0.3.1", false},
		{"v1.2", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := semver.MatchString(tt.in); got != tt.want {
			t.Errorf("semver(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
