package version

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Fatal("Version should be non-empty")
	}
	// Default is 0.1.0 when built without ldflags.
	if strings.Count(Version, ".") != 2 {
		t.Errorf("Version %q is not in major.minor.patch form", Version)
	}
}
