package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "v1.2.3"
	if Short() != "v1.2.3" {
		t.Errorf("Short() = %q", Short())
	}
	if s := String(); !strings.HasPrefix(s, "ferroinfer v1.2.3 (commit ") {
		t.Errorf("String() = %q", s)
	}
}
