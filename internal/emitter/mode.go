package emitter

import (
	"strings"

	"github.com/mark3labs/spec2test/internal/generr"
)

// Mode is the closed set of write policies. Both share the staged commit;
// they differ only in the scaffold they add and their destination checks.
type Mode int

const (
	// NewProject writes a buildable Gradle project around the generated tests.
	NewProject Mode = iota + 1
	// Merge writes only generated files into an existing project.
	Merge
)

func (m Mode) String() string {
	switch m {
	case NewProject:
		return "new-project"
	case Merge:
		return "merge"
	default:
		return "unknown"
	}
}

// ParseMode accepts new-project and merge, plus the aliases standalone and
// embedded. Empty input selects NewProject.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "new-project", "newproject", "standalone":
		return NewProject, nil
	case "merge", "embedded":
		return Merge, nil
	default:
		return 0, generr.New(generr.InvalidInput, "unknown mode %q (want new-project or merge)", s)
	}
}
