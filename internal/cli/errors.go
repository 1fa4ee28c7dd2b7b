package cli

import (
	"errors"

	"github.com/mark3labs/spec2test/internal/generr"
)

var ErrUsage = errors.New("cli usage error")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// ExitCode maps a command error to the process exit status: 2 for usage and
// input problems, 130 for a canceled run, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	case generr.Is(err, generr.Canceled):
		return 130
	default:
		return 1
	}
}
