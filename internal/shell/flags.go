package shell

import (
	"io"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

func newFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return pmerr.New(pmerr.InvalidSessionParams, "%s", err.Error())
	}
	return nil
}

// parseUser maps --user values. "all" is every user and "current" is the
// primary user.
func parseUser(s string) (int, error) {
	switch s {
	case "all":
		return types.AllUsers, nil
	case "current", "cur":
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, pmerr.New(pmerr.InvalidSessionParams, "Bad user number: %s", s)
	}
	return n, nil
}

func parseSessionID(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, pmerr.New(pmerr.InvalidSessionParams, "Bad session id: %s", s)
	}
	return n, nil
}

func needArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return pmerr.New(pmerr.InvalidSessionParams, "usage: %s", usage)
	}
	return nil
}
