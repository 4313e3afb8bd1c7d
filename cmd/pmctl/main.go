package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

// ExitCoder errors choose the process exit code.
type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := newRootCmd(os.Stdout, os.Stdin).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ex, ok := err.(ExitCoder); ok {
			os.Exit(ex.ExitCode())
		}
		os.Exit(1)
	}
}

type options struct {
	server     string
	timeout    time.Duration
	jsonOutput bool
	out        io.Writer
	in         io.Reader
}

func (o *options) client() *client {
	return newClient(o.server, o.timeout)
}

// print writes v as JSON when --json is set, text otherwise.
func (o *options) print(v any, text string) error {
	if o.jsonOutput {
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(o.out, string(data))
		return err
	}
	_, err := fmt.Fprint(o.out, text)
	return err
}

func newRootCmd(out io.Writer, in io.Reader) *cobra.Command {
	opts := &options{out: out, in: in}

	server := os.Getenv("PMCTL_SERVER")
	if server == "" {
		server = "http://localhost:8000"
	}

	cmd := &cobra.Command{
		Use:           "pmctl",
		Short:         "Command line client for the package manager server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "package manager server URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(newShellCmd(opts))
	cmd.AddCommand(newInstallCmd(opts))
	cmd.AddCommand(newUninstallCmd(opts))
	cmd.AddCommand(newPackagesCmd(opts))
	cmd.AddCommand(newArchiveCmd(opts))
	cmd.AddCommand(newUnarchiveCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))

	return cmd
}
