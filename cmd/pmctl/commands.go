package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/verification"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

func newShellCmd(opts *options) *cobra.Command {
	var stdin bool

	cmd := &cobra.Command{
		Use:   "shell -- <pm args...>",
		Short: "Run a pm command line on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if stdin {
				var err error
				if data, err = io.ReadAll(opts.in); err != nil {
					return err
				}
			}
			out, err := opts.client().shell(cmd.Context(), args, data)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprint(opts.out, out); err != nil {
				return err
			}
			if strings.HasPrefix(out, "Failure") || strings.HasPrefix(out, "Error") {
				return &exitError{code: 1, msg: strings.TrimSpace(out)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stdin, "stdin", false, "forward standard input (pm install -S)")
	return cmd
}

func newInstallCmd(opts *options) *cobra.Command {
	var req types.CreateSessionRequest
	var inherit bool

	cmd := &cobra.Command{
		Use:   "install <apk>...",
		Short: "Install APKs in one session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inherit {
				req.Mode = "inherit"
			}
			res, err := opts.client().install(cmd.Context(), req, args)
			if err != nil {
				return err
			}
			if !res.OK() {
				if opts.jsonOutput {
					_ = opts.print(res, "")
				}
				return &exitError{code: 1, msg: res.StatusMessage}
			}
			return opts.print(res, "Success\n")
		},
	}
	cmd.Flags().BoolVar(&inherit, "inherit", false, "inherit the installed splits (-p)")
	cmd.Flags().StringVar(&req.AppPackageName, "package", "", "package to inherit from")
	cmd.Flags().BoolVarP(&req.AllowDowngrade, "downgrade", "d", false, "allow a version downgrade")
	cmd.Flags().BoolVar(&req.DontKillApp, "dont-kill", false, "do not kill the running app")
	cmd.Flags().IntVar(&req.UserID, "user", types.AllUsers, "target user (-1 for all)")
	cmd.Flags().StringVarP(&req.InstallerPackageName, "installer", "i", "", "installer package name")
	return cmd
}

func newUninstallCmd(opts *options) *cobra.Command {
	var keep bool
	var user string

	cmd := &cobra.Command{
		Use:     "uninstall <package>",
		Aliases: []string{"rm"},
		Short:   "Uninstall a package",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"user": {user}, "keep_data": {strconv.FormatBool(keep)}}
			path := "/packages/" + url.PathEscape(args[0]) + "?" + q.Encode()
			if err := opts.client().do(cmd.Context(), http.MethodDelete, path, nil, nil); err != nil {
				return err
			}
			return opts.print(map[string]string{"uninstalled": args[0]}, "Success\n")
		},
	}
	cmd.Flags().BoolVarP(&keep, "keep-data", "k", false, "keep the data directories")
	cmd.Flags().StringVar(&user, "user", "all", "target user")
	return cmd
}

func newPackagesCmd(opts *options) *cobra.Command {
	packagesCmd := &cobra.Command{Use: "packages", Aliases: []string{"pkg"}, Short: "Query packages"}

	var user string
	var archived bool
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{"user": {user}, "archived": {strconv.FormatBool(archived)}}
			var resp struct {
				Packages []types.PackageInfo `json:"packages"`
			}
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/packages?"+q.Encode(), nil, &resp); err != nil {
				return err
			}
			var b strings.Builder
			for _, p := range resp.Packages {
				fmt.Fprintf(&b, "%s\t%d", p.PackageName, p.VersionCode)
				if p.Archived {
					b.WriteString("\tarchived")
				}
				b.WriteByte('\n')
			}
			return opts.print(resp.Packages, b.String())
		},
	}
	listCmd.Flags().StringVar(&user, "user", "0", "user to list")
	listCmd.Flags().BoolVar(&archived, "archived", false, "include archived packages")

	getCmd := &cobra.Command{
		Use:   "get <package>",
		Short: "Show one package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var info types.PackageInfo
			path := "/packages/" + url.PathEscape(args[0]) + "?" + url.Values{"user": {user}, "archived": {"true"}}.Encode()
			if err := opts.client().do(cmd.Context(), http.MethodGet, path, nil, &info); err != nil {
				return err
			}
			text := fmt.Sprintf("package: %s\nversionCode: %d\nsplits: %s\ninstaller: %s\narchived: %t\n",
				info.PackageName, info.VersionCode, strings.Join(info.Splits, ","), info.InstallerPackageName, info.Archived)
			return opts.print(info, text)
		},
	}
	getCmd.Flags().StringVar(&user, "user", "0", "user to query")

	packagesCmd.AddCommand(listCmd, getCmd)
	return packagesCmd
}

func newArchiveCmd(opts *options) *cobra.Command {
	var user int

	cmd := &cobra.Command{
		Use:   "archive <package>",
		Short: "Archive a package, keeping its launcher entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/packages/" + url.PathEscape(args[0]) + "/archive"
			if err := opts.client().do(cmd.Context(), http.MethodPost, path, types.ArchiveRequest{UserID: user}, nil); err != nil {
				return err
			}
			return opts.print(map[string]string{"archived": args[0]}, "Success\n")
		},
	}
	cmd.Flags().IntVar(&user, "user", 0, "target user")
	return cmd
}

func newUnarchiveCmd(opts *options) *cobra.Command {
	var req types.UnarchiveRequest

	cmd := &cobra.Command{
		Use:   "unarchive <package>",
		Short: "Ask the installer to restore an archived package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				UnarchiveID int `json:"unarchive_id"`
			}
			path := "/packages/" + url.PathEscape(args[0]) + "/unarchive"
			if err := opts.client().do(cmd.Context(), http.MethodPost, path, req, &resp); err != nil {
				return err
			}
			return opts.print(resp, fmt.Sprintf("Success: unarchive id %d\n", resp.UnarchiveID))
		},
	}
	cmd.Flags().IntVar(&req.UserID, "user", 0, "target user")
	cmd.Flags().BoolVar(&req.AllUsers, "all-users", false, "restore for every archived user")
	return cmd
}

func newVerifyCmd(opts *options) *cobra.Command {
	verifyCmd := &cobra.Command{Use: "verify", Short: "Answer install verification requests"}

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending verification requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Verifications []verification.Info `json:"verifications"`
			}
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/verifications", nil, &resp); err != nil {
				return err
			}
			var b strings.Builder
			for _, v := range resp.Verifications {
				fmt.Fprintf(&b, "%d\t%s\tsession=%d\t%s\n", v.ID, v.PackageName, v.SessionID, v.State)
			}
			return opts.print(resp.Verifications, b.String())
		},
	}

	var verifier string
	var reject bool
	respondCmd := &cobra.Command{
		Use:   "respond <id>",
		Short: "Allow or reject a verification request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.Atoi(args[0]); err != nil {
				return &exitError{code: 2, msg: "invalid verification id: " + args[0]}
			}
			body := types.VerificationResponse{Verifier: verifier, Allow: !reject}
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/verifications/"+args[0]+"/respond", body, nil); err != nil {
				return err
			}
			return opts.print(body, "Success\n")
		},
	}
	respondCmd.Flags().StringVar(&verifier, "verifier", "", "verifier package name")
	respondCmd.Flags().BoolVar(&reject, "reject", false, "reject instead of allow")
	_ = respondCmd.MarkFlagRequired("verifier")

	verifyCmd.AddCommand(pendingCmd, respondCmd)
	return verifyCmd
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp map[string]any
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			return opts.print(resp, fmt.Sprintf("%v\n", resp["status"]))
		},
	}
}
