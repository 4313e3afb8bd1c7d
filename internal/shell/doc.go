/*
Package shell implements the pm command line over the package manager.

Commands mirror the device shell: install, install-streaming,
install-incremental, the install-create/-write/-remove/-commit/-abandon
session verbs, install-existing, uninstall, archive, request-unarchive,
list, path, dump and the enable/disable verbs. Output is the text the
device prints. Successful mutations print "Success" and failures print
"Failure [<reason>]", where the reason starts with the stable failure
code when one exists.

Example Usage:

	runner := shell.New(registry, sessions, archiver, shell.WithLogger(logger))
	out := runner.Run(ctx, []string{"pm", "uninstall", "-k", "--user", "0", "com.example.app"}, nil)
*/
package shell
