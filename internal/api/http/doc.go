/*
Package http exposes the package manager over a JSON API built on gin.

Resources:

	/sessions        install sessions (create, write, commit, abandon)
	/packages        registry queries, uninstall, enabled settings, archive
	/unarchives      pending unarchive requests and installer status reports
	/verifications   verifier responses and timeout extensions
	/shell           pm command lines

Errors carry the failure kind, its stable code and the shell rendering:

	{"error": "...", "kind": "MissingSharedLibrary",
	 "code": "INSTALL_FAILED_MISSING_SHARED_LIBRARY",
	 "failure": "Failure [INSTALL_FAILED_MISSING_SHARED_LIBRARY: ...]"}
*/
package http
