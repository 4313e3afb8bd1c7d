// Package session provides install sessions.
//
// A session stages APK files for one package. Committing seals it, parses
// the staged APKs, validates them against the registry, waits for
// verification when a verifier is configured and then applies the result
// to the registry in one step. The outcome is delivered to the caller's
// StatusReceiver and announced with SESSION_FINISHED.
//
// Session Lifecycle:
//  1. Create: OPEN, id allocated (or a draft id adopted for unarchive)
//  2. Write/AddFile/RemoveFile: mutate while OPEN
//  3. Commit: SEALED while the commit task runs
//  4. COMMITTED on success; back to OPEN on failure
//  5. Abandon: ABANDONED, staged bytes released
//
// Inherit Sessions:
//   - Start from the installed split files of the target package
//   - RemoveFile tombstones a name as <name>.removed
//   - Names lists inherited names, staged names, then tombstones
//
// Example Usage:
//
//	mgr := session.NewManager(reg, bus, session.WithVerifier(coord))
//	id, err := mgr.Create(types.SessionParams{Mode: types.ModeFullInstall})
//	_, err = mgr.Write(id, "base.apk", file)
//	res, err := mgr.CommitAndWait(ctx, id)
package session
