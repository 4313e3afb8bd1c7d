// Package types provides data structures shared by every package manager
// component.
//
// Core Types:
//   - SessionParams, SessionInfo: install session configuration and views
//   - InstallFlags, SessionMode, DataLoaderParams: session knobs
//   - Result, StatusReceiver: asynchronous status delivery
//   - PackageInfo, ActivityInfo, ArchivedPackage: per-user package views
//   - SharedLibraryInfo, LibraryRef: SDK library graph
//   - EnabledState: tri-state enabled settings (DEFAULT resolves to the
//     manifest value)
//   - Caller: identity used for hidden-profile visibility
//
// Request Types:
//   - CreateSessionRequest, AddFileRequest, ArchiveRequest, ...: HTTP bodies
package types
