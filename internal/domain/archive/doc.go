// Package archive orchestrates archiving and unarchiving.
//
// Archiving removes an app's code for one user while keeping its identity
// and data. Unarchiving asks the recorded installer to bring the code
// back: the manager opens a draft session whose id is the unarchive id,
// publishes UNARCHIVE_PACKAGE to the installer's receiver, and resolves
// the request when the installer's session adopting that id finishes.
//
// Installers report progress with ReportUnarchivalStatus; an error status
// fails the request with the error dialog action and abandons the draft.
package archive
