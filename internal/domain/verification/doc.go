// Package verification coordinates install verification.
//
// When a commit has verifiers, the coordinator assigns a verification id
// (starting at 1), broadcasts PACKAGE_NEEDS_VERIFICATION to each verifier
// and suspends the commit until the request ends:
//   - REJECTED as soon as a required verifier rejects
//   - ALLOWED once every required verifier allowed
//   - TIMED_OUT_ALLOW or TIMED_OUT_REJECT when the window elapses
//
// Sufficient verifiers are advisory while required ones exist. A request
// ends exactly once and PACKAGE_VERIFIED reports the outcome.
package verification
