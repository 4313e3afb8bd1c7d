// Package main is pmctl, a command line client for the package manager
// server. It talks to the HTTP API at --server (or PMCTL_SERVER).
//
// Usage:
//
//	pmctl install base.apk split_config.hdpi.apk
//	pmctl shell -- list packages -3 --show-versioncode
//	pmctl archive com.example.app
//	pmctl verify respond 1 --verifier com.example.verifier --reject
package main
