// Package notify forwards package broadcasts to external webhook receivers.
package notify
