// Package transport holds the adapter-neutral types used to send messages.
package transport
