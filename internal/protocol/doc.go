// Package protocol defines the messages exchanged between the host page and
// the wallet frame, and between the frame and its custody worker.
//
// All messages are JSON encoded before they cross a boundary so that no
// memory is shared between execution contexts.
package protocol
