// Package session gates the push endpoints behind an optional access code.
//
// A client posts the code once and receives a token; guarded routes expect it
// in the X-Session-Token header. Without a configured code the gate is open.
package session
