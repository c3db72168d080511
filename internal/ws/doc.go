// Package ws pushes the cross-business overview to dashboard clients over
// WebSocket (/ws/stream) on a fixed interval.
package ws
