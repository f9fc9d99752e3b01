// Package ws provides WebSocket connection handling for signaling peers.
//
// The package implements:
//   - Hub: tracks live connections by ID and delivers outbound frames
//   - Handler: upgrades HTTP requests and runs the read and write pumps
//
// Every frame is a JSON envelope {"event": ..., "data": ...}. Inbound frames
// are decoded and handed to the signaling router; the messages it returns
// are delivered through the hub. A connection's send queue is bounded and a
// client that cannot keep up is disconnected.
package ws
