// Package pipeline wires a simulated sensor to its consumers and drives it
// in real time.
//
// A Runtime owns the recording store, the point cloud and the websocket
// hub for one sensor, subscribes them at construction, and converts wall
// clock frames into fixed physics ticks.
package pipeline
