// Package lidar holds the value types shared by the simulated LIDAR
// pipeline: spherical returns, sweep batches, the observer registry used to
// publish them, and the coordinate geometry.
//
// Layering: sensor produces ScanBatch values; pointcloud, storage and
// stream consume them; scanlog persists storage. None of the consumers
// import the sensor package, they depend on the Source interface here.
package lidar
