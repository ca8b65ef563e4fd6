// Package pipeline wires the segmentation stages into a per-image Analyzer
// and runs batches of images on a worker pool.
//
// Each image is analysed by exactly one worker with no shared mutable
// state. Results flow over a channel to a single collector that owns the
// stats.Batch, so aggregation needs no locks. Cancellation is observed only
// between images; a running analysis is bounded by the segmentation
// iteration guard instead.
package pipeline
