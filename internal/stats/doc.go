// Package stats folds droplet metrics into per-image and per-batch summaries.
//
// SummarizeImage reduces one image's droplet metrics to an ImageSummary.
// A Batch collects ImageSummary values (and failures) from a run and
// Finalize produces the BatchSummary: batch-level distributions per metric,
// per-group distributions, and Welch t-tests between groups.
//
// Every statistic is computed over values sorted into a canonical order, so
// the result is the same whatever order images finish in. No field is ever
// NaN or infinite; undefined ratios are reported as 0.
package stats
