// Package report writes batch results to disk.
//
// WriteAll produces, in one directory:
//
//	images.csv                   one row per image, failures included
//	groups.csv                   area fraction statistics per group and overall
//	comparisons.csv              pairwise Welch tests between groups
//	summary.json                 the full stats.BatchSummary
//	area_fraction_boxplot.png    optional, one box per group
//	area_fraction_evolution.png  optional, group means with 95% CI and min/max
//
// Failed images appear in images.csv with status
// "analysis failed: <reason>" and no metric values. WriteOverlay renders
// the accepted droplets of one image over the original for visual review.
package report
