package stats

import (
	"math"
	"slices"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat/distuv"
)

// ImageFailure records an image whose analysis did not produce a summary.
type ImageFailure struct {
	ID     string `json:"id"`
	Group  string `json:"group,omitempty"`
	Reason string `json:"reason"`
}

// MetricSet describes each per-image metric across a set of images.
type MetricSet struct {
	AreaFraction    Distribution `json:"area_fraction"`
	DropletCount    Distribution `json:"droplet_count"`
	TotalArea       Distribution `json:"total_area"`
	MeanDropletArea Distribution `json:"mean_droplet_area"`
	MeanIntensity   Distribution `json:"mean_intensity"`
}

// GroupSummary holds the statistics of the images sharing one group label.
type GroupSummary struct {
	Group   string    `json:"group"`
	Images  int       `json:"images"`
	Metrics MetricSet `json:"metrics"`
}

// Comparison is a Welch two-sample t-test on area fraction between two
// groups. MeanDifference is mean(A) - mean(B).
type Comparison struct {
	GroupA         string  `json:"group_a"`
	GroupB         string  `json:"group_b"`
	MeanDifference float64 `json:"mean_difference"`
	T              float64 `json:"t"`
	DF             float64 `json:"df"`
	PValue         float64 `json:"p_value"`
}

// BatchSummary is the finalised result of a batch. Images and Failures are
// in canonical order (by ID, then group), independent of completion order.
type BatchSummary struct {
	RunID       string         `json:"run_id"`
	Images      []ImageSummary `json:"images"`
	Failures    []ImageFailure `json:"failures"`
	Metrics     MetricSet      `json:"metrics"`
	Groups      []GroupSummary `json:"groups,omitempty"`
	Comparisons []Comparison   `json:"comparisons,omitempty"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
}

// Batch accumulates image results for one run.
//
// A Batch has a single writer: callers running images in parallel must
// funnel results through one goroutine (or build one Batch per worker and
// Merge them). Finalize does not depend on the order of Add calls.
type Batch struct {
	runID    string
	images   []ImageSummary
	failures []ImageFailure
}

// NewBatch starts a batch. An empty runID is replaced by a random UUID.
func NewBatch(runID string) *Batch {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Batch{runID: runID}
}

// RunID returns the batch identifier.
func (b *Batch) RunID() string { return b.runID }

// Add records a finished image.
func (b *Batch) Add(s ImageSummary) {
	b.images = append(b.images, s)
}

// AddFailure records an image that could not be analysed.
func (b *Batch) AddFailure(id, group string, err error) {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	b.failures = append(b.failures, ImageFailure{ID: id, Group: group, Reason: reason})
}

// Merge appends everything recorded in other. other is left unchanged.
func (b *Batch) Merge(other *Batch) {
	if other == nil {
		return
	}
	b.images = append(b.images, other.images...)
	b.failures = append(b.failures, other.failures...)
}

// Len returns the number of images recorded, successful or not.
func (b *Batch) Len() int { return len(b.images) + len(b.failures) }

// Finalize computes the batch statistics. The Batch stays usable; calling
// Finalize again after more Adds reflects the new records.
func (b *Batch) Finalize() BatchSummary {
	images := make([]ImageSummary, len(b.images))
	copy(images, b.images)
	sortSummaries(images)

	failures := make([]ImageFailure, len(b.failures))
	copy(failures, b.failures)
	sort.Slice(failures, func(i, j int) bool {
		a, c := failures[i], failures[j]
		if a.ID != c.ID {
			return a.ID < c.ID
		}
		if a.Group != c.Group {
			return a.Group < c.Group
		}
		return a.Reason < c.Reason
	})

	groups := summarizeGroups(images)
	return BatchSummary{
		RunID:       b.runID,
		Images:      images,
		Failures:    failures,
		Metrics:     describeMetrics(images),
		Groups:      groups,
		Comparisons: compareGroups(groups),
		Succeeded:   len(images),
		Failed:      len(failures),
	}
}

// SummarizeBatch folds already-finished image summaries into a batch
// summary under a fresh run ID.
func SummarizeBatch(summaries []ImageSummary) BatchSummary {
	b := NewBatch("")
	for _, s := range summaries {
		b.Add(s)
	}
	return b.Finalize()
}

func sortSummaries(images []ImageSummary) {
	sort.Slice(images, func(i, j int) bool {
		a, c := images[i], images[j]
		switch {
		case a.ID != c.ID:
			return a.ID < c.ID
		case a.Group != c.Group:
			return a.Group < c.Group
		case a.DropletCount != c.DropletCount:
			return a.DropletCount < c.DropletCount
		case a.TotalArea != c.TotalArea:
			return a.TotalArea < c.TotalArea
		case a.ImageArea != c.ImageArea:
			return a.ImageArea < c.ImageArea
		default:
			return a.TotalIntensity < c.TotalIntensity
		}
	})
}

func describeMetrics(images []ImageSummary) MetricSet {
	fraction := make([]float64, len(images))
	count := make([]float64, len(images))
	area := make([]float64, len(images))
	meanArea := make([]float64, len(images))
	intensity := make([]float64, len(images))
	for i, s := range images {
		fraction[i] = s.AreaFraction
		count[i] = float64(s.DropletCount)
		area[i] = float64(s.TotalArea)
		meanArea[i] = s.MeanDropletArea
		intensity[i] = s.MeanIntensity
	}
	return MetricSet{
		AreaFraction:    Describe(fraction),
		DropletCount:    Describe(count),
		TotalArea:       Describe(area),
		MeanDropletArea: Describe(meanArea),
		MeanIntensity:   Describe(intensity),
	}
}

// summarizeGroups describes each non-empty group label, ordered by
// CompareGroupNames.
func summarizeGroups(images []ImageSummary) []GroupSummary {
	byGroup := make(map[string][]ImageSummary)
	for _, s := range images {
		if s.Group == "" {
			continue
		}
		byGroup[s.Group] = append(byGroup[s.Group], s)
	}
	if len(byGroup) == 0 {
		return nil
	}

	names := make([]string, 0, len(byGroup))
	for name := range byGroup {
		names = append(names, name)
	}
	slices.SortFunc(names, CompareGroupNames)

	groups := make([]GroupSummary, len(names))
	for i, name := range names {
		members := byGroup[name]
		groups[i] = GroupSummary{Group: name, Images: len(members), Metrics: describeMetrics(members)}
	}
	return groups
}

// compareGroups runs a Welch t-test on area fraction for every pair of
// groups with at least two images each.
func compareGroups(groups []GroupSummary) []Comparison {
	var out []Comparison
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			a, b := groups[i], groups[j]
			if a.Images < 2 || b.Images < 2 {
				continue
			}
			out = append(out, welch(a.Group, b.Group, a.Metrics.AreaFraction, b.Metrics.AreaFraction))
		}
	}
	return out
}

func welch(nameA, nameB string, a, b Distribution) Comparison {
	c := Comparison{GroupA: nameA, GroupB: nameB, MeanDifference: a.Mean - b.Mean}
	va := a.Variance / float64(a.N)
	vb := b.Variance / float64(b.N)
	se2 := va + vb
	if se2 == 0 {
		// Both groups are constant: identical means are indistinguishable,
		// different means are separated with certainty.
		if c.MeanDifference == 0 {
			c.PValue = 1
		}
		return c
	}

	c.T = c.MeanDifference / math.Sqrt(se2)
	c.DF = se2 * se2 / (va*va/float64(a.N-1) + vb*vb/float64(b.N-1))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: c.DF}
	c.PValue = 2 * dist.CDF(-math.Abs(c.T))
	if c.PValue > 1 {
		c.PValue = 1
	}
	return c
}
