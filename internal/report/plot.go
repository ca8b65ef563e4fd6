package report

import (
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	dimaging "github.com/disintegration/imaging"
	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
	"github.com/ironsheep/lipid-tools-mcp/internal/pipeline"
	"github.com/ironsheep/lipid-tools-mcp/internal/stats"
)

// ErrNothingToPlot is returned when a batch has no successful images.
var ErrNothingToPlot = errors.New("no successful images to plot")

// BoxSeries returns the area fractions of the successful images, one
// series per group in group order. Without any grouped image a single
// "all" series is returned.
func BoxSeries(summary stats.BatchSummary) (names []string, series []plotter.Values) {
	if len(summary.Groups) == 0 {
		var all plotter.Values
		for _, s := range summary.Images {
			all = append(all, s.AreaFraction)
		}
		if len(all) == 0 {
			return nil, nil
		}
		return []string{"all"}, []plotter.Values{all}
	}

	index := make(map[string]int, len(summary.Groups))
	for i, g := range summary.Groups {
		index[g.Group] = i
		names = append(names, groupName(g.Group))
	}
	series = make([]plotter.Values, len(summary.Groups))
	for _, s := range summary.Images {
		if i, ok := index[s.Group]; ok {
			series[i] = append(series[i], s.AreaFraction)
		}
	}
	return names, series
}

// WriteBoxPlot renders the area fraction distribution of each group and
// saves it to path. The format follows the file extension.
func WriteBoxPlot(path string, summary stats.BatchSummary) error {
	names, series := BoxSeries(summary)
	if len(series) == 0 {
		return ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Lipid droplet area fraction (run %s)", summary.RunID)
	p.Y.Label.Text = "Area fraction"
	p.X.Label.Text = "Group"

	width := vg.Points(20)
	for i, values := range series {
		box, err := plotter.NewBoxPlot(width, float64(i), values)
		if err != nil {
			return fmt.Errorf("failed to build box for %s: %w", names[i], err)
		}
		p.Add(box)
	}
	p.NominalX(names...)

	w := vg.Length(2+len(series)) * vg.Inch
	if err := p.Save(w, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save box plot: %w", err)
	}
	return nil
}

// EvolutionSeries holds the area fraction per group in group order: the
// mean with its 95% confidence margin, and the observed minimum and
// maximum. Without any grouped image a single "all" point is returned.
type EvolutionSeries struct {
	Names  []string
	Mean   plotter.XYs
	Margin plotter.YErrors
	Min    plotter.XYs
	Max    plotter.XYs
}

// Len returns the number of groups in the series.
func (e EvolutionSeries) Len() int { return len(e.Names) }

// Evolution builds the EvolutionSeries of a batch. Groups are placed at
// x = 0, 1, 2, ... in the order of summary.Groups.
func Evolution(summary stats.BatchSummary) EvolutionSeries {
	var e EvolutionSeries
	add := func(name string, d stats.Distribution) {
		x := float64(len(e.Names))
		e.Names = append(e.Names, name)
		e.Mean = append(e.Mean, plotter.XY{X: x, Y: d.Mean})
		e.Margin = append(e.Margin, struct{ Low, High float64 }{d.Margin95, d.Margin95})
		e.Min = append(e.Min, plotter.XY{X: x, Y: d.Min})
		e.Max = append(e.Max, plotter.XY{X: x, Y: d.Max})
	}
	if len(summary.Groups) == 0 {
		if summary.Metrics.AreaFraction.N > 0 {
			add("all", summary.Metrics.AreaFraction)
		}
		return e
	}
	for _, g := range summary.Groups {
		add(groupName(g.Group), g.Metrics.AreaFraction)
	}
	return e
}

type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

// WriteEvolutionPlot renders the mean area fraction of each group with
// 95% confidence error bars, plus dashed lines through the per-group
// minimum and maximum, and saves it to path.
func WriteEvolutionPlot(path string, summary stats.BatchSummary) error {
	e := Evolution(summary)
	if e.Len() == 0 {
		return ErrNothingToPlot
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Lipid droplet area fraction over groups (run %s)", summary.RunID)
	p.Y.Label.Text = "Area fraction"
	p.X.Label.Text = "Group"

	line, points, err := plotter.NewLinePoints(e.Mean)
	if err != nil {
		return fmt.Errorf("failed to build mean line: %w", err)
	}
	bars, err := plotter.NewYErrorBars(errorPoints{XYs: e.Mean, YErrors: e.Margin})
	if err != nil {
		return fmt.Errorf("failed to build error bars: %w", err)
	}
	low, err := plotter.NewLine(e.Min)
	if err != nil {
		return fmt.Errorf("failed to build min line: %w", err)
	}
	high, err := plotter.NewLine(e.Max)
	if err != nil {
		return fmt.Errorf("failed to build max line: %w", err)
	}
	for _, l := range []*plotter.Line{low, high} {
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	}

	p.Add(low, high, line, points, bars)
	p.Legend.Add("mean ± 95% CI", line, points)
	p.Legend.Add("min / max", low)
	p.Legend.Top = true
	p.NominalX(e.Names...)

	w := vg.Length(3+e.Len()) * vg.Inch
	if err := p.Save(w, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save evolution plot: %w", err)
	}
	return nil
}

// WriteOverlay saves src with mask highlighted next to the original, in the
// format given by the extension of path.
func WriteOverlay(path string, src image.Image, mask func(x, y int) bool, opacity float64) error {
	fused := imaging.RenderOverlay(src, mask, opacity)
	if err := dimaging.Save(imaging.SideBySide(src, fused), path); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

// OverlayName returns the overlay file name for an image ID: the ID with
// path separators flattened and the extension dropped, followed by a short
// name-based UUID prefix of the whole ID. IDs that flatten to the same stem
// ("a/b.png", "a_b.png", "a_b.tif") still get distinct names.
func OverlayName(id string) string {
	slashed := filepath.ToSlash(id)
	flat := strings.ReplaceAll(strings.TrimPrefix(slashed, "/"), "/", "_")
	stem := strings.TrimSuffix(flat, filepath.Ext(flat))
	tag := uuid.NewSHA1(uuid.NameSpaceURL, []byte(slashed)).String()[:8]
	return stem + "_" + tag + "_overlay.png"
}

// OverlayWriter creates dir and returns a pipeline.BatchOptions.OnResult
// hook saving one overlay per file-backed image into it. Failures are
// logged to logger and never fail the image.
func OverlayWriter(dir string, opacity float64, logger *log.Logger) (func(pipeline.Source, *pipeline.Result), error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create overlay directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return func(src pipeline.Source, res *pipeline.Result) {
		file, ok := src.(imaging.FileSource)
		if !ok {
			return
		}
		decoded, err := file.Decoded()
		if err != nil {
			logger.Printf("overlay %s: %v", src.ID(), err)
			return
		}
		base := imaging.MatchSize(decoded, res.Labels.Width(), res.Labels.Height())
		if err := WriteOverlay(filepath.Join(dir, OverlayName(src.ID())), base, res.Mask(), opacity); err != nil {
			logger.Printf("overlay %s: %v", src.ID(), err)
		}
	}, nil
}
