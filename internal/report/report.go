package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ironsheep/lipid-tools-mcp/internal/stats"
)

// File names written by WriteAll.
const (
	ImagesFile      = "images.csv"
	GroupsFile      = "groups.csv"
	ComparisonsFile = "comparisons.csv"
	SummaryFile     = "summary.json"
	BoxPlotFile     = "area_fraction_boxplot.png"
	EvolutionFile   = "area_fraction_evolution.png"
)

// UngroupedLabel stands in for the empty group in tables and plots.
const UngroupedLabel = "(ungrouped)"

var imageHeader = []string{
	"image", "group", "status", "droplet_count", "total_area", "area_fraction",
	"mean_droplet_area", "mean_intensity", "total_volume_proxy",
	"physical_area", "physical_volume", "stain_percent",
}

// WriteImageCSV writes one row per image: successful images first with
// their metrics, then failed images with empty metric cells and the
// reason in the status column.
func WriteImageCSV(w io.Writer, summary stats.BatchSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(imageHeader); err != nil {
		return err
	}
	for _, s := range summary.Images {
		row := []string{
			s.ID, s.Group, "ok",
			strconv.Itoa(s.DropletCount),
			strconv.Itoa(s.TotalArea),
			formatFloat(s.AreaFraction),
			formatFloat(s.MeanDropletArea),
			formatFloat(s.MeanIntensity),
			formatFloat(s.TotalVolume),
			formatFloat(s.PhysicalArea),
			formatFloat(s.PhysicalVolume),
			stainPercent(s),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	for _, f := range summary.Failures {
		row := make([]string, len(imageHeader))
		row[0], row[1], row[2] = f.ID, f.Group, failureStatus(f)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var groupHeader = []string{
	"group", "images", "mean_area_fraction", "sd_area_fraction", "sem_area_fraction",
	"ci95_low", "ci95_high", "median_area_fraction", "mean_droplet_count",
}

// WriteGroupCSV writes the area fraction statistics of every group,
// followed by an "all" row over every successful image.
func WriteGroupCSV(w io.Writer, summary stats.BatchSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(groupHeader); err != nil {
		return err
	}
	for _, g := range summary.Groups {
		if err := cw.Write(groupRow(groupName(g.Group), g.Images, g.Metrics)); err != nil {
			return err
		}
	}
	if err := cw.Write(groupRow("all", summary.Succeeded, summary.Metrics)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func groupRow(name string, images int, m stats.MetricSet) []string {
	af := m.AreaFraction
	return []string{
		name,
		strconv.Itoa(images),
		formatFloat(af.Mean),
		formatFloat(af.StdDev),
		formatFloat(af.StdErr),
		formatFloat(af.Mean - af.Margin95),
		formatFloat(af.Mean + af.Margin95),
		formatFloat(af.Median),
		formatFloat(m.DropletCount.Mean),
	}
}

var comparisonHeader = []string{"group_a", "group_b", "mean_difference", "t", "df", "p_value"}

// WriteComparisonCSV writes the pairwise Welch tests on area fraction.
func WriteComparisonCSV(w io.Writer, summary stats.BatchSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(comparisonHeader); err != nil {
		return err
	}
	for _, c := range summary.Comparisons {
		row := []string{
			c.GroupA, c.GroupB,
			formatFloat(c.MeanDifference),
			formatFloat(c.T),
			formatFloat(c.DF),
			formatFloat(c.PValue),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FailureLines returns one human-readable line per failed image.
func FailureLines(summary stats.BatchSummary) []string {
	lines := make([]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		if f.Group != "" {
			lines = append(lines, fmt.Sprintf("%s [%s]: %s", f.ID, f.Group, failureStatus(f)))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", f.ID, failureStatus(f)))
		}
	}
	return lines
}

// Options select the optional report artefacts.
type Options struct {
	// BoxPlot enables both plots: the per-group box plot and the
	// evolution of the mean across groups.
	BoxPlot bool
}

// WriteAll writes the CSV tables, the JSON summary and, when requested and
// there is data, the plots into dir. It returns the paths written.
func WriteAll(dir string, summary stats.BatchSummary, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	var written []string
	tables := []struct {
		name  string
		write func(io.Writer, stats.BatchSummary) error
	}{
		{ImagesFile, WriteImageCSV},
		{GroupsFile, WriteGroupCSV},
		{ComparisonsFile, WriteComparisonCSV},
		{SummaryFile, writeJSON},
	}
	for _, t := range tables {
		path := filepath.Join(dir, t.name)
		if err := writeFile(path, summary, t.write); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if !opts.BoxPlot || summary.Succeeded == 0 {
		return written, nil
	}
	plots := []struct {
		name  string
		write func(string, stats.BatchSummary) error
	}{
		{BoxPlotFile, WriteBoxPlot},
		{EvolutionFile, WriteEvolutionPlot},
	}
	for _, pl := range plots {
		path := filepath.Join(dir, pl.name)
		if err := pl.write(path, summary); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, summary stats.BatchSummary, write func(io.Writer, stats.BatchSummary) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := write(f, summary); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func writeJSON(w io.Writer, summary stats.BatchSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// stainPercent is blank for images not analysed on the stain channel.
func stainPercent(s stats.ImageSummary) string {
	if s.StainPercent == nil {
		return ""
	}
	return formatFloat(*s.StainPercent)
}

func failureStatus(f stats.ImageFailure) string {
	return "analysis failed: " + f.Reason
}

func groupName(g string) string {
	if g == "" {
		return UngroupedLabel
	}
	return g
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
