package stats

import (
	"github.com/ironsheep/lipid-tools-mcp/internal/segmentation"
)

// ImageSummary aggregates the accepted droplets of one image.
//
// AreaFraction (total droplet area over image area) is the primary
// triglyceride-content proxy. With no droplets every count, total and ratio
// is 0.
type ImageSummary struct {
	ID     string `json:"id"`
	Group  string `json:"group,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	ImageArea       int     `json:"image_area"`
	DropletCount    int     `json:"droplet_count"`
	TotalArea       int     `json:"total_area"`
	AreaFraction    float64 `json:"area_fraction"`
	MeanDropletArea float64 `json:"mean_droplet_area"`
	TotalIntensity  float64 `json:"total_intensity"`
	MeanIntensity   float64 `json:"mean_intensity"`
	TotalVolume     float64 `json:"total_volume_proxy"`

	DropletAreas       Distribution `json:"droplet_areas"`
	DropletIntensities Distribution `json:"droplet_intensities"`
	DropletDiameters   Distribution `json:"droplet_diameters"`

	PhysicalArea   float64 `json:"physical_area,omitempty"`
	PhysicalVolume float64 `json:"physical_volume,omitempty"`

	// StainPercent is the percentage of stained pixels, set only when the
	// image was analysed on the stain channel.
	StainPercent *float64 `json:"stain_percent,omitempty"`
}

// SummarizeImage folds the metrics of one image's droplets.
//
// MeanIntensity is the area-weighted mean over all droplet pixels;
// DropletIntensities describes the per-droplet means.
func SummarizeImage(id, group string, metrics []segmentation.Metrics, width, height int) ImageSummary {
	s := ImageSummary{
		ID:           id,
		Group:        group,
		Width:        width,
		Height:       height,
		ImageArea:    width * height,
		DropletCount: len(metrics),
	}
	if len(metrics) == 0 {
		return s
	}

	areas := make([]float64, len(metrics))
	intensities := make([]float64, len(metrics))
	diameters := make([]float64, len(metrics))
	for i, m := range metrics {
		s.TotalArea += m.Area
		s.TotalIntensity += m.TotalIntensity
		s.TotalVolume += m.VolumeProxy
		s.PhysicalArea += m.PhysicalArea
		s.PhysicalVolume += m.PhysicalVolume
		areas[i] = float64(m.Area)
		intensities[i] = m.MeanIntensity
		diameters[i] = m.Shape.EquivalentDiameter
	}

	if s.ImageArea > 0 {
		s.AreaFraction = clampUnit(float64(s.TotalArea) / float64(s.ImageArea))
	}
	s.MeanDropletArea = float64(s.TotalArea) / float64(len(metrics))
	if s.TotalArea > 0 {
		s.MeanIntensity = s.TotalIntensity / float64(s.TotalArea)
	}
	s.DropletAreas = Describe(areas)
	s.DropletIntensities = Describe(intensities)
	s.DropletDiameters = Describe(diameters)
	return s
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
