package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/lipid-tools-mcp/internal/config"
	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
	"github.com/ironsheep/lipid-tools-mcp/internal/pipeline"
	"github.com/ironsheep/lipid-tools-mcp/internal/report"
	"github.com/ironsheep/lipid-tools-mcp/internal/segmentation"
	"github.com/ironsheep/lipid-tools-mcp/internal/stats"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "lipid_analyze_image").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`

	// Meta carries the client's progress token. Only lipid_analyze_batch
	// reports progress.
	Meta *struct {
		ProgressToken interface{} `json:"progressToken,omitempty"`
	} `json:"_meta,omitempty"`
}

func (p *ToolCallParams) progressToken() interface{} {
	if p.Meta == nil {
		return nil
	}
	return p.Meta.ProgressToken
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// Invalid analysis settings return code -32602.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments, params.progressToken())
	if err != nil {
		if errors.Is(err, segmentation.ErrConfiguration) {
			return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each analysis handler:
//  1. Unmarshals arguments from JSON
//  2. Merges per-call overrides over the server configuration
//  3. Loads and converts images through the cache
//  4. Runs the pipeline stages it needs
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage, progressToken interface{}) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Droplet Analysis
	case "lipid_analyze_image":
		return s.handleAnalyzeImage(args)
	case "lipid_analyze_batch":
		return s.handleAnalyzeBatch(args, progressToken)

	// Intermediate Maps
	case "lipid_edge_map":
		return s.handleEdgeMap(args)
	case "lipid_label_map":
		return s.handleLabelMap(args)
	case "lipid_overlay":
		return s.handleOverlay(args)

	// Configuration
	case "lipid_config":
		return s.handleConfig(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Analysis Settings ===

// analysisOverrides are the optional per-call settings accepted by every
// analysis tool. Unset fields keep the server configuration.
type analysisOverrides struct {
	LowThreshold    *float64 `json:"low_threshold,omitempty"`
	HighThreshold   *float64 `json:"high_threshold,omitempty"`
	SmoothingRadius *int     `json:"smoothing_radius,omitempty"`
	Polarity        *string  `json:"polarity,omitempty"`
	MinSeedGap      *int     `json:"min_seed_gap,omitempty"`
	Connectivity    *int     `json:"connectivity,omitempty"`
	MinArea         *int     `json:"min_area,omitempty"`
	MaxArea         *int     `json:"max_area,omitempty"`
	MinCircularity  *float64 `json:"min_circularity,omitempty"`
	IntensityFloor  *float64 `json:"intensity_floor,omitempty"`
	ExcludeBorder   *bool    `json:"exclude_border,omitempty"`
	MaxAspectRatio  *float64 `json:"max_aspect_ratio,omitempty"`
	PixelSize       *float64 `json:"pixel_size,omitempty"`
	Channel         *string  `json:"channel,omitempty"`
	MaxDimension    *int     `json:"max_dimension,omitempty"`
	Depth           *int     `json:"depth,omitempty"`
}

func (o analysisOverrides) isZero() bool {
	return o == analysisOverrides{}
}

// apply returns a copy of base with every set override written into it.
func (o analysisOverrides) apply(base *config.Config) *config.Config {
	cfg := *base
	if o.LowThreshold != nil {
		cfg.Edge.LowThreshold = *o.LowThreshold
	}
	if o.HighThreshold != nil {
		cfg.Edge.HighThreshold = *o.HighThreshold
	}
	if o.SmoothingRadius != nil {
		cfg.Edge.SmoothingRadius = *o.SmoothingRadius
	}
	if o.Polarity != nil {
		cfg.Edge.Polarity = *o.Polarity
	}
	if o.MinSeedGap != nil {
		cfg.Segmentation.MinSeedGap = *o.MinSeedGap
	}
	if o.Connectivity != nil {
		cfg.Segmentation.Connectivity = *o.Connectivity
	}
	if o.MinArea != nil {
		cfg.Filter.MinArea = *o.MinArea
	}
	if o.MaxArea != nil {
		cfg.Filter.MaxArea = *o.MaxArea
	}
	if o.MinCircularity != nil {
		cfg.Filter.MinCircularity = *o.MinCircularity
	}
	if o.IntensityFloor != nil {
		cfg.Filter.IntensityFloor = *o.IntensityFloor
	}
	if o.ExcludeBorder != nil {
		cfg.Filter.ExcludeBorder = *o.ExcludeBorder
	}
	if o.MaxAspectRatio != nil {
		cfg.Filter.MaxAspectRatio = *o.MaxAspectRatio
	}
	if o.PixelSize != nil {
		cfg.Measurement.PixelSize = *o.PixelSize
	}
	if o.Channel != nil {
		cfg.Input.Channel = *o.Channel
	}
	if o.MaxDimension != nil {
		cfg.Input.MaxDimension = *o.MaxDimension
	}
	if o.Depth != nil {
		cfg.Input.Depth = *o.Depth
	}
	return &cfg
}

// session is the configuration and analyzer used by one tool call.
type session struct {
	cfg      *config.Config
	analyzer *pipeline.Analyzer
}

func (s *Server) newSession(o analysisOverrides) (*session, error) {
	if o.isZero() {
		return &session{cfg: s.cfg, analyzer: s.analyzer}, nil
	}
	cfg := o.apply(s.cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	analyzer, err := pipeline.NewAnalyzer(cfg.AnalyzerOptions())
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, analyzer: analyzer}, nil
}

func (ss *session) source(cache *imaging.ImageCache, path, name, group string) imaging.FileSource {
	return imaging.FileSource{
		Path:    path,
		Name:    name,
		Label:   group,
		Cache:   cache,
		Convert: ss.cfg.ConvertOptions(),
	}
}

// analyzeFile decodes path and runs the full per-image chain.
func (s *Server) analyzeFile(ss *session, path, group string) (*pipeline.Result, imaging.FileSource, error) {
	src := ss.source(s.cache, path, "", group)
	img, err := src.Open()
	if err != nil {
		return nil, src, err
	}
	res, err := ss.analyzer.Analyze(src.ID(), group, img)
	if err != nil {
		return nil, src, err
	}
	return res, src, nil
}

// overlayImage renders the accepted droplets of res over the decoded
// colour image of src.
func overlayImage(src imaging.FileSource, res *pipeline.Result, opacity float64, sideBySide bool) (image.Image, error) {
	decoded, err := src.Decoded()
	if err != nil {
		return nil, err
	}
	base := imaging.MatchSize(decoded, res.Labels.Width(), res.Labels.Height())
	fused := imaging.RenderOverlay(base, res.Mask(), opacity)
	if sideBySide {
		return imaging.SideBySide(base, fused), nil
	}
	return fused, nil
}

// === Droplet Analysis Handlers ===

type analyzeImageArgs struct {
	Path            string `json:"path"`
	Group           string `json:"group"`
	IncludeDroplets bool   `json:"include_droplets"`
	IncludeOverlay  bool   `json:"include_overlay"`
	analysisOverrides
}

// AnalyzeImageResult is returned by lipid_analyze_image.
type AnalyzeImageResult struct {
	Summary    stats.ImageSummary     `json:"summary"`
	EdgePixels int                    `json:"edge_pixels"`
	Regions    int                    `json:"regions"`
	Droplets   []segmentation.Metrics `json:"droplets,omitempty"`
	Overlay    *imaging.EncodedImage  `json:"overlay,omitempty"`
}

func (s *Server) handleAnalyzeImage(args json.RawMessage) (interface{}, error) {
	var a analyzeImageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	ss, err := s.newSession(a.analysisOverrides)
	if err != nil {
		return nil, err
	}
	res, src, err := s.analyzeFile(ss, a.Path, a.Group)
	if err != nil {
		return nil, err
	}

	out := &AnalyzeImageResult{
		Summary:    res.Summary,
		EdgePixels: res.Edges.Count(),
		Regions:    res.Labels.Count(),
	}
	if a.IncludeDroplets {
		out.Droplets = res.Metrics
	}
	if a.IncludeOverlay {
		img, err := overlayImage(src, res, ss.cfg.Report.OverlayOpacity, false)
		if err != nil {
			return nil, err
		}
		if out.Overlay, err = imaging.EncodePNG(img); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type batchImageArg struct {
	Path  string `json:"path"`
	Group string `json:"group"`
}

type analyzeBatchArgs struct {
	Images              []batchImageArg `json:"images"`
	Directory           string          `json:"directory"`
	GroupBySubdirectory bool            `json:"group_by_subdirectory"`
	Workers             int             `json:"workers"`
	OutputDir           string          `json:"output_dir"`
	WriteOverlays       *bool           `json:"write_overlays,omitempty"`
	analysisOverrides
}

// AnalyzeBatchResult is returned by lipid_analyze_batch.
type AnalyzeBatchResult struct {
	Summary     stats.BatchSummary `json:"summary"`
	Failures    []string           `json:"failure_report,omitempty"`
	ReportFiles []string           `json:"report_files,omitempty"`
	Interrupted string             `json:"interrupted,omitempty"`
}

func (s *Server) handleAnalyzeBatch(args json.RawMessage, progressToken interface{}) (interface{}, error) {
	var a analyzeBatchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Workers < 0 {
		return nil, &segmentation.ConfigurationError{Component: "batch", Field: "workers", Reason: "must be >= 0"}
	}
	ss, err := s.newSession(a.analysisOverrides)
	if err != nil {
		return nil, err
	}

	sources, err := s.collectSources(ss, a)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no images to analyse")
	}

	workers := a.Workers
	if workers == 0 {
		workers = ss.cfg.Batch.Workers
	}
	writeOverlays := ss.cfg.Report.WriteOverlays
	if a.WriteOverlays != nil {
		writeOverlays = *a.WriteOverlays
	}

	opts := pipeline.BatchOptions{
		Workers: workers,
		Logger:  log.Default(),
	}
	if progressToken != nil {
		opts.Progress = func(p pipeline.Progress) {
			s.notifyProgress(progressToken, p.Done, p.Total, p.ID)
		}
	}
	if a.OutputDir != "" && writeOverlays {
		hook, err := report.OverlayWriter(filepath.Join(a.OutputDir, "overlays"), ss.cfg.Report.OverlayOpacity, nil)
		if err != nil {
			return nil, err
		}
		opts.OnResult = hook
	}

	summary, runErr := ss.analyzer.RunBatch(s.ctx, sources, opts)
	out := &AnalyzeBatchResult{
		Summary:  summary,
		Failures: report.FailureLines(summary),
	}
	if runErr != nil {
		out.Interrupted = runErr.Error()
	}

	if a.OutputDir != "" {
		files, err := report.WriteAll(a.OutputDir, summary, report.Options{BoxPlot: ss.cfg.Report.WriteBoxPlot})
		out.ReportFiles = files
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// collectSources lists explicit images first, then the supported files
// found under Directory in lexical order.
func (s *Server) collectSources(ss *session, a analyzeBatchArgs) ([]pipeline.Source, error) {
	var sources []pipeline.Source
	for _, img := range a.Images {
		if img.Path == "" {
			return nil, fmt.Errorf("image entry without path")
		}
		sources = append(sources, ss.source(s.cache, img.Path, img.Path, img.Group))
	}
	if a.Directory == "" {
		return sources, nil
	}

	found, err := imaging.ScanDirectory(a.Directory, imaging.ScanOptions{
		Extensions:          ss.cfg.Batch.Extensions,
		GroupBySubdirectory: a.GroupBySubdirectory,
		Cache:               s.cache,
		Convert:             ss.cfg.ConvertOptions(),
	})
	if err != nil {
		return nil, err
	}
	for _, src := range found {
		sources = append(sources, src)
	}
	return sources, nil
}

// === Intermediate Map Handlers ===

type mapArgs struct {
	Path string `json:"path"`
	analysisOverrides
}

// MapResult is returned by lipid_edge_map and lipid_label_map.
type MapResult struct {
	Width  int                   `json:"width"`
	Height int                   `json:"height"`
	Count  int                   `json:"count"`
	Kept   int                   `json:"droplets,omitempty"`
	Image  *imaging.EncodedImage `json:"image"`
}

func (s *Server) handleEdgeMap(args json.RawMessage) (interface{}, error) {
	var a mapArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	ss, err := s.newSession(a.analysisOverrides)
	if err != nil {
		return nil, err
	}
	img, err := ss.source(s.cache, a.Path, "", "").Open()
	if err != nil {
		return nil, err
	}
	detector, err := segmentation.NewEdgeDetector(ss.analyzer.Options().Edge)
	if err != nil {
		return nil, err
	}
	edges, err := detector.Detect(img)
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodePNG(edges.Image())
	if err != nil {
		return nil, err
	}
	return &MapResult{Width: edges.Width(), Height: edges.Height(), Count: edges.Count(), Image: encoded}, nil
}

func (s *Server) handleLabelMap(args json.RawMessage) (interface{}, error) {
	var a mapArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	ss, err := s.newSession(a.analysisOverrides)
	if err != nil {
		return nil, err
	}
	res, _, err := s.analyzeFile(ss, a.Path, "")
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodePNG(res.Labels.Image())
	if err != nil {
		return nil, err
	}
	return &MapResult{
		Width:  res.Labels.Width(),
		Height: res.Labels.Height(),
		Count:  res.Labels.Count(),
		Kept:   len(res.Droplets),
		Image:  encoded,
	}, nil
}

type overlayArgs struct {
	Path       string   `json:"path"`
	Opacity    *float64 `json:"opacity,omitempty"`
	SideBySide bool     `json:"side_by_side"`
	analysisOverrides
}

// OverlayResult is returned by lipid_overlay.
type OverlayResult struct {
	Droplets     int                   `json:"droplets"`
	AreaFraction float64               `json:"area_fraction"`
	Image        *imaging.EncodedImage `json:"image"`
}

func (s *Server) handleOverlay(args json.RawMessage) (interface{}, error) {
	var a overlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	ss, err := s.newSession(a.analysisOverrides)
	if err != nil {
		return nil, err
	}
	opacity := ss.cfg.Report.OverlayOpacity
	if a.Opacity != nil {
		if *a.Opacity < 0 || *a.Opacity > 1 {
			return nil, &segmentation.ConfigurationError{Component: "report", Field: "opacity", Reason: "must be within [0, 1]"}
		}
		opacity = *a.Opacity
	}

	res, src, err := s.analyzeFile(ss, a.Path, "")
	if err != nil {
		return nil, err
	}
	img, err := overlayImage(src, res, opacity, a.SideBySide)
	if err != nil {
		return nil, err
	}
	encoded, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{
		Droplets:     res.Summary.DropletCount,
		AreaFraction: res.Summary.AreaFraction,
		Image:        encoded,
	}, nil
}

// === Configuration Handlers ===

type configArgs struct {
	Action string `json:"action"`
	Path   string `json:"path"`
}

// ConfigResult is returned by lipid_config.
type ConfigResult struct {
	Analysis pipeline.Options       `json:"analysis"`
	Convert  imaging.ConvertOptions `json:"input"`
	YAML     string                 `json:"yaml,omitempty"`
	Written  string                 `json:"written,omitempty"`
}

func (s *Server) handleConfig(args json.RawMessage) (interface{}, error) {
	var a configArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	out := &ConfigResult{
		Analysis: s.analyzer.Options(),
		Convert:  s.cfg.ConvertOptions(),
	}

	switch a.Action {
	case "", "get":
		data, err := yaml.Marshal(s.cfg)
		if err != nil {
			return nil, fmt.Errorf("error marshaling config: %w", err)
		}
		out.YAML = string(data)
	case "write":
		if a.Path == "" {
			return nil, fmt.Errorf("write requires a path")
		}
		if err := config.SaveConfig(s.cfg, a.Path); err != nil {
			return nil, err
		}
		out.Written = a.Path
	default:
		return nil, fmt.Errorf("unknown action: %s", a.Action)
	}
	return out, nil
}
