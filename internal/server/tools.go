package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// analysisProperties are the per-call overrides shared by every analysis
// tool. Omitted values fall back to the server configuration.
func analysisProperties() map[string]interface{} {
	return map[string]interface{}{
		"low_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Hysteresis low threshold on Sobel gradient magnitude",
		},
		"high_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Hysteresis high threshold; pixels above it start an edge",
		},
		"smoothing_radius": map[string]interface{}{
			"type":        "integer",
			"description": "Gaussian smoothing half-width in pixels (0 disables)",
		},
		"polarity": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"bright", "dark", "any"},
			"description": "Whether droplets are brighter or darker than their surroundings",
		},
		"min_seed_gap": map[string]interface{}{
			"type":        "integer",
			"description": "Minimum distance from any edge for a pixel to seed a region",
		},
		"connectivity": map[string]interface{}{
			"type":        "integer",
			"enum":        []int{4, 8},
			"description": "Neighbour rule for region growth",
		},
		"min_area": map[string]interface{}{
			"type":        "integer",
			"description": "Smallest accepted droplet area in pixels",
		},
		"max_area": map[string]interface{}{
			"type":        "integer",
			"description": "Largest accepted droplet area in pixels",
		},
		"min_circularity": map[string]interface{}{
			"type":        "number",
			"description": "Smallest accepted 4*pi*area/perimeter^2, between 0 and 1",
		},
		"intensity_floor": map[string]interface{}{
			"type":        "number",
			"description": "Smallest accepted mean droplet intensity (0-255 scale)",
		},
		"exclude_border": map[string]interface{}{
			"type":        "boolean",
			"description": "Reject droplets touching the image border",
		},
		"max_aspect_ratio": map[string]interface{}{
			"type":        "number",
			"description": "Reject regions whose major/minor axis ratio exceeds this (0 disables)",
		},
		"pixel_size": map[string]interface{}{
			"type":        "number",
			"description": "Pixel side length in physical units; enables physical area and volume",
		},
		"channel": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"luminance", "red", "green", "blue", "stain"},
			"description": "Which quantity of a colour image becomes the intensity",
		},
		"max_dimension": map[string]interface{}{
			"type":        "integer",
			"description": "Downsample images whose longer side exceeds this (0 keeps full size)",
		},
		"depth": map[string]interface{}{
			"type":        "integer",
			"enum":        []int{8, 16},
			"description": "Sample scale: 8 maps to 0-255, 16 keeps 0-65535 for 16-bit images",
		},
	}
}

// withAnalysis merges the shared overrides into a tool's own properties.
func withAnalysis(props map[string]interface{}) map[string]interface{} {
	for k, v := range analysisProperties() {
		props[k] = v
	}
	return props
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions and format.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Droplet Analysis
		{
			Name: "lipid_analyze_image",
			Description: "Segment lipid droplets in one micrograph and return the per-image summary " +
				"(droplet count, total area, area fraction, intensities, volume proxy). " +
				"Optionally include per-droplet metrics and a highlighted overlay.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withAnalysis(map[string]interface{}{
					"path": pathProperty(),
					"group": map[string]interface{}{
						"type":        "string",
						"description": "Optional group label (condition or culture day)",
					},
					"include_droplets": map[string]interface{}{
						"type":        "boolean",
						"description": "Include per-droplet metrics. Default false",
						"default":     false,
					},
					"include_overlay": map[string]interface{}{
						"type":        "boolean",
						"description": "Include a base64 PNG with accepted droplets highlighted. Default false",
						"default":     false,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name: "lipid_analyze_batch",
			Description: "Analyse many micrographs in parallel and aggregate area fraction statistics " +
				"per group, with Welch t-tests between groups. Failed images are reported, not fatal. " +
				"Optionally writes CSV tables, a JSON summary, box and evolution plots and overlays to output_dir.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withAnalysis(map[string]interface{}{
					"images": map[string]interface{}{
						"type":        "array",
						"description": "Images to analyse, each with an optional group",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"path":  pathProperty(),
								"group": map[string]interface{}{"type": "string"},
							},
							"required": []string{"path"},
						},
					},
					"directory": map[string]interface{}{
						"type":        "string",
						"description": "Directory scanned recursively for supported image files",
					},
					"group_by_subdirectory": map[string]interface{}{
						"type":        "boolean",
						"description": "Use the first subdirectory below directory as the group label",
						"default":     false,
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Images analysed in parallel. Default from configuration",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory for report files; omit to skip writing",
					},
					"write_overlays": map[string]interface{}{
						"type":        "boolean",
						"description": "Write one overlay PNG per image into output_dir/overlays",
					},
				}),
			},
		},

		// Intermediate Maps
		{
			Name:        "lipid_edge_map",
			Description: "Run edge detection only and return the binary edge map as a base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withAnalysis(map[string]interface{}{
					"path": pathProperty(),
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "lipid_label_map",
			Description: "Segment an image and return every region (before filtering) in its own colour as a base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withAnalysis(map[string]interface{}{
					"path": pathProperty(),
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "lipid_overlay",
			Description: "Highlight accepted droplets over the original image and return it as a base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withAnalysis(map[string]interface{}{
					"path": pathProperty(),
					"opacity": map[string]interface{}{
						"type":        "number",
						"description": "Highlight opacity between 0 and 1. Default from configuration",
					},
					"side_by_side": map[string]interface{}{
						"type":        "boolean",
						"description": "Place the original and the overlay next to each other",
						"default":     false,
					},
				}),
				"required": []string{"path"},
			},
		},

		// Configuration
		{
			Name:        "lipid_config",
			Description: "Show the active analysis configuration, or write it as YAML to a file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"get", "write"},
						"description": "get (default) or write",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Destination file for write",
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
