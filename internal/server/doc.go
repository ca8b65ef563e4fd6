// Package server implements the MCP (Model Context Protocol) server for lipid
// droplet analysis.
//
// This package provides a JSON-RPC 2.0 server that exposes droplet
// segmentation and batch statistics through the MCP protocol, so that an
// MCP client can quantify triglyceride accumulation in micrographs.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// A lipid_analyze_batch call whose params carry _meta.progressToken receives
// one notifications/progress message per finished image before its response.
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Droplet Analysis:
//   - lipid_analyze_image: Segment one image and summarise its droplets
//   - lipid_analyze_batch: Analyse many images in parallel with group statistics
//
// Intermediate Maps:
//   - lipid_edge_map: Binary edge map
//   - lipid_label_map: Every segmented region before filtering
//   - lipid_overlay: Accepted droplets highlighted over the original
//
// Configuration:
//   - lipid_config: Show or write the active configuration
//
// Every analysis tool accepts the same optional overrides (thresholds,
// seed gap, connectivity, acceptance bounds, pixel size, channel). They apply
// to that call only; the server configuration is never modified.
//
// # Image Caching
//
// The server maintains an in-memory cache of decoded images keyed by path.
// An edge preview, a full analysis and an overlay of the same file decode it
// once. The cache persists for the lifetime of the server process.
//
// # Error Handling
//
// Tool errors are returned as JSON-RPC error responses with:
//   - code: -32602 for invalid arguments or out-of-range settings,
//     -32000 for other tool failures
//   - message: Human-readable error description
//   - data: The Go error string
//
// A batch never fails because of one image: failed images are listed in
// the result and in the written report.
//
// # Usage
//
//	cfg, err := config.LoadFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.NewWithConfig(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
