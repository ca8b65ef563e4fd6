// Package imaging turns decoded micrographs into the single-channel intensity
// grids consumed by the segmentation stages, and renders results back into
// ordinary images.
//
// Coordinates are 0-based with (0,0) at the top-left pixel, X increasing to
// the right and Y increasing downward.
//
// # Conversion
//
// FromImage reads luminance, one colour plane, or a stain mask obtained by
// HSV classification (StainMask). Large images can be downsampled with
// ConvertOptions.MaxDimension before conversion.
//
// # Loading
//
// ImageCache decodes each path once and is safe for concurrent use. A
// FileSource pairs a path with its group label and conversion options, and
// ScanDirectory lists every image below a folder, optionally grouped by the
// first sub-folder.
//
// # Rendering
//
// RenderOverlay, SideBySide and EncodePNG produce the fused droplet views
// returned to MCP clients and written to batch reports.
package imaging
