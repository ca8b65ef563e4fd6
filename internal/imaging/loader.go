package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// ImageCache keeps decoded images keyed by path so that repeated analysis of
// the same micrograph (edge preview, then full analysis, then overlay) reads
// the file once.
//
// ImageCache is safe for concurrent use; batch workers share one cache.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load returns the decoded image at path, reading it from disk on first use.
//
// Supported formats are PNG, JPEG and GIF. Different spellings of the same
// path are cached separately.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear drops every cached image.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict drops one cached image. Unknown paths are ignored.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// ImageInfo describes an image file before analysis.
type ImageInfo struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Format        string `json:"format"`
	ColorDepth    string `json:"color_depth"`
	Grayscale     bool   `json:"grayscale"`
	HasAlpha      bool   `json:"has_alpha"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}

// LoadImageInfo loads path into cache and reports its dimensions and
// storage properties. Format detection uses the file extension.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	info := &ImageInfo{
		Width:         img.Bounds().Dx(),
		Height:        img.Bounds().Dy(),
		Format:        formatFromExt(path),
		ColorDepth:    "8-bit",
		FileSizeBytes: stat.Size(),
	}

	switch img.(type) {
	case *image.Gray:
		info.Grayscale = true
	case *image.Gray16:
		info.Grayscale = true
		info.ColorDepth = "16-bit"
	case *image.RGBA, *image.NRGBA:
		info.HasAlpha = true
	case *image.RGBA64, *image.NRGBA64:
		info.HasAlpha = true
		info.ColorDepth = "16-bit"
	}
	return info, nil
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	case ".tif", ".tiff":
		return "tiff"
	case ".bmp":
		return "bmp"
	default:
		return "unknown"
	}
}

// DimensionsResult contains the width and height of an image.
type DimensionsResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GetDimensions returns only the size of the image at path.
func GetDimensions(cache *ImageCache, path string) (*DimensionsResult, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &DimensionsResult{Width: b.Dx(), Height: b.Dy()}, nil
}

// FileSource supplies one image file to the analysis pipeline.
//
// Name defaults to the file's base name and Label is the optional group
// (experimental condition, culture day) used for batch comparison.
type FileSource struct {
	Path    string
	Name    string
	Label   string
	Cache   *ImageCache
	Convert ConvertOptions
}

// ID returns the identifier reported in summaries.
func (s FileSource) ID() string {
	if s.Name != "" {
		return s.Name
	}
	return filepath.Base(s.Path)
}

// Group returns the comparison group label, possibly empty.
func (s FileSource) Group() string { return s.Label }

// Open decodes the file (through the cache when one is set) and converts it
// to an intensity Image.
func (s FileSource) Open() (*Image, error) {
	cache := s.Cache
	if cache == nil {
		cache = NewImageCache()
	}
	img, err := cache.Load(s.Path)
	if err != nil {
		return nil, err
	}
	return FromImage(img, s.Convert)
}

// Release evicts the file from the cache, so a batch holds at most the
// images currently being analysed.
func (s FileSource) Release() {
	if s.Cache != nil {
		s.Cache.Evict(s.Path)
	}
}

// Decoded returns the decoded colour image behind the source, for overlays.
func (s FileSource) Decoded() (image.Image, error) {
	if s.Cache == nil {
		return NewImageCache().Load(s.Path)
	}
	return s.Cache.Load(s.Path)
}

// ScanOptions control ScanDirectory.
type ScanOptions struct {
	// Extensions lists accepted file extensions, compared case-insensitively.
	Extensions []string

	// GroupBySubdirectory labels each file with the first directory below
	// the scanned root. Files directly in the root get no group.
	GroupBySubdirectory bool

	Cache   *ImageCache
	Convert ConvertOptions
}

// ScanDirectory walks dir recursively in lexical order and returns one
// FileSource per supported file. Source names are slash-separated paths
// relative to dir, so equal file names in different folders stay distinct.
func ScanDirectory(dir string, opts ScanOptions) ([]FileSource, error) {
	accept := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		accept[strings.ToLower(e)] = true
	}

	var sources []FileSource
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !accept[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		group := ""
		if opts.GroupBySubdirectory {
			if i := strings.IndexByte(rel, '/'); i > 0 {
				group = rel[:i]
			}
		}
		sources = append(sources, FileSource{
			Path:    path,
			Name:    rel,
			Label:   group,
			Cache:   opts.Cache,
			Convert: opts.Convert,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return sources, nil
}
