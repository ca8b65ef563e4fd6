// Package segmentation turns an intensity image into measured lipid droplets.
//
// The stages run in a fixed order, each a pure transformation of the
// previous stage's output:
//
//	EdgeDetector.Detect   Image            -> EdgeMap
//	Engine.Segment        Image + EdgeMap  -> LabelMap
//	Filter.Apply          LabelMap + Image -> []Droplet
//	MeasureAll            []Droplet        -> []Metrics
//
// # Configuration
//
// Every stage is built from an options struct that is validated once by its
// constructor (NewEdgeDetector, NewEngine, NewFilter). Invalid options yield a
// *ConfigurationError; built stages hold no mutable state and may be shared
// between goroutines.
//
// # Coordinates
//
// (0,0) is the top-left pixel. Bounds use an inclusive (X1,Y1) and an
// exclusive (X2,Y2) corner.
//
// # Errors
//
//   - *InvalidImageError (errors.Is ErrInvalidImage): empty image or NaN/Inf samples
//   - *SegmentationError (errors.Is ErrSegmentation): a map whose dimensions
//     differ from the image, or a growth run that exhausted its iteration
//     guard (additionally errors.Is ErrIterationLimit)
//   - *ConfigurationError (errors.Is ErrConfiguration): rejected options
package segmentation
