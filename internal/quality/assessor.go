package quality

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"imagededup/internal/models"
)

const (
	// sharpnessScale is the Laplacian variance considered fully sharp
	sharpnessScale = 1000.0

	// neutralSharpness is the explicit fallback when pixels cannot be
	// decoded. A valid low-detail image scores near 0 instead, so the
	// two cases stay distinguishable (see QualityScore.SharpnessDegraded).
	neutralSharpness = 50.0

	// referenceLog normalizes the logarithmic resolution and size
	// scores: log10(100M) = 8 maps to 100 points
	referenceLog = 8.0

	// maxAnalysisDim caps the image size fed to the sharpness filter
	maxAnalysisDim = 1000

	// cornerFraction is the corner region size used for watermark
	// detection, as a fraction of each dimension
	cornerFraction = 0.1
)

// Assessor computes composite quality scores from image metadata and
// decoded pixels. All sub-scores are deterministic functions of the
// file's bytes; an Assessor is safe for concurrent use.
type Assessor struct {
	weights       models.Weights
	formatScores  map[string]float64
	edgeThreshold float64
}

// Option configures an Assessor
type Option func(*Assessor)

// WithWeights overrides the sub-score weights
func WithWeights(w models.Weights) Option {
	return func(a *Assessor) {
		a.weights = w
	}
}

// WithFormatScores overrides the format score table. Keys are
// normalized format names (jpeg, png, ...).
func WithFormatScores(scores map[string]float64) Option {
	return func(a *Assessor) {
		a.formatScores = scores
	}
}

// WithEdgeThreshold overrides the corner edge density above which a
// corner counts as a watermark indicator
func WithEdgeThreshold(t float64) Option {
	return func(a *Assessor) {
		a.edgeThreshold = t
	}
}

// NewAssessor creates an Assessor with default weights and tables
func NewAssessor(opts ...Option) *Assessor {
	a := &Assessor{
		weights: models.DefaultWeights(),
		formatScores: map[string]float64{
			"psd":  100,
			"png":  90,
			"tiff": 85,
			"bmp":  80,
			"webp": 70,
			"jpeg": 60,
			"gif":  40,
		},
		edgeThreshold: 15.0,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assess scores the image described by info, decoding its pixels from
// disk for the sharpness and watermark signals. If the pixels cannot
// be decoded the sharpness falls back to an explicit neutral score and
// watermark detection is skipped; the metadata sub-scores still apply.
func (a *Assessor) Assess(info *models.ImageInfo) *models.QualityScore {
	img, err := imaging.Open(info.Path)
	if err != nil {
		score := a.assessMetadata(info)
		score.Sharpness = neutralSharpness
		score.SharpnessDegraded = true
		score.Overall = a.combine(score)
		return score
	}
	return a.AssessDecoded(info, img)
}

// AssessDecoded scores the image using already-decoded pixels
func (a *Assessor) AssessDecoded(info *models.ImageInfo, img image.Image) *models.QualityScore {
	score := a.assessMetadata(info)

	gray := grayPixels(img)
	score.Sharpness = a.assessSharpness(gray)
	score.HasWatermark, score.WatermarkConfidence = a.detectWatermark(gray)

	score.Overall = a.combine(score)
	return score
}

// assessMetadata fills the sub-scores derivable without pixel data
func (a *Assessor) assessMetadata(info *models.ImageInfo) *models.QualityScore {
	return &models.QualityScore{
		Format:     a.formatScore(info.Format),
		Resolution: resolutionScore(info.Width, info.Height),
		Size:       sizeScore(info.FileSize, info.Format),
	}
}

// combine applies the weights and the watermark penalty, clamping the
// composite at zero
func (a *Assessor) combine(s *models.QualityScore) float64 {
	penalty := 0.0
	if s.HasWatermark {
		penalty = s.WatermarkConfidence * a.weights.Watermark * 100
	}
	overall := s.Format*a.weights.Format +
		s.Resolution*a.weights.Resolution +
		s.Size*a.weights.Size +
		s.Sharpness*a.weights.Sharpness -
		penalty
	return math.Max(0, overall)
}

func (a *Assessor) formatScore(format string) float64 {
	if score, ok := a.formatScores[models.NormalizeFormat(format)]; ok {
		return score
	}
	return 30
}

// resolutionScore maps total pixel count to [0, 100] on a log scale,
// so resolution gains diminish once an image is large enough
func resolutionScore(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	pixels := float64(width) * float64(height)
	if pixels <= 1 {
		return 0
	}
	return math.Min(100, math.Log10(pixels)/referenceLog*100)
}

// sizeScore maps byte size to [0, 100] relative to a format-specific
// expectation. Lossy formats weight size more heavily because a small
// file there usually means heavy compression.
func sizeScore(fileSize int64, format string) float64 {
	if fileSize <= 0 {
		return 0
	}
	multiplier := 1.0
	switch models.NormalizeFormat(format) {
	case "png":
		multiplier = 1.2
	case "bmp":
		multiplier = 0.8
	case "webp":
		multiplier = 1.5
	case "jpeg":
		multiplier = 2.0
	}
	logSize := math.Log10(math.Max(1, float64(fileSize)))
	return math.Min(100, logSize/referenceLog*100*multiplier)
}

// assessSharpness scores in-focus detail as the variance of a
// 4-neighbor Laplacian over the grayscale pixels. More edge response
// means more detail; the variance is scaled so sharpnessScale maps to
// a full 100.
func (a *Assessor) assessSharpness(gray [][]float64) float64 {
	h := len(gray)
	if h < 3 {
		return 0
	}
	w := len(gray[0])
	if w < 3 {
		return 0
	}

	lap := make([]float64, 0, h*w)
	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v float64
			if y > 0 && y < h-1 && x > 0 && x < w-1 {
				v = 4*gray[y][x] - gray[y-1][x] - gray[y+1][x] - gray[y][x-1] - gray[y][x+1]
			}
			lap = append(lap, v)
			sum += v
		}
	}

	mean := sum / float64(len(lap))
	var variance float64
	for _, v := range lap {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(lap))

	return math.Min(100, variance/sharpnessScale*100)
}

// detectWatermark measures edge density in the four image corners.
// Dense edges in a corner usually mean overlaid text or a logo.
// Confidence is the fraction of corners above the threshold; anything
// over a single corner flags the image.
func (a *Assessor) detectWatermark(gray [][]float64) (bool, float64) {
	h := len(gray)
	if h == 0 {
		return false, 0
	}
	w := len(gray[0])

	cw := int(float64(w) * cornerFraction)
	ch := int(float64(h) * cornerFraction)
	if cw < 10 || ch < 10 {
		return false, 0 // too small to analyze
	}

	corners := [][4]int{
		{0, 0, cw, ch},
		{w - cw, 0, w, ch},
		{0, h - ch, cw, h},
		{w - cw, h - ch, w, h},
	}

	indicators := 0
	for _, c := range corners {
		if cornerEdgeDensity(gray, c[0], c[1], c[2], c[3]) > a.edgeThreshold {
			indicators++
		}
	}

	confidence := float64(indicators) / float64(len(corners))
	return confidence > 0.25, confidence
}

// cornerEdgeDensity averages the absolute horizontal and vertical
// gradients over a rectangular region
func cornerEdgeDensity(gray [][]float64, x0, y0, x1, y1 int) float64 {
	var sumX, sumY float64
	var nX, nY int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1-1; x++ {
			sumX += math.Abs(gray[y][x+1] - gray[y][x])
			nX++
		}
	}
	for y := y0; y < y1-1; y++ {
		for x := x0; x < x1; x++ {
			sumY += math.Abs(gray[y+1][x] - gray[y][x])
			nY++
		}
	}
	if nX == 0 || nY == 0 {
		return 0
	}
	return (sumX/float64(nX) + sumY/float64(nY)) / 2
}

// grayPixels converts the image to grayscale, downscaling very large
// images first to bound the filter cost, and returns the pixels as a
// row-major float matrix
func grayPixels(img image.Image) [][]float64 {
	bounds := img.Bounds()
	if max(bounds.Dx(), bounds.Dy()) > maxAnalysisDim {
		if bounds.Dx() >= bounds.Dy() {
			img = imaging.Resize(img, maxAnalysisDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxAnalysisDim, imaging.Lanczos)
		}
	}

	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()

	pixels := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			// Grayscale output has R == G == B
			row[x] = float64(gray.NRGBAAt(b.Min.X+x, b.Min.Y+y).R)
		}
		pixels[y] = row
	}
	return pixels
}
