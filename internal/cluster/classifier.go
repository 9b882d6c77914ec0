// Package cluster scores candidate point clusters for ball-likeness. The
// classifier is a pure function of its inputs: it owns no state and never
// persists anything across frames; persistence lives in the lock machine.
package cluster

import (
	"math"

	"github.com/launchlab-data/launchlab/internal/vision"
)

// Number of angular bins used for the symmetry measure.
const symmetryBins = 8

// Params holds the weighted scoring parameters for ball-likeness.
type Params struct {
	MinPoints int // Reject clusters with fewer points in the region
	MaxPoints int // Reject clusters with more points in the region

	IdealCount       int     // Dot count a well-exposed ball produces
	IdealRadiusMinPx float64 // Lower edge of the plausible ball radius band
	IdealRadiusMaxPx float64 // Upper edge of the plausible ball radius band
	BorderMarginPx   float64 // Points this close to the region edge are ignored

	CountWeight    float64
	RadiusWeight   float64
	SymmetryWeight float64

	// MaxEccentricity caps how elongated a cluster may be before its
	// quality is discounted; a ball's dot pattern is near-circular.
	MaxEccentricity float64
}

// DefaultParams returns production-default classifier parameters.
func DefaultParams() Params {
	return Params{
		MinPoints:        6,
		MaxPoints:        120,
		IdealCount:       40,
		IdealRadiusMinPx: 20,
		IdealRadiusMaxPx: 60,
		BorderMarginPx:   4,
		CountWeight:      0.3,
		RadiusWeight:     0.3,
		SymmetryWeight:   0.4,
		MaxEccentricity:  0.85,
	}
}

// BallCluster describes the best-scoring candidate cluster inside a search
// region. Derived fresh each frame from tracked points.
type BallCluster struct {
	CentroidX float64
	CentroidY float64
	RadiusPx  float64
	Count     int

	SymmetryScore float64 // How evenly points surround the centroid [0, 1]
	Eccentricity  float64 // 0 = circular, 1 = degenerate line
	QualityScore  float64 // Weighted ball-likeness [0, 1]
}

// Classify evaluates the tracked points inside the search region and returns
// the region's ball cluster, or ok=false when no acceptable cluster exists.
func Classify(points []*vision.TrackedPoint, roiCX, roiCY, roiRadius float64, p Params) (BallCluster, bool) {
	effRadius := roiRadius - p.BorderMarginPx
	if effRadius <= 0 {
		return BallCluster{}, false
	}

	// Filter to the (border-shrunk) region.
	r2 := effRadius * effRadius
	inRegion := make([]*vision.TrackedPoint, 0, len(points))
	for _, pt := range points {
		dx := pt.X - roiCX
		dy := pt.Y - roiCY
		if dx*dx+dy*dy <= r2 {
			inRegion = append(inRegion, pt)
		}
	}

	n := len(inRegion)
	if n < p.MinPoints || n > p.MaxPoints {
		return BallCluster{}, false
	}

	// Centroid.
	var cx, cy float64
	for _, pt := range inRegion {
		cx += pt.X
		cy += pt.Y
	}
	cx /= float64(n)
	cy /= float64(n)

	// Radius from the point spread. For dots distributed over a disc of
	// radius R, the RMS radial distance is R/√2, so R ≈ rms·√2.
	var sumR2 float64
	for _, pt := range inRegion {
		dx := pt.X - cx
		dy := pt.Y - cy
		sumR2 += dx*dx + dy*dy
	}
	radius := math.Sqrt(sumR2/float64(n)) * math.Sqrt2

	symmetry := symmetryScore(inRegion, cx, cy)
	ecc := eccentricity(inRegion, cx, cy)

	quality := Score(n, radius, symmetry, p)
	if ecc > p.MaxEccentricity {
		// Elongated blobs (club shafts, motion streaks) are not balls.
		quality *= (1 - ecc) / (1 - p.MaxEccentricity)
		if quality < 0 {
			quality = 0
		}
	}

	return BallCluster{
		CentroidX:     cx,
		CentroidY:     cy,
		RadiusPx:      radius,
		Count:         n,
		SymmetryScore: symmetry,
		Eccentricity:  ecc,
		QualityScore:  quality,
	}, true
}

// Score combines count-closeness-to-ideal, radius-closeness-to-the-ideal-band
// and symmetry into a single weighted quality in [0, 1].
func Score(count int, radiusPx, symmetry float64, p Params) float64 {
	countScore := 1 - math.Min(math.Abs(float64(count-p.IdealCount))/float64(p.IdealCount), 1)

	var radiusScore float64
	switch {
	case radiusPx >= p.IdealRadiusMinPx && radiusPx <= p.IdealRadiusMaxPx:
		radiusScore = 1
	case radiusPx < p.IdealRadiusMinPx:
		radiusScore = math.Max(radiusPx/p.IdealRadiusMinPx, 0)
	default:
		radiusScore = math.Max(1-(radiusPx-p.IdealRadiusMaxPx)/p.IdealRadiusMaxPx, 0)
	}

	totalWeight := p.CountWeight + p.RadiusWeight + p.SymmetryWeight
	if totalWeight <= 0 {
		return 0
	}

	q := (p.CountWeight*countScore + p.RadiusWeight*radiusScore + p.SymmetryWeight*clamp01(symmetry)) / totalWeight
	return clamp01(q)
}

// symmetryScore measures how evenly points surround the centroid by binning
// their bearings and comparing bin occupancy against a uniform spread.
func symmetryScore(points []*vision.TrackedPoint, cx, cy float64) float64 {
	var bins [symmetryBins]int
	total := 0
	for _, pt := range points {
		dx := pt.X - cx
		dy := pt.Y - cy
		if dx == 0 && dy == 0 {
			continue
		}
		angle := math.Atan2(dy, dx) + math.Pi // [0, 2π)
		bin := int(angle / (2 * math.Pi / symmetryBins))
		if bin >= symmetryBins {
			bin = symmetryBins - 1
		}
		bins[bin]++
		total++
	}
	if total == 0 {
		return 0
	}

	// Occupancy: fraction of bins holding at least one point.
	occupied := 0
	for _, c := range bins {
		if c > 0 {
			occupied++
		}
	}
	occupancy := float64(occupied) / symmetryBins

	// Balance: penalise uneven bin counts relative to a uniform spread.
	mean := float64(total) / symmetryBins
	var variance float64
	for _, c := range bins {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= symmetryBins
	balance := 1 / (1 + math.Sqrt(variance)/mean)

	return clamp01(occupancy * (0.5 + 0.5*balance))
}

// eccentricity derives elongation from the 2×2 covariance eigenvalues:
// 0 for a circular spread, approaching 1 for a line.
func eccentricity(points []*vision.TrackedPoint, cx, cy float64) float64 {
	n := float64(len(points))
	if n < 2 {
		return 0
	}

	var sxx, syy, sxy float64
	for _, pt := range points {
		dx := pt.X - cx
		dy := pt.Y - cy
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	sxx /= n
	syy /= n
	sxy /= n

	// Eigenvalues of [[sxx, sxy], [sxy, syy]].
	tr := sxx + syy
	det := sxx*syy - sxy*sxy
	disc := math.Sqrt(math.Max(tr*tr/4-det, 0))
	lMax := tr/2 + disc
	lMin := tr/2 - disc
	if lMax <= 0 {
		return 0
	}
	if lMin < 0 {
		lMin = 0
	}
	return math.Sqrt(1 - lMin/lMax)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
