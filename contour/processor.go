// Package contour implements geometric proof processing and verification
// for ledger transactions. A proof is a set of points in a configured
// dimensionality; acceptance is decided either by a remote oracle or, after
// the oracle has failed once, by a local approximate check.
package contour

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/sha3"
)

// Contour algorithms understood by the processor.
const (
	AlgorithmBezier  = "bezier"
	AlgorithmSpline  = "spline"
	AlgorithmVoronoi = "voronoi"
)

// curveSamples is the number of points generated along a computed curve.
const curveSamples = 100

var ErrUnknownAlgorithm = errors.New("contour: unknown algorithm")

// Data is the geometric proof payload attached to a transaction.
// Coordinates are expected in [-1, 1] per dimension.
type Data struct {
	Points    [][]float64 `json:"points"`
	Algorithm string      `json:"algorithm"`
}

// Params bound what the processor accepts.
type Params struct {
	Dimensions    int
	Precision     float64
	Tolerance     float64
	MinComplexity float64
}

// Processor accumulates points and computes contours from them.
type Processor struct {
	params Params
	points [][]float64
}

func NewProcessor(params Params) *Processor {
	return &Processor{params: params}
}

// AddPoint appends a point, rejecting wrong dimensionality, non-finite
// coordinates and coordinates outside the tolerance-widened unit range.
func (p *Processor) AddPoint(point []float64) error {
	if len(point) != p.params.Dimensions {
		return fmt.Errorf("contour: point has %d dimensions, want %d", len(point), p.params.Dimensions)
	}
	bound := 1 + p.params.Tolerance
	for _, c := range point {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return errors.New("contour: non-finite coordinate")
		}
		if c < -bound || c > bound {
			return fmt.Errorf("contour: coordinate %v outside [-%v, %v]", c, bound, bound)
		}
	}
	p.points = append(p.points, append([]float64(nil), point...))
	return nil
}

// Reset clears accumulated points.
func (p *Processor) Reset() {
	p.points = p.points[:0]
}

// Contour computes the curve for the named algorithm over the accumulated
// points.
func (p *Processor) Contour(algorithm string) ([][]float64, error) {
	switch algorithm {
	case AlgorithmBezier, AlgorithmSpline:
		// The spline path reduces to the same control-point interpolation.
		return p.bezier(), nil
	case AlgorithmVoronoi:
		out := make([][]float64, len(p.points))
		for i, pt := range p.points {
			out[i] = append([]float64(nil), pt...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

func (p *Processor) bezier() [][]float64 {
	if len(p.points) < 2 {
		out := make([][]float64, len(p.points))
		for i, pt := range p.points {
			out[i] = append([]float64(nil), pt...)
		}
		return out
	}
	curve := make([][]float64, 0, curveSamples)
	for i := 0; i < curveSamples; i++ {
		t := float64(i) / float64(curveSamples-1)
		curve = append(curve, p.bezierPoint(p.points, t))
	}
	return curve
}

// bezierPoint evaluates the curve at t by de Casteljau reduction.
func (p *Processor) bezierPoint(control [][]float64, t float64) []float64 {
	if len(control) == 1 {
		return append([]float64(nil), control[0]...)
	}
	next := make([][]float64, len(control)-1)
	for i := 0; i < len(control)-1; i++ {
		pt := make([]float64, p.params.Dimensions)
		for d := 0; d < p.params.Dimensions; d++ {
			pt[d] = (1-t)*control[i][d] + t*control[i+1][d]
		}
		next[i] = pt
	}
	return p.bezierPoint(next, t)
}

// Complexity scores a proof on a 0-100 scale from its point count and
// algorithm. Points closer together than the configured precision are
// treated as a single point.
func (p *Processor) Complexity(algorithm string) float64 {
	distinct := p.distinctPoints()
	base := 60 + float64(distinct)/10
	factor := 1.0
	switch algorithm {
	case AlgorithmSpline:
		factor = 1.2
	case AlgorithmVoronoi:
		factor = 1.5
	}
	return math.Min(100, base*factor)
}

func (p *Processor) distinctPoints() int {
	if len(p.points) == 0 {
		return 0
	}
	distinct := 1
	for i := 1; i < len(p.points); i++ {
		var sq float64
		for d := 0; d < p.params.Dimensions; d++ {
			delta := p.points[i][d] - p.points[i-1][d]
			sq += delta * delta
		}
		if math.Sqrt(sq) >= p.params.Precision {
			distinct++
		}
	}
	return distinct
}

// Hash returns the hex SHA3-256 digest of a computed curve.
func Hash(curve [][]float64) string {
	data, _ := json.Marshal(curve)
	sum := sha3.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
