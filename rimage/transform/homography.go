package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MinHomographyPoints is the number of point pairs that fully determine a homography.
const MinHomographyPoints = 4

// ErrDegenerateHomography is returned when the point pairs do not determine a unique homography,
// for example when the points are collinear.
var ErrDegenerateHomography = errors.New("point configuration does not determine a homography")

// relative size of the smallest singular values below which a configuration is degenerate.
const degeneracyTolerance = 1e-9

// sourceConditionTolerance is the relative size of the eighth singular value of the source only
// system below which the source points are degenerate. Exactly degenerate configurations of
// measured target coordinates sit near machine precision, well conditioned ones above 1e-2.
const sourceConditionTolerance = 1e-6

// Homography is a 3x3 matrix (represented as a 2D array) used to transform a plane from the perspective of a 2D
// camera to the perspective of another 2D camera. Indices are [row][column].
type Homography [3][3]float64

// NewHomography creates a homography from a slice of 9 values in row major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	var h Homography
	for i, v := range vals {
		h[i/3][i%3] = v
	}
	return &h, nil
}

// At returns the value of the homography at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply transforms the point by the homography. Points that map to infinity return NaN coordinates.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	if z == 0 {
		return r2.Point{X: math.NaN(), Y: math.NaN()}
	}
	return r2.Point{X: x / z, Y: y / z}
}

// Inverse returns the homography mapping the other way.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.dense()); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	return homographyFromDense(&inv), nil
}

func (h *Homography) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// homographyFromDense copies a 3x3 matrix into a Homography scaled so that the bottom right
// element is 1 when possible.
func homographyFromDense(m mat.Matrix) *Homography {
	var h Homography
	scale := m.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		scale = mat.Norm(m, 2)
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r][c] = m.At(r, c) / scale
		}
	}
	return &h
}

// EstimateHomography computes the homography H such that dst[i] ~ H * src[i] in the least squares
// sense, using the normalized direct linear transform: both point sets are translated and scaled
// (Hartley normalization), the 2n x 9 system is solved with an SVD and the result is denormalized.
// The source points are taken as exact: whether they determine a homography is decided from their
// configuration alone, so noise on the destination points cannot hide a degenerate source, such as
// four points of which three are collinear.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("number of source points (%d) and destination points (%d) differ", len(src), len(dst))
	}
	if len(src) < MinHomographyPoints {
		return nil, errors.Wrapf(ErrDegenerateHomography, "need at least %d point pairs, got %d", MinHomographyPoints, len(src))
	}
	srcNorm, srcT, err := normalizePoints(src)
	if err != nil {
		return nil, errors.Wrap(err, "source points")
	}
	dstNorm, dstT, err := normalizePoints(dst)
	if err != nil {
		return nil, errors.Wrap(err, "destination points")
	}

	// mapped onto themselves, the source points have a rank 8 system exactly when any images of
	// them determine a homography
	var srcSVD mat.SVD
	if ok := srcSVD.Factorize(dltSystem(srcNorm, srcNorm), mat.SVDNone); !ok {
		return nil, errors.New("SVD factorization of the source configuration failed")
	}
	if values := srcSVD.Values(nil); values[7] <= sourceConditionTolerance*values[0] {
		return nil, errors.Wrap(ErrDegenerateHomography, "too many source points are collinear to determine a homography")
	}

	var svd mat.SVD
	if ok := svd.Factorize(dltSystem(srcNorm, dstNorm), mat.SVDFullV); !ok {
		return nil, errors.New("SVD factorization of the homography system failed")
	}
	values := svd.Values(nil)
	// the solution is unique only when the system has rank 8
	if values[7] <= degeneracyTolerance*values[0] {
		return nil, errors.Wrap(ErrDegenerateHomography, "the point pairs leave the homography underdetermined")
	}
	var v mat.Dense
	svd.VTo(&v)
	hNorm := mat.NewDense(3, 3, mat.Col(nil, 8, &v))

	// H = dstT^-1 * Hn * srcT
	var dstTInv mat.Dense
	if err := dstTInv.Inverse(dstT); err != nil {
		return nil, errors.Wrap(err, "destination normalization is not invertible")
	}
	var h mat.Dense
	h.Product(&dstTInv, hNorm, srcT)
	return homographyFromDense(&h), nil
}

// dltSystem builds the 2n x 9 direct linear transform system of the point pairs.
func dltSystem(src, dst []r2.Point) *mat.Dense {
	a := mat.NewDense(2*len(src), 9, nil)
	for i := range src {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	return a
}

// normalizePoints translates the points to their centroid and scales them so that the mean
// distance to the origin is sqrt(2). It returns the normalized points and the 3x3 transform that
// was applied. Collinear or coincident points are rejected.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, error) {
	n := float64(len(pts))
	var mu r2.Point
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1 / n)

	var meanDist, sxx, syy, sxy float64
	for _, pt := range pts {
		d := pt.Sub(mu)
		meanDist += d.Norm() / n
		sxx += d.X * d.X
		syy += d.Y * d.Y
		sxy += d.X * d.Y
	}
	if meanDist == 0 {
		return nil, nil, errors.Wrap(ErrDegenerateHomography, "all points coincide")
	}
	// smallest eigenvalue of the scatter matrix is zero for collinear points
	halfTrace := (sxx + syy) / 2
	minEig := halfTrace - math.Hypot((sxx-syy)/2, sxy)
	if minEig <= degeneracyTolerance*halfTrace {
		return nil, nil, errors.Wrap(ErrDegenerateHomography, "points are collinear")
	}

	scale := math.Sqrt2 / meanDist
	transform := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	normalized := make([]r2.Point, len(pts))
	for i, pt := range pts {
		normalized[i] = pt.Sub(mu).Mul(scale)
	}
	return normalized, transform, nil
}
