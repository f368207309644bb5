package calibration

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Covariance is the estimated covariance of the parameters of a least squares solution,
// sigma^2 (J^T J)^-1 with sigma^2 = SSE / (m - n) for m residuals and n parameters.
type Covariance struct {
	Labels []string
	Matrix *mat.SymDense

	correlation *mat.SymDense
}

// ParameterCorrelation is the correlation coefficient between two parameters.
type ParameterCorrelation struct {
	First       string
	Second      string
	Coefficient float64
}

// NewCovariance computes the covariance at a solution from its m x n Jacobian and its sum of
// squared residuals. Labels may be nil, in which case parameters are named by index.
func NewCovariance(jacobian mat.Matrix, sse float64, labels []string) (*Covariance, error) {
	m, n := jacobian.Dims()
	if m <= n {
		return nil, errors.Errorf("covariance needs more residuals than parameters, have %d residuals for %d parameters", m, n)
	}
	if labels == nil {
		labels = make([]string, n)
		for i := range labels {
			labels[i] = fmt.Sprintf("p%d", i)
		}
	}
	if len(labels) != n {
		return nil, errors.Errorf("%d labels given for %d parameters", len(labels), n)
	}

	var normal mat.SymDense
	normal.SymOuterK(1, jacobian.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&normal); !ok {
		return nil, errors.New("normal matrix is singular, some parameters are not constrained by the data")
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, errors.Wrap(err, "cannot invert normal matrix")
	}

	cov := mat.NewSymDense(n, nil)
	cov.ScaleSym(sse/float64(m-n), &inv)

	// sigma^2 cancels out of the correlations, so use the unscaled inverse
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			denom := math.Sqrt(inv.At(i, i) * inv.At(j, j))
			if denom == 0 {
				continue
			}
			corr.SetSym(i, j, inv.At(i, j)/denom)
		}
	}

	return &Covariance{Labels: append([]string(nil), labels...), Matrix: cov, correlation: corr}, nil
}

// StdDev returns the standard deviation of parameter i.
func (c *Covariance) StdDev(i int) float64 {
	return math.Sqrt(c.Matrix.At(i, i))
}

// Correlation returns the correlation coefficient of parameters i and j.
func (c *Covariance) Correlation(i, j int) float64 {
	return c.correlation.At(i, j)
}

// CorrelationsAbove returns the pairs of distinct parameters whose correlation has a magnitude
// greater than threshold, strongest first.
func (c *Covariance) CorrelationsAbove(threshold float64) []ParameterCorrelation {
	var out []ParameterCorrelation
	n := len(c.Labels)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rho := c.correlation.At(i, j)
			if math.Abs(rho) > threshold {
				out = append(out, ParameterCorrelation{First: c.Labels[i], Second: c.Labels[j], Coefficient: rho})
			}
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return math.Abs(out[a].Coefficient) > math.Abs(out[b].Coefficient)
	})
	return out
}

// Summary lists the parameter standard deviations followed by the correlations whose magnitude is
// greater than threshold.
func (c *Covariance) Summary(threshold float64) string {
	var sb strings.Builder
	sb.WriteString("parameter standard deviations:\n")
	for i, label := range c.Labels {
		fmt.Fprintf(&sb, "  %s: %.6g\n", label, c.StdDev(i))
	}
	correlated := c.CorrelationsAbove(threshold)
	if len(correlated) == 0 {
		fmt.Fprintf(&sb, "no parameter correlations above %.2g\n", threshold)
		return sb.String()
	}
	fmt.Fprintf(&sb, "parameter correlations above %.2g:\n", threshold)
	for _, pc := range correlated {
		fmt.Fprintf(&sb, "  %s / %s: %.3f\n", pc.First, pc.Second, pc.Coefficient)
	}
	return sb.String()
}
