package calibration

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/handeye/logging"
)

// GonumMinimizer minimizes the sum of squared residuals with a general purpose method from
// gonum's optimize package: BFGS on a central difference gradient, or Nelder-Mead.
type GonumMinimizer struct {
	cfg    SolverConfig
	logger logging.Logger
}

// NewGonumMinimizer returns a minimizer for cfg.Method, which must be BFGSMethod or NelderMeadMethod.
// Any other method selects BFGS.
func NewGonumMinimizer(cfg SolverConfig, logger logging.Logger) *GonumMinimizer {
	cfg = cfg.withDefaults()
	if cfg.Method != NelderMeadMethod {
		cfg.Method = BFGSMethod
	}
	return &GonumMinimizer{cfg: cfg, logger: logger}
}

func (gm *GonumMinimizer) method() optimize.Method {
	if gm.cfg.Method == NelderMeadMethod {
		return &optimize.NelderMead{}
	}
	return &optimize.BFGS{}
}

// Solve minimizes the problem starting at x0. Once ctx is done every evaluation returns NaN,
// which stops the minimization, and ctx.Err() is returned.
func (gm *GonumMinimizer) Solve(ctx context.Context, problem LeastSquaresProblem, x0 []float64) (SolverResult, error) {
	if err := ctx.Err(); err != nil {
		return SolverResult{}, err
	}
	if err := problem.check(x0); err != nil {
		return SolverResult{}, err
	}
	scratch := make([]float64, problem.NumResiduals)
	initialCost := problem.cost(x0, scratch)
	if math.IsNaN(initialCost) || math.IsInf(initialCost, 0) {
		return SolverResult{}, newDegenerateInputError("initial cost is %v", initialCost)
	}

	sse := func(x []float64) float64 {
		if ctx.Err() != nil {
			return math.NaN()
		}
		return problem.cost(x, make([]float64, problem.NumResiduals))
	}
	p := optimize.Problem{Func: sse}
	if gm.cfg.Method == BFGSMethod {
		p.Grad = func(grad, x []float64) {
			fd.Gradient(grad, sse, x, &fd.Settings{Formula: fd.Central})
		}
	}
	settings := &optimize.Settings{
		MajorIterations:   gm.cfg.MaxIterations,
		GradientThreshold: gm.cfg.GradientTolerance,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   gm.cfg.FunctionTolerance,
			Iterations: 10,
		},
	}

	res, err := optimize.Minimize(p, x0, settings, gm.method())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return SolverResult{}, ctxErr
	}
	if res == nil {
		return SolverResult{}, errors.Wrap(err, "minimization could not start")
	}

	result := SolverResult{
		X:           res.X,
		Converged:   err == nil && res.Status.Err() == nil,
		InitialCost: initialCost,
		FinalCost:   res.F,
		Iterations:  res.MajorIterations,
		Status:      res.Status.String(),
	}
	if err != nil {
		gm.logger.Debugw("minimization stopped early", "method", gm.cfg.Method, "error", err)
	}
	gm.logger.Debugw("gonum minimizer finished", "method", gm.cfg.Method,
		"status", result.Status, "iterations", result.Iterations, "initial_cost", initialCost, "final_cost", result.FinalCost)

	jac := mat.NewDense(problem.NumResiduals, len(x0), nil)
	fd.Jacobian(jac, problem.Residuals, result.X, &fd.JacobianSettings{Formula: fd.Central})
	cov, covErr := NewCovariance(jac, result.FinalCost, problem.Labels)
	if covErr != nil {
		gm.logger.Warnw("could not estimate parameter covariance", "error", covErr)
	} else {
		result.Covariance = cov
	}
	return result, nil
}
