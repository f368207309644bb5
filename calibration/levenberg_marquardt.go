package calibration

import (
	"context"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/handeye/logging"
)

const (
	initialDamping = 1e-3
	minDamping     = 1e-12
	maxDamping     = 1e16
	// floor applied to diagonal entries of J^T J before damping so unconstrained parameters still move
	minDiagonal = 1e-12
)

// LevenbergMarquardt solves least squares problems with Marquardt-damped Gauss-Newton steps
// on a central difference Jacobian.
type LevenbergMarquardt struct {
	cfg    SolverConfig
	logger logging.Logger
}

// NewLevenbergMarquardt returns a Levenberg-Marquardt solver. Zero config values take defaults.
func NewLevenbergMarquardt(cfg SolverConfig, logger logging.Logger) *LevenbergMarquardt {
	cfg = cfg.withDefaults()
	cfg.Method = LevenbergMarquardtMethod
	return &LevenbergMarquardt{cfg: cfg, logger: logger}
}

// Solve minimizes the problem starting at x0. The context is checked once per iteration.
func (lm *LevenbergMarquardt) Solve(ctx context.Context, problem LeastSquaresProblem, x0 []float64) (SolverResult, error) {
	if err := problem.check(x0); err != nil {
		return SolverResult{}, err
	}
	m, n := problem.NumResiduals, len(x0)

	x := append([]float64(nil), x0...)
	xNew := make([]float64, n)
	residuals := make([]float64, m)
	trial := make([]float64, m)
	cost := problem.cost(x, residuals)
	result := SolverResult{InitialCost: cost}
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return SolverResult{}, newDegenerateInputError("initial cost is %v", cost)
	}

	jac := mat.NewDense(m, n, nil)
	jacSettings := &fd.JacobianSettings{Formula: fd.Central}
	var normal mat.SymDense
	gradient := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)
	damped := mat.NewSymDense(n, nil)
	var chol mat.Cholesky

	lambda := initialDamping
	status := "iteration limit reached"
	iter := 0
solve:
	for ; iter < lm.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return SolverResult{}, err
		}
		if cost == 0 {
			result.Converged = true
			status = "zero cost"
			break
		}

		fd.Jacobian(jac, problem.Residuals, x, jacSettings)
		normal.SymOuterK(1, jac.T())
		gradient.MulVec(jac.T(), mat.NewVecDense(m, residuals))
		if mat.Norm(gradient, math.Inf(1)) < lm.cfg.GradientTolerance {
			result.Converged = true
			status = "gradient tolerance reached"
			break
		}

		for {
			damped.CopySym(&normal)
			for i := 0; i < n; i++ {
				d := normal.At(i, i)
				damped.SetSym(i, i, d+lambda*math.Max(d, minDiagonal))
			}
			if ok := chol.Factorize(damped); !ok {
				lambda *= 10
				if lambda > maxDamping {
					status = "damped normal matrix is not positive definite"
					break solve
				}
				continue
			}
			if err := chol.SolveVecTo(step, gradient); err != nil {
				lm.logger.Debugw("ill conditioned step", "iteration", iter, "error", err)
			}
			step.ScaleVec(-1, step)
			stepNorm := mat.Norm(step, 2)
			xNorm := floats.Norm(x, 2)
			smallStep := stepNorm <= lm.cfg.ParameterTolerance*(xNorm+lm.cfg.ParameterTolerance)

			for i := range x {
				xNew[i] = x[i] + step.AtVec(i)
			}
			newCost := problem.cost(xNew, trial)
			if newCost < cost {
				reduction := cost - newCost
				copy(x, xNew)
				copy(residuals, trial)
				cost = newCost
				lambda = math.Max(lambda/10, minDamping)
				if reduction <= lm.cfg.FunctionTolerance*(cost+reduction) {
					result.Converged = true
					status = "function tolerance reached"
					iter++
					break solve
				}
				if smallStep {
					result.Converged = true
					status = "parameter tolerance reached"
					iter++
					break solve
				}
				break
			}

			if smallStep {
				// no further progress is possible at this resolution
				result.Converged = true
				status = "parameter tolerance reached"
				break solve
			}
			lambda *= 10
			if lambda > maxDamping {
				status = "damping limit reached"
				break solve
			}
		}
	}

	result.X = x
	result.FinalCost = cost
	result.Iterations = iter
	result.Status = status
	lm.logger.Debugw("levenberg-marquardt finished",
		"status", status, "iterations", iter, "initial_cost", result.InitialCost, "final_cost", cost)

	fd.Jacobian(jac, problem.Residuals, x, jacSettings)
	cov, err := NewCovariance(jac, cost, problem.Labels)
	if err != nil {
		lm.logger.Warnw("could not estimate parameter covariance", "error", err)
	} else {
		result.Covariance = cov
	}
	return result, nil
}
