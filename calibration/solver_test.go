package calibration

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/handeye/logging"
)

// rosenbrock written as least squares: r = (10(x1 - x0^2), 1 - x0), plus a redundant residual so
// the covariance is defined.
func rosenbrockProblem() LeastSquaresProblem {
	return LeastSquaresProblem{
		NumResiduals: 3,
		Residuals: func(dst, x []float64) {
			dst[0] = 10 * (x[1] - x[0]*x[0])
			dst[1] = 1 - x[0]
			dst[2] = 0.5 * (1 - x[1])
		},
		Labels: []string{"a", "b"},
	}
}

func TestNewSolver(t *testing.T) {
	logger := logging.NewTestLogger(t)

	s, err := NewSolver(SolverConfig{}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, ok := s.(*LevenbergMarquardt)
	test.That(t, ok, test.ShouldBeTrue)

	s, err = NewSolver(SolverConfig{Method: "BFGS"}, logger)
	test.That(t, err, test.ShouldBeNil)
	_, ok = s.(*GonumMinimizer)
	test.That(t, ok, test.ShouldBeTrue)

	_, err = NewSolver(SolverConfig{Method: "gauss_seidel", MaxIterations: -1}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "gauss_seidel")
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_iterations")
}

func TestSolvers(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, method := range []string{LevenbergMarquardtMethod, BFGSMethod} {
		t.Run(method, func(t *testing.T) {
			solver, err := NewSolver(SolverConfig{Method: method, MaxIterations: 5000}, logger)
			test.That(t, err, test.ShouldBeNil)
			res, err := solver.Solve(context.Background(), rosenbrockProblem(), []float64{-1.2, 1})
			test.That(t, err, test.ShouldBeNil)
			test.That(t, res.X[0], test.ShouldAlmostEqual, 1, 1e-3)
			test.That(t, res.X[1], test.ShouldAlmostEqual, 1, 1e-3)
			test.That(t, res.InitialCost, test.ShouldAlmostEqual, 4.4*4.4+2.2*2.2)
			test.That(t, res.FinalCost, test.ShouldBeLessThan, 1e-6)
			test.That(t, res.Covariance, test.ShouldNotBeNil)
			test.That(t, res.Covariance.Labels, test.ShouldResemble, []string{"a", "b"})
		})
	}
}

func TestNelderMead(t *testing.T) {
	solver, err := NewSolver(SolverConfig{Method: NelderMeadMethod, MaxIterations: 5000}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	res, err := solver.Solve(context.Background(), rosenbrockProblem(), []float64{-1.2, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.FinalCost, test.ShouldBeLessThan, res.InitialCost)
	test.That(t, res.Iterations, test.ShouldBeGreaterThan, 0)
}

func TestLevenbergMarquardtIterationLimit(t *testing.T) {
	lm := NewLevenbergMarquardt(SolverConfig{MaxIterations: 1}, logging.NewTestLogger(t))
	res, err := lm.Solve(context.Background(), rosenbrockProblem(), []float64{-1.2, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Converged, test.ShouldBeFalse)
	test.That(t, res.Iterations, test.ShouldEqual, 1)
	test.That(t, res.FinalCost, test.ShouldBeLessThan, res.InitialCost)
}

func TestSolverErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	solvers := map[string]Solver{
		"lm":   NewLevenbergMarquardt(SolverConfig{}, logger),
		"bfgs": NewGonumMinimizer(SolverConfig{Method: BFGSMethod}, logger),
	}
	for name, solver := range solvers {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := solver.Solve(ctx, rosenbrockProblem(), []float64{-1.2, 1})
			test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)

			underdetermined := rosenbrockProblem()
			underdetermined.NumResiduals = 1
			_, err = solver.Solve(context.Background(), underdetermined, []float64{0, 0})
			test.That(t, errors.Is(err, ErrDegenerateInput), test.ShouldBeTrue)

			nan := rosenbrockProblem()
			nan.Residuals = func(dst, x []float64) {
				for i := range dst {
					dst[i] = math.NaN()
				}
			}
			_, err = solver.Solve(context.Background(), nan, []float64{0, 0})
			test.That(t, errors.Is(err, ErrDegenerateInput), test.ShouldBeTrue)

			badLabels := rosenbrockProblem()
			badLabels.Labels = []string{"a"}
			_, err = solver.Solve(context.Background(), badLabels, []float64{0, 0})
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}
