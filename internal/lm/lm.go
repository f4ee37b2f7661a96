// Package lm implements a damped Gauss-Newton (Levenberg-Marquardt) solver for nonlinear least squares.
package lm

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Status describes why the solver stopped.
type Status int

const (
	// MaxIterationsReached means the iteration budget ran out.
	MaxIterationsReached Status = iota
	// FunctionConverged means the relative cost reduction fell below FunctionTolerance.
	FunctionConverged
	// StepConverged means the update became negligible relative to the parameters.
	StepConverged
	// GradientConverged means the gradient vanished.
	GradientConverged
	// DampingSaturated means no step reduced the cost even under maximal damping.
	DampingSaturated
)

func (s Status) String() string {
	switch s {
	case MaxIterationsReached:
		return "max iterations reached"
	case FunctionConverged:
		return "function converged"
	case StepConverged:
		return "step converged"
	case GradientConverged:
		return "gradient converged"
	case DampingSaturated:
		return "damping saturated"
	}
	return "unknown"
}

// Problem is a least squares problem: minimize the sum of squared residuals over x.
type Problem struct {
	// Residuals fills dst, of length M, with the residuals evaluated at x. It must not modify x.
	Residuals func(dst, x []float64)
	// M is the number of residuals.
	M int
	// Jacobian fills the M x len(x) matrix of residual derivatives. When nil the Jacobian is
	// estimated with central finite differences.
	Jacobian func(dst *mat.Dense, x []float64)
}

// Settings control the solver. Zero fields take their defaults.
type Settings struct {
	MaxIterations     int
	InitialDamping    float64
	FunctionTolerance float64
	StepTolerance     float64
	GradientTolerance float64
}

// DefaultSettings returns the settings used when nil is passed to Minimize.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:     100,
		InitialDamping:    1e-3,
		FunctionTolerance: 1e-12,
		StepTolerance:     1e-12,
		GradientTolerance: 1e-14,
	}
}

func (s *Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s == nil {
		return def
	}
	out := *s
	if out.MaxIterations <= 0 {
		out.MaxIterations = def.MaxIterations
	}
	if out.InitialDamping <= 0 {
		out.InitialDamping = def.InitialDamping
	}
	if out.FunctionTolerance <= 0 {
		out.FunctionTolerance = def.FunctionTolerance
	}
	if out.StepTolerance <= 0 {
		out.StepTolerance = def.StepTolerance
	}
	if out.GradientTolerance <= 0 {
		out.GradientTolerance = def.GradientTolerance
	}
	return out
}

// Result is the outcome of a minimization.
type Result struct {
	X          []float64
	Cost       float64 // sum of squared residuals at X
	Residuals  []float64
	Iterations int
	Status     Status
}

const (
	maxDamping    = 1e16
	minDamping    = 1e-15
	dampingFactor = 10
)

// Minimize runs Levenberg-Marquardt from x0 with Marquardt's diagonal scaling. The returned
// parameters never have a higher cost than x0.
func Minimize(p Problem, x0 []float64, settings *Settings) (*Result, error) {
	if p.Residuals == nil {
		return nil, errors.New("problem has no residual function")
	}
	n := len(x0)
	if n == 0 {
		return nil, errors.New("no parameters to optimize")
	}
	if p.M < n {
		return nil, errors.Errorf("underdetermined problem: %d residuals for %d parameters", p.M, n)
	}
	s := settings.withDefaults()

	x := append([]float64{}, x0...)
	r := make([]float64, p.M)
	p.Residuals(r, x)
	cost := floats.Dot(r, r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, errors.New("residuals are not finite at the initial point")
	}

	jac := mat.NewDense(p.M, n, nil)
	jacobian := p.Jacobian
	if jacobian == nil {
		jacobian = func(dst *mat.Dense, x []float64) {
			fd.Jacobian(dst, p.Residuals, x, &fd.JacobianSettings{Formula: fd.Central})
		}
	}

	res := &Result{Status: MaxIterationsReached}
	mu := s.InitialDamping
	xNew := make([]float64, n)
	rNew := make([]float64, p.M)
	var jtj mat.SymDense
	var grad, delta mat.VecDense
	for res.Iterations < s.MaxIterations {
		res.Iterations++
		jacobian(jac, x)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(p.M, r))
		if mat.Norm(&grad, math.Inf(1)) <= s.GradientTolerance {
			res.Status = GradientConverged
			break
		}

		maxDiag := 0.
		for i := 0; i < n; i++ {
			maxDiag = math.Max(maxDiag, jtj.At(i, i))
		}
		floor := math.Max(maxDiag*1e-12, 1e-300)

		accepted := false
		for !accepted && mu <= maxDamping {
			a := mat.NewSymDense(n, nil)
			a.CopySym(&jtj)
			for i := 0; i < n; i++ {
				a.SetSym(i, i, jtj.At(i, i)+mu*math.Max(jtj.At(i, i), floor))
			}
			var chol mat.Cholesky
			if ok := chol.Factorize(a); !ok {
				mu *= dampingFactor
				continue
			}
			if err := chol.SolveVecTo(&delta, &grad); err != nil {
				mu *= dampingFactor
				continue
			}
			for i := 0; i < n; i++ {
				xNew[i] = x[i] - delta.AtVec(i)
			}
			p.Residuals(rNew, xNew)
			costNew := floats.Dot(rNew, rNew)
			if math.IsNaN(costNew) || costNew >= cost {
				mu *= dampingFactor
				continue
			}

			accepted = true
			reduction := (cost - costNew) / math.Max(cost, 1e-300)
			copy(x, xNew)
			copy(r, rNew)
			cost = costNew
			mu = math.Max(mu/dampingFactor, minDamping)
			switch {
			case mat.Norm(&delta, 2) <= s.StepTolerance*(floats.Norm(x, 2)+s.StepTolerance):
				res.Status = StepConverged
			case reduction <= s.FunctionTolerance:
				res.Status = FunctionConverged
			}
		}
		if !accepted {
			res.Status = DampingSaturated
			break
		}
		if res.Status != MaxIterationsReached {
			break
		}
	}

	res.X = x
	res.Cost = cost
	res.Residuals = r
	return res, nil
}
