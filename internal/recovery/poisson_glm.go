package recovery

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularHessian is returned when the Newton system cannot be factorized.
var ErrSingularHessian = errors.New("poisson regression: hessian is not positive definite")

const (
	maxLinearPredictor = 700.0
	glmGradientTol     = 1e-8
	glmMaxHalvings     = 40
)

// PoissonRegression is a log-link Poisson GLM with an L2 penalty on the
// coefficients (the intercept is not penalized). It minimizes
//
//	1/n * sum(exp(eta) - y*eta) + alpha/2 * ||w||^2
//
// with damped Newton steps.
type PoissonRegression struct {
	Alpha   float64
	MaxIter int

	intercept float64
	coef      []float64
	zero      bool
}

// Fit estimates the coefficients from the feature matrix x and counts y.
func (r *PoissonRegression) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 {
		return errors.New("poisson regression: no training rows")
	}
	if len(y) != n {
		return fmt.Errorf("poisson regression: %d rows but %d targets", n, len(y))
	}

	mean := floats.Sum(y) / float64(n)
	if mean <= 0 {
		// All-zero target: the rate is zero everywhere.
		r.zero = true
		r.coef = make([]float64, len(x[0]))
		return nil
	}

	p := len(x[0]) + 1
	beta := make([]float64, p)
	beta[0] = math.Log(mean)

	maxIter := r.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}

	eta := make([]float64, n)
	mu := make([]float64, n)
	grad := make([]float64, p)
	hess := make([]float64, p*p)
	row := make([]float64, p)
	candidate := make([]float64, p)

	loss := r.objective(x, y, beta, eta, mu)
	for iter := 0; iter < maxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		for j := range hess {
			hess[j] = 0
		}

		for i := 0; i < n; i++ {
			row[0] = 1
			copy(row[1:], x[i])
			resid := (mu[i] - y[i]) / float64(n)
			weight := mu[i] / float64(n)
			for a := 0; a < p; a++ {
				if row[a] == 0 {
					continue
				}
				grad[a] += resid * row[a]
				wa := weight * row[a]
				for b := a; b < p; b++ {
					hess[a*p+b] += wa * row[b]
				}
			}
		}
		for a := 1; a < p; a++ {
			grad[a] += r.Alpha * beta[a]
			hess[a*p+a] += r.Alpha
		}
		for a := 0; a < p; a++ {
			for b := 0; b < a; b++ {
				hess[a*p+b] = hess[b*p+a]
			}
		}

		if floats.Norm(grad, math.Inf(1)) < glmGradientTol {
			break
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(mat.NewSymDense(p, hess)); !ok {
			return ErrSingularHessian
		}
		var step mat.VecDense
		if err := chol.SolveVecTo(&step, mat.NewVecDense(p, grad)); err != nil {
			return fmt.Errorf("poisson regression: solve newton step: %w", err)
		}

		t := 1.0
		improved := false
		for h := 0; h < glmMaxHalvings; h++ {
			for j := range candidate {
				candidate[j] = beta[j] - t*step.AtVec(j)
			}
			next := r.objective(x, y, candidate, eta, mu)
			if next <= loss {
				copy(beta, candidate)
				improved = loss-next > 1e-14*math.Max(1, math.Abs(loss))
				loss = next
				break
			}
			t /= 2
		}
		// Leave eta/mu consistent with beta for the next gradient.
		loss = r.objective(x, y, beta, eta, mu)
		if !improved {
			break
		}
	}

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return errors.New("poisson regression: objective diverged")
	}

	r.intercept = beta[0]
	r.coef = append([]float64(nil), beta[1:]...)
	return nil
}

func (r *PoissonRegression) objective(x [][]float64, y, beta, eta, mu []float64) float64 {
	n := float64(len(x))
	total := 0.0
	for i := range x {
		eta[i] = math.Min(beta[0]+floats.Dot(beta[1:], x[i]), maxLinearPredictor)
		mu[i] = math.Exp(eta[i])
		total += mu[i] - y[i]*eta[i]
	}
	penalty := 0.0
	for _, b := range beta[1:] {
		penalty += b * b
	}
	return total/n + r.Alpha/2*penalty
}

// Predict returns the expected count for each row.
func (r *PoissonRegression) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	if r.zero {
		return out
	}
	for i := range x {
		out[i] = math.Exp(math.Min(r.intercept+floats.Dot(r.coef, x[i]), maxLinearPredictor))
	}
	return out
}
