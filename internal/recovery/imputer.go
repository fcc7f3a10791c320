package recovery

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/andresuchdata/demand-recovery/internal/domain"
)

// Imputer fits a count model on the non-censored days of one pair and returns
// one imputed sales value per censored day, in order.
type Imputer interface {
	Name() string
	FitImpute(training, inference []domain.DemandObservation, rng *rand.Rand) ([]int, error)
}

// countModel is the regression behind an imputer strategy.
type countModel interface {
	Fit(x [][]float64, y []float64) error
	Predict(x [][]float64) []float64
}

// PoissonRegressionImputer serves Poisson-like pairs: it fits an L2-regularized
// Poisson GLM and draws each imputed value from Poisson(max(rate, 0)).
type PoissonRegressionImputer struct {
	Alpha   float64
	MaxIter int
}

func (p PoissonRegressionImputer) Name() string { return "poisson_regression" }

func (p PoissonRegressionImputer) FitImpute(training, inference []domain.DemandObservation, rng *rand.Rand) ([]int, error) {
	if rng == nil {
		return nil, errors.New("poisson imputer needs a random source")
	}
	rates, err := fitPredict(&PoissonRegression{Alpha: p.Alpha, MaxIter: p.MaxIter}, training, inference)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(rates))
	for i, rate := range rates {
		out[i] = PoissonSample(rng, math.Max(rate, 0))
	}
	return out, nil
}

// BoostedImputer serves the remaining pairs: gradient-boosted trees with a
// Poisson objective, rounded to the nearest non-negative integer.
type BoostedImputer struct {
	Config BoostingConfig
}

func (b BoostedImputer) Name() string { return "boosted_trees" }

func (b BoostedImputer) FitImpute(training, inference []domain.DemandObservation, _ *rand.Rand) ([]int, error) {
	preds, err := fitPredict(&BoostedPoissonRegressor{Config: b.Config}, training, inference)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(preds))
	for i, v := range preds {
		out[i] = int(math.RoundToEven(math.Max(v, 0)))
	}
	return out, nil
}

func fitPredict(model countModel, training, inference []domain.DemandObservation) ([]float64, error) {
	if len(training) == 0 {
		return nil, errors.New("no non-censored rows to train on")
	}

	enc := FitEncoder(training)
	y := make([]float64, len(training))
	for i, row := range training {
		y[i] = math.Max(float64(row.Sold), 0)
	}

	if err := model.Fit(enc.Matrix(training), y); err != nil {
		return nil, err
	}

	preds := model.Predict(enc.Matrix(inference))
	for _, v := range preds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("non-finite prediction")
		}
	}
	return preds, nil
}

// ImputePair replaces SoldCorrected on the censored days of one pair's rows.
// On failure the rows are left untouched and a *domain.PairFittingError is
// returned. It returns the number of imputed days.
func ImputePair(key domain.PairKey, rows []domain.CorrectedObservation, imp Imputer, minTrainingRows int, rng *rand.Rand) (int, error) {
	var (
		training  []domain.DemandObservation
		inference []domain.DemandObservation
		censored  []int
	)
	for i := range rows {
		if rows[i].Censored() {
			inference = append(inference, rows[i].DemandObservation)
			censored = append(censored, i)
		} else {
			training = append(training, rows[i].DemandObservation)
		}
	}

	if len(censored) == 0 {
		return 0, nil
	}
	if len(training) < minTrainingRows {
		return 0, &domain.PairFittingError{
			Key:      key,
			Strategy: imp.Name(),
			Err:      fmt.Errorf("%d non-censored rows, need %d", len(training), minTrainingRows),
		}
	}

	values, err := imp.FitImpute(training, inference, rng)
	if err != nil {
		return 0, &domain.PairFittingError{Key: key, Strategy: imp.Name(), Err: err}
	}
	if len(values) != len(censored) {
		return 0, &domain.PairFittingError{
			Key:      key,
			Strategy: imp.Name(),
			Err:      fmt.Errorf("imputer returned %d values for %d censored days", len(values), len(censored)),
		}
	}

	for i, idx := range censored {
		rows[idx].SoldCorrected = values[i]
	}
	return len(censored), nil
}
