package recovery

import (
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/andresuchdata/demand-recovery/internal/domain"
)

// PoissonSample draws from a Poisson distribution with mean lambda.
// Small means use multiplication of uniforms; larger ones use the PTRS
// transformed-rejection sampler (Hörmann, 1993).
func PoissonSample(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 || math.IsNaN(lambda) {
		return 0
	}
	if lambda < 10 {
		return poissonMult(rng, lambda)
	}
	return poissonPTRS(rng, lambda)
}

func poissonMult(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k := 0
	prod := rng.Float64()
	for prod > limit {
		k++
		prod *= rng.Float64()
	}
	return k
}

func poissonPTRS(rng *rand.Rand, lambda float64) int {
	slam := math.Sqrt(lambda)
	loglam := math.Log(lambda)
	b := 0.931 + 2.53*slam
	a := -0.059 + 0.02483*b
	invalpha := 1.1239 + 1.1328/(b-3.4)
	vr := 0.9277 - 3.6224/(b-2)

	for {
		u := rng.Float64() - 0.5
		v := rng.Float64()
		us := 0.5 - math.Abs(u)
		k := math.Floor((2*a/us+b)*u + lambda + 0.43)
		if us >= 0.07 && v <= vr {
			return int(k)
		}
		if k < 0 || (us < 0.013 && v > us) {
			continue
		}
		lg, _ := math.Lgamma(k + 1)
		if math.Log(v)+math.Log(invalpha)-math.Log(a/(us*us)+b) <= -lambda+k*loglam-lg {
			return int(k)
		}
	}
}

// PairRand returns the random source of one pair. It depends only on the run
// seed and the pair key, so results do not depend on worker scheduling.
func PairRand(seed uint64, key domain.PairKey) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(key.Store))
	h.Write([]byte{0})
	h.Write([]byte(key.Product))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}
