package risk

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// MonteCarloConfig holds the simulation parameters.
type MonteCarloConfig struct {
	HorizonYears float64 // T, time horizon in years
	Steps        int     // N, steps per path (252 = daily over a year)
	Paths        int     // M, number of simulated paths
	Alpha        float64 // confidence level for the loss percentile
	MaxCVaR      float64 // gate threshold: Passed iff CVaR <= MaxCVaR
	Seed         int64   // 0 = seed from wall clock
}

// DefaultMonteCarloConfig mirrors the conventional daily setup.
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		HorizonYears: 1.0,
		Steps:        252,
		Paths:        1000,
		Alpha:        0.05,
		MaxCVaR:      0.05,
	}
}

// MonteCarloModel simulates geometric Brownian motion paths calibrated from
// historical log returns and derives VaR/CVaR from the terminal prices.
//
// Volatility uses the sample standard deviation (n-1 denominator); the
// choice only matters for short windows but must stay consistent across
// calls so the gate threshold keeps its meaning.
//
// Not safe for concurrent use: each trading loop owns its own model.
type MonteCarloModel struct {
	cfg MonteCarloConfig
	rng *rand.Rand
}

// NewMonteCarloModel creates a model. With cfg.Seed == 0 the RNG is seeded
// from the wall clock; tests pass a fixed seed to get stable estimates.
func NewMonteCarloModel(cfg MonteCarloConfig) *MonteCarloModel {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MonteCarloModel{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Assess calibrates drift/volatility from the series, simulates terminal
// prices and returns the VaR/CVaR of the percentage-loss distribution.
func (m *MonteCarloModel) Assess(series types.PriceSeries) (Assessment, error) {
	closes := series.Closes()
	if len(closes) < 2 {
		return Failed(), ErrInsufficientData
	}

	mu, sigma, err := calibrate(closes, m.cfg.Steps)
	if err != nil {
		return Failed(), err
	}

	s0 := closes[len(closes)-1]
	losses := m.simulateLosses(s0, mu, sigma)

	v := percentile(losses, m.cfg.Alpha*100)
	c := tailMean(losses, v)

	return Assessment{
		VaR:    v,
		CVaR:   c,
		Passed: c <= m.cfg.MaxCVaR,
	}, nil
}

// calibrate computes annualized drift and volatility from log returns.
func calibrate(closes []float64, steps int) (mu, sigma float64, err error) {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return 0, 0, ErrDegenerateInput
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	if len(returns) > 1 {
		for _, r := range returns {
			d := r - mean
			variance += d * d
		}
		variance /= float64(len(returns) - 1) // sample std
	}

	mu = mean * float64(steps)
	sigma = math.Sqrt(variance) * math.Sqrt(float64(steps))

	if math.IsNaN(mu) || math.IsInf(mu, 0) || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return 0, 0, ErrDegenerateInput
	}
	return mu, sigma, nil
}

// simulateLosses walks M GBM paths of N steps from s0 and returns the
// percentage loss of each terminal price. With zero volatility the paths
// are deterministic, so a flat series yields exactly zero loss on every
// path instead of simulation noise.
func (m *MonteCarloModel) simulateLosses(s0, mu, sigma float64) []float64 {
	dt := m.cfg.HorizonYears / float64(m.cfg.Steps)
	drift := (mu - 0.5*sigma*sigma) * dt
	diffusion := sigma * math.Sqrt(dt)

	losses := make([]float64, m.cfg.Paths)
	for i := 0; i < m.cfg.Paths; i++ {
		price := s0
		for t := 0; t < m.cfg.Steps; t++ {
			z := 0.0
			if sigma > 0 {
				z = m.rng.NormFloat64()
			}
			price *= math.Exp(drift + diffusion*z)
		}
		losses[i] = (s0 - price) / s0
	}
	return losses
}

// percentile returns the p-th percentile (0..100) using linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// tailMean averages the losses at or beyond the VaR threshold.
func tailMean(losses []float64, threshold float64) float64 {
	sum, n := 0.0, 0
	for _, l := range losses {
		if l >= threshold {
			sum += l
			n++
		}
	}
	if n == 0 {
		return threshold
	}
	return sum / float64(n)
}
