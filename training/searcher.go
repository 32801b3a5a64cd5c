package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/model"
)

// Searcher finds the best model for a set of labeled rows within a time
// budget.
type Searcher interface {
	Search(ctx context.Context, rows []Example, budget time.Duration) (*SearchResult, error)
}

// Candidate is one model configuration tried by a search.
type Candidate struct {
	Kind      model.Kind
	Softmax   model.SoftmaxParams
	MLP       model.MLPParams
	Sharpness []float64
}

func (c Candidate) String() string {
	switch c.Kind {
	case model.KindSoftmax:
		return fmt.Sprintf("softmax(lr=%g, l2=%g, epochs=%d)", c.Softmax.LearningRate, c.Softmax.L2, c.Softmax.Epochs)
	case model.KindMLP:
		return fmt.Sprintf("mlp(hidden=%d, lr=%g, l2=%g, epochs=%d)", c.MLP.Hidden, c.MLP.LearningRate, c.MLP.L2, c.MLP.Epochs)
	default:
		return fmt.Sprintf("templates(sharpness=%v)", c.Sharpness)
	}
}

// Fit trains the candidate on x and y.
func (c Candidate) Fit(ctx context.Context, x [][]float64, y []int) (model.Predictor, error) {
	switch c.Kind {
	case model.KindSoftmax:
		return model.FitSoftmax(ctx, x, y, c.Softmax)
	case model.KindMLP:
		return model.FitMLP(ctx, x, y, c.MLP)
	case model.KindTemplates:
		return model.FitTemplates(ctx, x, y, c.Sharpness)
	}
	return nil, fmt.Errorf("unknown model kind %q", c.Kind)
}

// Trial records the outcome of one candidate.
type Trial struct {
	Candidate Candidate
	LogLoss   float64 // on the holdout rows
	Duration  time.Duration
}

// SearchResult is the best model found, refit on every row.
type SearchResult struct {
	Best      model.Predictor
	BestTrial Trial
	Trials    []Trial
}

// SearchConfig holds random search configuration
type SearchConfig struct {
	Seed            uint64  `json:"seed" yaml:"seed"`
	HoldoutFraction float64 `json:"holdout_fraction" yaml:"holdout_fraction"`
	MaxTrials       int     `json:"max_trials" yaml:"max_trials"` // 0 runs until the budget is spent
}

// DefaultSearchConfig returns default random search configuration
func DefaultSearchConfig() *SearchConfig {
	return &SearchConfig{
		Seed:            42,
		HoldoutFraction: 0.2,
		MaxTrials:       0,
	}
}

// minHoldoutRows is the smallest dataset that gets a separate holdout.
// Smaller sets are scored on their training rows.
const minHoldoutRows = 5

// RandomSearch evaluates the default configuration of every model family
// and then random configurations until the budget runs out. The first trial
// always runs to completion.
type RandomSearch struct {
	config *SearchConfig
	logger logging.Logger
}

// NewRandomSearch creates a random search
func NewRandomSearch(config *SearchConfig) *RandomSearch {
	if config == nil {
		config = DefaultSearchConfig()
	}
	return &RandomSearch{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "random_search",
		}),
	}
}

// Search implements Searcher.
func (s *RandomSearch) Search(ctx context.Context, rows []Example, budget time.Duration) (*SearchResult, error) {
	logger := s.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Search",
		"rows":     len(rows),
		"budget":   budget.String(),
	})
	if len(rows) == 0 {
		return nil, errors.New("no training rows")
	}
	if s.config.HoldoutFraction < 0 || s.config.HoldoutFraction >= 1 {
		return nil, fmt.Errorf("holdout fraction %g outside [0, 1)", s.config.HoldoutFraction)
	}

	rng := rand.New(rand.NewPCG(s.config.Seed, s.config.Seed^0xda942042e4dd58b5))
	trainX, trainY, holdX, holdY := s.split(rng, rows)

	deadline := time.Now().Add(budget)
	searchCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	result := &SearchResult{}
	bestLoss := math.Inf(1)
	var best Candidate
	for i := 0; s.config.MaxTrials <= 0 || i < s.config.MaxTrials; i++ {
		trialCtx := searchCtx
		if i == 0 {
			trialCtx = ctx
		} else if searchCtx.Err() != nil {
			break
		}

		candidate := s.candidate(rng, i)
		start := time.Now()
		p, err := candidate.Fit(trialCtx, trainX, trainY)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if i > 0 && errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("trial %d %s: %w", i, candidate, err)
		}
		probs, err := model.PredictAll(p, holdX)
		if err != nil {
			return nil, fmt.Errorf("trial %d %s: %w", i, candidate, err)
		}
		loss, err := stats.LogLoss(probs, holdY)
		if err != nil {
			return nil, fmt.Errorf("trial %d %s: %w", i, candidate, err)
		}

		trial := Trial{Candidate: candidate, LogLoss: loss, Duration: time.Since(start)}
		result.Trials = append(result.Trials, trial)
		logger.Debug("Trial finished", logging.Fields{
			"trial":    i,
			"model":    candidate.String(),
			"log_loss": loss,
		})
		if loss < bestLoss {
			bestLoss, best = loss, candidate
			result.BestTrial = trial
		}
	}

	x, y := Features(rows)
	refit, err := best.Fit(ctx, x, y)
	if err != nil {
		return nil, fmt.Errorf("refit %s: %w", best, err)
	}
	result.Best = refit

	logger.Info("Search finished", logging.Fields{
		"trials":   len(result.Trials),
		"best":     refit.Describe(),
		"log_loss": bestLoss,
	})
	return result, nil
}

// split shuffles rows and holds out a share of them for scoring.
func (s *RandomSearch) split(rng *rand.Rand, rows []Example) (trainX [][]float64, trainY []int, holdX [][]float64, holdY []int) {
	x, y := Features(rows)
	holdout := int(float64(len(rows)) * s.config.HoldoutFraction)
	if len(rows) < minHoldoutRows || holdout == 0 {
		return x, y, x, y
	}
	perm := rng.Perm(len(rows))
	for k, i := range perm {
		if k < holdout {
			holdX = append(holdX, x[i])
			holdY = append(holdY, y[i])
		} else {
			trainX = append(trainX, x[i])
			trainY = append(trainY, y[i])
		}
	}
	return trainX, trainY, holdX, holdY
}

// candidate returns the configuration of trial i. The first three trials
// use the family defaults.
func (s *RandomSearch) candidate(rng *rand.Rand, i int) Candidate {
	sharpness := []float64{5, 10, 20, 40, 80}
	switch i {
	case 0:
		return Candidate{Kind: model.KindTemplates, Sharpness: sharpness}
	case 1:
		return Candidate{Kind: model.KindSoftmax, Softmax: model.DefaultSoftmaxParams()}
	case 2:
		return Candidate{Kind: model.KindMLP, MLP: model.DefaultMLPParams()}
	}

	logUniform := func(lo, hi float64) float64 {
		return math.Exp(math.Log(lo) + rng.Float64()*(math.Log(hi)-math.Log(lo)))
	}
	if rng.IntN(2) == 0 {
		return Candidate{Kind: model.KindSoftmax, Softmax: model.SoftmaxParams{
			LearningRate: logUniform(0.05, 2),
			L2:           logUniform(1e-6, 1e-2),
			Epochs:       []int{200, 400, 800}[rng.IntN(3)],
		}}
	}
	return Candidate{Kind: model.KindMLP, MLP: model.MLPParams{
		Hidden:       []int{12, 24, 48}[rng.IntN(3)],
		LearningRate: logUniform(0.05, 1),
		L2:           logUniform(1e-6, 1e-2),
		Epochs:       []int{300, 600, 1000}[rng.IntN(3)],
		Seed:         rng.Uint64(),
	}}
}
