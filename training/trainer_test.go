package training

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-chords/algorithms/stats"
	"github.com/RyanBlaney/sonido-chords/model"
	"github.com/RyanBlaney/sonido-chords/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searcherFunc func(ctx context.Context, rows []Example, budget time.Duration) (*SearchResult, error)

func (f searcherFunc) Search(ctx context.Context, rows []Example, budget time.Duration) (*SearchResult, error) {
	return f(ctx, rows, budget)
}

type progressLog struct {
	mu      sync.Mutex
	percent []int
	steps   []string
}

func (l *progressLog) record(percent int, step string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.percent = append(l.percent, percent)
	l.steps = append(l.steps, step)
}

func (l *progressLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.percent)
}

type trainFixture struct {
	req     TrainRequest
	store   *model.Store
	trainer *Trainer
}

func newTrainFixture(t *testing.T, searcher Searcher) *trainFixture {
	t.Helper()
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.csv")
	testPath := filepath.Join(dir, "test.csv")
	require.NoError(t, WriteTableFile(trainPath, triadRows(6, 10)))
	require.NoError(t, WriteTableFile(testPath, triadRows(3, 11)))

	userDir := filepath.Join(dir, "stored")
	writeClip(t, filepath.Join(userDir, "G", "G_1.wav"), gChord)

	fs, err := storage.NewLocal(filepath.Join(dir, "models"))
	require.NoError(t, err)
	store := model.NewStore(fs)

	cfg := DefaultTrainerConfig()
	cfg.TickInterval = time.Millisecond
	tr := NewTrainer(cfg, searcher, store, testDecoder())

	return &trainFixture{
		req: TrainRequest{
			OriginalTrainPath: trainPath,
			OriginalTestPath:  testPath,
			UserDataDir:       userDir,
			TimeoutSeconds:    60,
		},
		store:   store,
		trainer: tr,
	}
}

func templatesOnly() Searcher {
	cfg := DefaultSearchConfig()
	cfg.MaxTrials = 1
	return NewRandomSearch(cfg)
}

func TestRandomSearchFindsAccurateModel(t *testing.T) {
	cfg := DefaultSearchConfig()
	cfg.MaxTrials = 3
	rows := triadRows(10, 5)

	result, err := NewRandomSearch(cfg).Search(context.Background(), rows, time.Minute)
	require.NoError(t, err)
	require.Len(t, result.Trials, 3)
	assert.Equal(t, model.KindTemplates, result.Trials[0].Candidate.Kind)
	assert.Equal(t, model.KindSoftmax, result.Trials[1].Candidate.Kind)
	assert.Equal(t, model.KindMLP, result.Trials[2].Candidate.Kind)
	require.NotNil(t, result.Best)
	assert.Equal(t, result.BestTrial.Candidate.Kind, result.Best.Kind())
	for _, trial := range result.Trials {
		assert.GreaterOrEqual(t, trial.LogLoss, result.BestTrial.LogLoss)
	}

	x, y := Features(triadRows(5, 6))
	probs, err := model.PredictAll(result.Best, x)
	require.NoError(t, err)
	acc, err := stats.Accuracy(probs, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.9)
}

func TestRandomSearchRunsOneTrialWithoutBudget(t *testing.T) {
	result, err := NewRandomSearch(nil).Search(context.Background(), triadRows(2, 7), 0)
	require.NoError(t, err)
	require.Len(t, result.Trials, 1)
	assert.Equal(t, model.KindTemplates, result.Best.Kind())
}

func TestRandomSearchErrors(t *testing.T) {
	_, err := NewRandomSearch(nil).Search(context.Background(), nil, time.Second)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultSearchConfig()
	cfg.MaxTrials = 2
	_, err = NewRandomSearch(cfg).Search(ctx, triadRows(2, 8), time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainerSavesArtifact(t *testing.T) {
	f := newTrainFixture(t, templatesOnly())
	created := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	f.trainer.now = func() time.Time { return created }

	log := &progressLog{}
	art, err := f.trainer.Train(context.Background(), f.req, log.record)
	require.NoError(t, err)

	assert.Equal(t, model.FormatName(art.Metadata), art.Name)
	assert.Contains(t, art.Name, "20240305140709S60L")
	assert.Equal(t, 6*10+1, art.Metadata.TrainingRows)
	assert.NotEmpty(t, art.Metadata.RunID)
	assert.Greater(t, art.Metadata.MicroAccuracy, 0.9)

	parsed, err := model.ParseName(art.Name)
	require.NoError(t, err)
	assert.True(t, created.Equal(parsed.CreatedAt))
	assert.Equal(t, 60, parsed.TrainingTimeoutSeconds)
	assert.Equal(t, model.RoundLoss(art.Metadata.ValidationLogLoss), parsed.ValidationLogLoss)

	entries, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, art.Name, entries[0].Name)

	rows, err := ReadTableFile(filepath.Join(f.req.UserDataDir, DefaultTableName))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NotEmpty(t, log.percent)
	assert.Equal(t, StepStarting, log.steps[0])
	assert.Equal(t, 0, log.percent[0])
	last := len(log.percent) - 1
	assert.Equal(t, 100, log.percent[last])
	assert.Equal(t, StepFinished, log.steps[last])
	for i := 1; i < len(log.percent); i++ {
		assert.GreaterOrEqual(t, log.percent[i], log.percent[i-1])
	}
	for i := 0; i < last; i++ {
		assert.Less(t, log.percent[i], 100)
	}

	var steps []string
	for _, s := range log.steps {
		if len(steps) == 0 || steps[len(steps)-1] != s {
			steps = append(steps, s)
		}
	}
	assert.Equal(t, []string{
		StepStarting, StepGenerating, StepReading, StepSearching,
		StepEvaluating, StepCrossEval, StepSaving, StepFinished,
	}, steps)

	n := log.len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, log.len(), "progress reported after completion")
}

func TestTrainerNamesArtifactByStartTime(t *testing.T) {
	f := newTrainFixture(t, templatesOnly())
	started := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	calls := 0
	f.trainer.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return started.Add(time.Duration(calls-1) * 90 * time.Second)
	}

	art, err := f.trainer.Train(context.Background(), f.req, nil)
	require.NoError(t, err)
	assert.True(t, started.Equal(art.Metadata.CreatedAt), "created at %s", art.Metadata.CreatedAt)
	assert.True(t, strings.HasPrefix(art.Name, "20240305140000S60L"), art.Name)
}

func TestTrainerFailureStopsProgress(t *testing.T) {
	boom := errors.New("search exploded")
	f := newTrainFixture(t, searcherFunc(func(ctx context.Context, rows []Example, budget time.Duration) (*SearchResult, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, boom
	}))

	log := &progressLog{}
	_, err := f.trainer.Train(context.Background(), f.req, log.record)
	require.ErrorIs(t, err, ErrTrainingFailure)
	assert.ErrorIs(t, err, boom)

	n := log.len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, log.len(), "progress reported after failure")
	assert.Equal(t, StepSearching, log.steps[n-1])
	assert.NotContains(t, log.percent, 100)

	entries, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTrainerMissingTestTable(t *testing.T) {
	f := newTrainFixture(t, templatesOnly())
	f.req.OriginalTestPath = filepath.Join(t.TempDir(), "missing.csv")

	log := &progressLog{}
	_, err := f.trainer.Train(context.Background(), f.req, log.record)
	require.ErrorIs(t, err, ErrTrainingFailure)
	assert.Equal(t, StepReading, log.steps[len(log.steps)-1])

	entries, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTrainerRejectsBadRequest(t *testing.T) {
	f := newTrainFixture(t, templatesOnly())
	req := f.req
	req.TimeoutSeconds = 0

	called := false
	_, err := f.trainer.Train(context.Background(), req, func(int, string) { called = true })
	assert.ErrorIs(t, err, ErrTrainingFailure)
	assert.False(t, called)
}

func TestTrainerCanceled(t *testing.T) {
	f := newTrainFixture(t, templatesOnly())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.trainer.Train(ctx, f.req, nil)
	assert.ErrorIs(t, err, ErrTrainingFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestElapsedPercent(t *testing.T) {
	tests := []struct {
		elapsed, timeout time.Duration
		want             int
	}{
		{0, time.Minute, 0},
		{15 * time.Second, time.Minute, 25},
		{59*time.Second + 900*time.Millisecond, time.Minute, 99},
		{2 * time.Minute, time.Minute, 99},
		{time.Second, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, elapsedPercent(tt.elapsed, tt.timeout), "%v of %v", tt.elapsed, tt.timeout)
	}
}
