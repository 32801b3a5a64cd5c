package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/config"
	"github.com/RyanBlaney/sonido-chords/profiling"
	"github.com/RyanBlaney/sonido-chords/training"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

const testRate = 8000

var (
	gChord  = []float64{196.00, 246.94, 293.66, 392.00}
	emChord = []float64{164.81, 196.00, 246.94, 329.63}
)

func strum(freqs []float64, seconds int) []float64 {
	out := make([]float64, seconds*testRate)
	for i := range out {
		for _, f := range freqs {
			out[i] += 0.2 * math.Sin(2*math.Pi*f*float64(i)/testRate)
		}
	}
	return out
}

func writeWAV(t *testing.T, path string, samples []float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, transcode.WriteWAVFile(path, samples, testRate))
}

// triadTable writes clean triad profiles, n per label.
func triadTable(t *testing.T, path string, n int) {
	t.Helper()
	var rows []training.Example
	for _, label := range chords.Vocabulary() {
		third := 4
		if label.Minor() {
			third = 3
		}
		for i := 0; i < n; i++ {
			var p chroma.Profile
			for pc := range p {
				p[pc] = 0.01 * float64((pc+i)%3)
			}
			for _, interval := range []int{0, third, 7} {
				p[(label.Root()+interval)%12] += 0.3
			}
			sum := p.Sum()
			for pc := range p {
				p[pc] /= sum
			}
			rows = append(rows, training.Example{Profile: p, Label: label})
		}
	}
	require.NoError(t, training.WriteTableFile(path, rows))
}

type testEnv struct {
	dir    string
	config string
	song   string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvModelDir, "")

	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "stored", "G.wav"), strum(gChord, 1))
	writeWAV(t, filepath.Join(dir, "stored", "Em", "take1.wav"), strum(emChord, 1))
	triadTable(t, filepath.Join(dir, "train.csv"), 4)
	triadTable(t, filepath.Join(dir, "test.csv"), 2)

	song := filepath.Join(dir, "song.wav")
	writeWAV(t, song, append(strum(gChord, 2), strum(emChord, 2)...))

	cfg := fmt.Sprintf(`logging:
  level: error
  color: false
audio:
  disable_ffmpeg: true
training:
  original_train_path: %[1]s/train.csv
  original_test_path: %[1]s/test.csv
  user_data_dir: %[1]s/stored
  timeout_seconds: 5
  tick_interval: 10ms
  search:
    max_trials: 1
models:
  dir: %[1]s/models
  registry_dir: %[1]s/registry
`, filepath.ToSlash(dir))
	path := filepath.Join(dir, "chords.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &testEnv{dir: dir, config: path, song: song}
}

func runCmd(t *testing.T, env *testEnv, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", env.config}, args...))
	err := rootCmd.Execute()
	resetFlags(rootCmd)
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Changed = false
		_ = f.Value.Set(f.DefValue)
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func profileJSON(t *testing.T, env *testEnv, args ...string) *profiling.ProfileResult {
	t.Helper()
	out, err := runCmd(t, env, append([]string{"profile", env.song, "--json"}, args...)...)
	require.NoError(t, err)
	var result profiling.ProfileResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	return &result
}

func TestProfileWithTemplates(t *testing.T) {
	env := setupTestEnv(t)

	result := profileJSON(t, env, "--model", "templates")
	assert.Equal(t, []chords.Label{chords.G, chords.G, chords.Em, chords.Em}, result.Labels())
	assert.Equal(t, testRate, result.SamplesPerWindow)

	result = profileJSON(t, env, "--model", "templates", "--window-ms", "500")
	assert.Len(t, result.Windows, 8)

	out, err := runCmd(t, env, "profile", env.song, "--model", "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "4 windows of 1000 ms")
	assert.Contains(t, out, "G x2  Em x2")
}

func TestProfileWithoutActiveModel(t *testing.T) {
	env := setupTestEnv(t)
	_, err := runCmd(t, env, "profile", env.song)
	require.ErrorIs(t, err, chords.ErrModelUnavailable)
	assert.Contains(t, err.Error(), "no active model")
}

func TestClassify(t *testing.T) {
	env := setupTestEnv(t)
	out, err := runCmd(t, env, "classify", filepath.Join(env.dir, "stored", "G.wav"), "--model", "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "G")
	assert.Contains(t, out, "model templates")
	assert.Contains(t, out, "dominant G  entropy ")
}

func TestGenerateAndCorrect(t *testing.T) {
	env := setupTestEnv(t)

	out, err := runCmd(t, env, "correct", env.song, "--window", "3", "--label", "Am")
	require.NoError(t, err)
	assert.Contains(t, out, "saved window 3 as Am")
	matches, err := filepath.Glob(filepath.Join(env.dir, "stored", "Am", "Am_*.wav"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = runCmd(t, env, "correct", env.song, "--window", "9", "--label", "Am")
	assert.Error(t, err)
	_, err = runCmd(t, env, "correct", env.song, "--window", "0", "--label", "Cmaj7")
	assert.Error(t, err)

	out, err = runCmd(t, env, "generate")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 3 rows")
	rows, err := training.ReadTableFile(filepath.Join(env.dir, "stored", training.DefaultTableName))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestTrainActivateAndList(t *testing.T) {
	env := setupTestEnv(t)

	out, err := runCmd(t, env, "models", "active")
	require.NoError(t, err)
	assert.Contains(t, out, "no active model")

	out, err = runCmd(t, env, "train", "--timeout", "2", "--activate")
	require.NoError(t, err)
	assert.Contains(t, out, "training rows   42")
	require.Contains(t, out, "activated ")

	out, err = runCmd(t, env, "models", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "*"))
	assert.Contains(t, lines[1], "S2L")

	result := profileJSON(t, env)
	assert.Equal(t, []chords.Label{chords.G, chords.G, chords.Em, chords.Em}, result.Labels())

	out, err = runCmd(t, env, "models", "activate", "--best")
	require.NoError(t, err)
	assert.Contains(t, out, "activated ")

	_, err = runCmd(t, env, "models", "activate")
	assert.Error(t, err)
	_, err = runCmd(t, env, "models", "activate", "20240101000000S1L1C1.model")
	assert.Error(t, err)
}

func TestFormatOffsetAndSummary(t *testing.T) {
	assert.Equal(t, "0:00.0", formatOffset(0))
	assert.Equal(t, "1:05.5", formatOffset(65.5))
	assert.Equal(t, "C x1  Em x2", summarize([]chords.Label{chords.Em, chords.C, chords.Em}))
}
