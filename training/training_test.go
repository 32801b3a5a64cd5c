package training

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-chords/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chords/algorithms/windowing"
	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/model"
	"github.com/RyanBlaney/sonido-chords/profiling"
	"github.com/RyanBlaney/sonido-chords/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 8000

var (
	gChord  = []float64{196.00, 246.94, 293.66, 392.00}
	emChord = []float64{164.81, 196.00, 246.94, 329.63}
)

func strum(freqs []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		for _, f := range freqs {
			out[i] += 0.2 * math.Sin(2*math.Pi*f*float64(i)/testRate)
		}
	}
	return out
}

func writeClip(t *testing.T, path string, freqs []float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, transcode.WriteWAVFile(path, strum(freqs, testRate), testRate))
}

func testDecoder() *transcode.Decoder {
	cfg := transcode.DefaultDecoderConfig()
	cfg.DisableFFmpeg = true
	return transcode.NewDecoder(cfg)
}

// triadRows returns perLabel noisy triad profiles for every label.
func triadRows(perLabel int, seed uint64) []Example {
	rng := rand.New(rand.NewPCG(seed, seed))
	var rows []Example
	for _, label := range chords.Vocabulary() {
		third := 4
		if label.Minor() {
			third = 3
		}
		for i := 0; i < perLabel; i++ {
			var p chroma.Profile
			for pc := range p {
				p[pc] = 0.08 * rng.Float64()
			}
			for _, interval := range []int{0, third, 7} {
				p[(label.Root()+interval)%12] += 0.6 + 0.4*rng.Float64()
			}
			sum := p.Sum()
			for pc := range p {
				p[pc] /= sum
			}
			rows = append(rows, Example{Profile: p, Label: label})
		}
	}
	return rows
}

func TestTableRoundTrip(t *testing.T) {
	rows := triadRows(2, 1)
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, rows))

	firstLine, _, _ := strings.Cut(buf.String(), "\n")
	assert.Equal(t, "C,C#,D,D#,E,F,F#,G,G#,A,A#,B,Chord", firstLine)

	got, err := ReadTable(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestReadTableAcceptsByteOrderMark(t *testing.T) {
	table := "\ufeffC,C#,D,D#,E,F,F#,G,G#,A,A#,B,Chord\n" +
		"0.5,0,0,0,0.25,0,0,0.25,0,0,0,0,C\n"
	rows, err := ReadTable(strings.NewReader(table))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, chords.C, rows[0].Label)
	assert.Equal(t, 0.25, rows[0].Profile[7])
}

func TestReadTableAcceptsOtherPitchClassSpellings(t *testing.T) {
	headers := []string{
		"C,Db,D,Eb,E,F,Gb,G,Ab,A,Bb,B,Chord",
		"C,CSharp,D,DSharp,E,F,FSharp,G,GSharp,A,ASharp,B,chord",
		"pc0,pc1,pc2,pc3,pc4,pc5,pc6,pc7,pc8,pc9,pc10,pc11, CHORD",
	}
	for _, header := range headers {
		t.Run(header, func(t *testing.T) {
			table := header + "\n0,0,0.5,0,0,0,0.25,0,0,0.25,0,0,D\n"
			rows, err := ReadTable(strings.NewReader(table))
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, chords.D, rows[0].Label)
			assert.Equal(t, 0.5, rows[0].Profile[2])
			assert.Equal(t, 0.25, rows[0].Profile[9])
		})
	}
}

func TestReadTableErrors(t *testing.T) {
	tests := []struct {
		name  string
		table string
	}{
		{"empty", ""},
		{"wrong header", "A,B,C,D,E,F,G,H,I,J,K,L,Label\n"},
		{"label column first", "Chord,C,C#,D,D#,E,F,F#,G,G#,A,A#,B\n"},
		{"missing label column", "C,C#,D,D#,E,F,F#,G,G#,A,A#,B\n"},
		{"extra column", strings.Join(Header, ",") + ",Notes\n"},
		{"bad number", strings.Join(Header, ",") + "\nx,0,0,0,0,0,0,0,0,0,0,0,C\n"},
		{"unknown label", strings.Join(Header, ",") + "\n1,0,0,0,0,0,0,0,0,0,0,0,Cmaj7\n"},
		{"short row", strings.Join(Header, ",") + "\n1,0,C\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTable(strings.NewReader(tt.table))
			assert.Error(t, err)
		})
	}
}

func TestListTablesAndReadTables(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteTableFile(filepath.Join(dir, "b.csv"), triadRows(1, 2)))
	require.NoError(t, WriteTableFile(filepath.Join(dir, "a.csv"), triadRows(1, 3)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	paths, err := ListTables(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")}, paths)

	rows, err := ReadTables(paths...)
	require.NoError(t, err)
	assert.Len(t, rows, 2*chords.NumLabels)

	missing, err := ListTables(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLabelForPath(t *testing.T) {
	tests := []struct {
		path string
		want chords.Label
	}{
		{"clips/Em/take1.wav", chords.Em},
		{"clips/G.wav", chords.G},
		{"clips/Am_3f1c.wav", chords.Am},
		{"clips/Bm-live.mp3", chords.Bm},
		{"clips/D take 2.wav", chords.D},
		{"clips/Dm/Em_mislabeled.wav", chords.Dm},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := LabelForPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := LabelForPath("clips/strum.wav")
	assert.Error(t, err)
}

func TestGeneratorSkipsBadClips(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, filepath.Join(dir, "G.wav"), gChord)
	writeClip(t, filepath.Join(dir, "Em", "take1.wav"), emChord)
	writeClip(t, filepath.Join(dir, "unlabeled.wav"), gChord)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "C_broken.wav"), []byte("junk"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644))

	cfg := DefaultGeneratorConfig()
	cfg.SourceDir = dir
	cfg.Workers = 2
	report, err := NewGenerator(cfg, testDecoder()).Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, DefaultTableName), report.OutputPath)
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, map[chords.Label]int{chords.G: 1, chords.Em: 1}, report.Labels)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, filepath.Join(dir, "C_broken.wav"), report.Skipped[0].Path)
	assert.ErrorIs(t, report.Skipped[0], ErrDataGeneration)
	assert.ErrorIs(t, report.Skipped[0], transcode.ErrDecode)
	assert.Equal(t, filepath.Join(dir, "unlabeled.wav"), report.Skipped[1].Path)

	rows, err := ReadTableFile(report.OutputPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// ordered by path: Em/take1.wav before G.wav
	assert.Equal(t, chords.Em, rows[0].Label)
	assert.Equal(t, chords.G, rows[1].Label)

	tmpl := model.NewTemplates(0)
	for _, row := range rows {
		assert.InDelta(t, 1.0, row.Profile.Sum(), 1e-6)
		probs, err := tmpl.Predict(row.Profile.Slice())
		require.NoError(t, err)
		got, err := chords.Decide(probs)
		require.NoError(t, err)
		assert.Equal(t, row.Label, got)
	}

	// a second run replaces the table instead of appending to it
	report, err = NewGenerator(cfg, testDecoder()).Generate(context.Background())
	require.NoError(t, err)
	rows, err = ReadTableFile(report.OutputPath)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGeneratorAbortPolicy(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, filepath.Join(dir, "G.wav"), gChord)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "C_broken.wav"), []byte("junk"), 0o644))

	cfg := DefaultGeneratorConfig()
	cfg.SourceDir = dir
	cfg.FailurePolicy = FailAbort
	_, err := NewGenerator(cfg, testDecoder()).Generate(context.Background())
	require.ErrorIs(t, err, ErrDataGeneration)

	var clipErr *ClipError
	require.True(t, errors.As(err, &clipErr))
	assert.Equal(t, filepath.Join(dir, "C_broken.wav"), clipErr.Path)

	_, statErr := os.Stat(filepath.Join(dir, DefaultTableName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGeneratorConfigErrors(t *testing.T) {
	_, err := NewGenerator(DefaultGeneratorConfig(), testDecoder()).Generate(context.Background())
	assert.ErrorIs(t, err, ErrDataGeneration)

	cfg := DefaultGeneratorConfig()
	cfg.SourceDir = t.TempDir()
	cfg.FailurePolicy = "retry"
	_, err = NewGenerator(cfg, testDecoder()).Generate(context.Background())
	assert.Error(t, err)

	cfg = DefaultGeneratorConfig()
	cfg.SourceDir = t.TempDir()
	cfg.AnalysisWindow = "kaiser"
	_, err = NewGenerator(cfg, testDecoder()).Generate(context.Background())
	assert.ErrorContains(t, err, "analysis window")
}

func TestGeneratorHannWindow(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, filepath.Join(dir, "G.wav"), gChord)
	writeClip(t, filepath.Join(dir, "Em.wav"), emChord)

	cfg := DefaultGeneratorConfig()
	cfg.SourceDir = dir
	cfg.AnalysisWindow = windowing.Hann
	report, err := NewGenerator(cfg, testDecoder()).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rows)

	rows, err := ReadTableFile(report.OutputPath)
	require.NoError(t, err)
	for _, row := range rows {
		assert.InDelta(t, 1.0, row.Profile.Sum(), 1e-6)
	}
}

func TestSaveCorrection(t *testing.T) {
	pcm := append(strum(gChord, testRate), strum(emChord, testRate)...)
	audio := transcode.NewAudioData(pcm, testRate)
	windows, err := profiling.Segment(len(pcm), testRate, profiling.PartialDrop)
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := SaveCorrection(dir, audio, windows[1], chords.Em)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Em"), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "Em_"))

	label, err := LabelForPath(path)
	require.NoError(t, err)
	assert.Equal(t, chords.Em, label)

	clip, err := transcode.ReadWAVFile(path)
	require.NoError(t, err)
	assert.Equal(t, testRate, clip.SampleRate)
	require.Len(t, clip.PCM, testRate)
	assert.InDelta(t, pcm[testRate+100], clip.PCM[100], 1e-4)

	_, err = SaveCorrection(dir, audio, profiling.Window{Index: 5, Start: 2 * testRate, Length: testRate}, chords.G)
	assert.Error(t, err)
	_, err = SaveCorrection(dir, audio, windows[0], chords.Label("Cmaj7"))
	assert.Error(t, err)
}
