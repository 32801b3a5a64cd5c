package training

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/profiling"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

// SaveCorrection stores the samples of window w as a new labeled clip under
// dir/<label>/<label>_<uuid>.wav, where the next Generate run picks it up.
// It returns the written path.
func SaveCorrection(dir string, audio *transcode.AudioData, w profiling.Window, label chords.Label) (string, error) {
	if !label.Valid() {
		return "", fmt.Errorf("unknown chord label %q", label)
	}
	if audio == nil || audio.SampleRate <= 0 {
		return "", fmt.Errorf("no audio to save")
	}
	if w.Start < 0 || w.Length <= 0 || w.Start+w.Length > len(audio.PCM) {
		return "", fmt.Errorf("window %d [%d, %d) outside %d samples",
			w.Index, w.Start, w.Start+w.Length, len(audio.PCM))
	}

	folder := filepath.Join(dir, label.String())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(folder, fmt.Sprintf("%s_%s.wav", label, uuid.NewString()))
	if err := transcode.WriteWAVFile(path, w.Samples(audio.PCM), audio.SampleRate); err != nil {
		return "", fmt.Errorf("write correction %s: %w", path, err)
	}
	return path, nil
}
