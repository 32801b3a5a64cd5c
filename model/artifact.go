package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/RyanBlaney/sonido-chords/chords"
)

// formatVersion is bumped whenever the envelope layout changes.
const formatVersion = 1

// ErrUnsupportedArtifact is returned for artifacts this build cannot load.
var ErrUnsupportedArtifact = errors.New("unsupported model artifact")

// Metadata describes how an artifact was produced. The first four fields
// are also encoded in the artifact name.
type Metadata struct {
	CreatedAt              time.Time `msgpack:"created_at" json:"created_at"`
	TrainingTimeoutSeconds int       `msgpack:"timeout_seconds" json:"timeout_seconds"`
	ValidationLogLoss      float64   `msgpack:"validation_log_loss" json:"validation_log_loss"`
	CrossValidationLogLoss float64   `msgpack:"cross_validation_log_loss" json:"cross_validation_log_loss"`

	MicroAccuracy float64 `msgpack:"micro_accuracy,omitempty" json:"micro_accuracy,omitempty"`
	MacroAccuracy float64 `msgpack:"macro_accuracy,omitempty" json:"macro_accuracy,omitempty"`
	TrainingRows  int     `msgpack:"training_rows,omitempty" json:"training_rows,omitempty"`
	Trainer       string  `msgpack:"trainer,omitempty" json:"trainer,omitempty"`
	RunID         string  `msgpack:"run_id,omitempty" json:"run_id,omitempty"`
}

// Artifact is a persisted classifier with its metadata.
type Artifact struct {
	Name      string
	Metadata  Metadata
	Predictor Predictor
}

type envelope struct {
	Version  int                `msgpack:"version"`
	Kind     Kind               `msgpack:"kind"`
	Labels   []string           `msgpack:"labels"`
	Metadata Metadata           `msgpack:"metadata"`
	Payload  msgpack.RawMessage `msgpack:"payload"`
}

func vocabularyStrings() []string {
	labels := chords.Vocabulary()
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.String()
	}
	return out
}

// Encode writes a in the msgpack artifact format.
func Encode(w io.Writer, a *Artifact) error {
	if a == nil || a.Predictor == nil {
		return errors.New("artifact has no predictor")
	}
	payload, err := msgpack.Marshal(a.Predictor)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", a.Predictor.Kind(), err)
	}
	return msgpack.NewEncoder(w).Encode(&envelope{
		Version:  formatVersion,
		Kind:     a.Predictor.Kind(),
		Labels:   vocabularyStrings(),
		Metadata: a.Metadata,
		Payload:  payload,
	})
}

// Decode reads an artifact written by Encode. Artifacts trained for a
// different label vocabulary are rejected.
func Decode(r io.Reader) (*Artifact, error) {
	var env envelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedArtifact, err)
	}
	if env.Version != formatVersion {
		return nil, fmt.Errorf("%w: format version %d", ErrUnsupportedArtifact, env.Version)
	}
	if !slices.Equal(env.Labels, vocabularyStrings()) {
		return nil, fmt.Errorf("%w: label vocabulary %v", ErrUnsupportedArtifact, env.Labels)
	}

	var p Predictor
	switch env.Kind {
	case KindSoftmax:
		s := &Softmax{}
		if err := msgpack.Unmarshal(env.Payload, s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedArtifact, err)
		}
		if err := s.init(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedArtifact, err)
		}
		p = s
	case KindMLP:
		m := &MLP{}
		if err := msgpack.Unmarshal(env.Payload, m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedArtifact, err)
		}
		if err := m.init(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedArtifact, err)
		}
		p = m
	case KindTemplates:
		t := &Templates{}
		if err := msgpack.Unmarshal(env.Payload, t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedArtifact, err)
		}
		t.init()
		p = t
	default:
		return nil, fmt.Errorf("%w: model kind %q", ErrUnsupportedArtifact, env.Kind)
	}

	return &Artifact{Metadata: env.Metadata, Predictor: p}, nil
}

// MarshalBinary encodes the artifact into a byte slice.
func (a *Artifact) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
