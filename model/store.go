package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/storage"
)

// ErrNoArtifacts is returned by Latest and Best on an empty store.
var ErrNoArtifacts = errors.New("no model artifacts found")

// Entry is a stored artifact known only by its name.
type Entry struct {
	Name     string   `json:"name"`
	Metadata Metadata `json:"metadata"`
}

// Store persists artifacts as flat files named by FormatName.
type Store struct {
	fs     storage.FileStore
	logger logging.Logger
}

// NewStore creates an artifact store on fs.
func NewStore(fs storage.FileStore) *Store {
	return &Store{
		fs: fs,
		logger: logging.WithFields(logging.Fields{
			"component": "model_store",
		}),
	}
}

// Save encodes the artifact fully before writing it, so a failed encode
// leaves nothing behind. It sets and returns a.Name.
func (s *Store) Save(ctx context.Context, a *Artifact) (string, error) {
	data, err := a.MarshalBinary()
	if err != nil {
		return "", err
	}
	name := FormatName(a.Metadata)

	w, err := s.fs.Write(ctx, name)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		s.fs.Delete(ctx, name)
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		s.fs.Delete(ctx, name)
		return "", fmt.Errorf("save %s: %w", name, err)
	}

	a.Name = name
	s.logger.Info("Model artifact saved", logging.Fields{
		"name":  name,
		"kind":  a.Predictor.Kind(),
		"bytes": len(data),
	})
	return name, nil
}

// Load reads and decodes the named artifact.
func (s *Store) Load(ctx context.Context, name string) (*Artifact, error) {
	r, err := s.fs.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	a, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	a.Name = name
	return a, nil
}

// Exists reports whether the named artifact is stored.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if _, err := ParseName(name); err != nil {
		return false, err
	}
	return s.fs.Exists(ctx, name)
}

// Delete removes the named artifact.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := ParseName(name); err != nil {
		return err
	}
	return s.fs.Delete(ctx, name)
}

// List returns every artifact whose name parses, oldest first. Other files
// in the store are ignored.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	paths, err := s.fs.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var entries []Entry
	for _, p := range paths {
		if strings.Contains(p, "/") || !strings.HasSuffix(p, Extension) {
			continue
		}
		md, err := ParseName(p)
		if err != nil {
			s.logger.Debug("Skipping foreign file in model store", logging.Fields{"path": p})
			continue
		}
		entries = append(entries, Entry{Name: p, Metadata: md})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Metadata.CreatedAt, entries[j].Metadata.CreatedAt
		if a.Equal(b) {
			return entries[i].Name < entries[j].Name
		}
		return a.Before(b)
	})
	return entries, nil
}

// Latest returns the most recently created artifact.
func (s *Store) Latest(ctx context.Context) (Entry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNoArtifacts
	}
	return entries[len(entries)-1], nil
}

// Best returns the artifact with the lowest validation log loss. Ties go to
// the lower cross-validation loss, then to the newer artifact.
func (s *Store) Best(ctx context.Context) (Entry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNoArtifacts
	}
	best := entries[0]
	for _, e := range entries[1:] {
		a, b := e.Metadata, best.Metadata
		switch {
		case a.ValidationLogLoss < b.ValidationLogLoss:
			best = e
		case a.ValidationLogLoss == b.ValidationLogLoss && a.CrossValidationLogLoss <= b.CrossValidationLogLoss:
			best = e
		}
	}
	return best, nil
}

// IsNotExist reports whether err means the artifact is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
