package model

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/kv"
	"github.com/RyanBlaney/sonido-chords/logging"
)

// ErrNoActiveModel is returned when no artifact has been activated.
var ErrNoActiveModel = errors.New("no active model")

var (
	activeKey     = kv.Key{"registry", "active"}
	historyPrefix = kv.Key{"registry", "history"}
)

// historyLayout is fixed width and colon free so keys sort by time.
const historyLayout = "20060102T150405.000000000"

func historyKey(at time.Time) kv.Key {
	return kv.Key{historyPrefix[0], historyPrefix[1], at.UTC().Format(historyLayout)}
}

// Activation records one call to Activate.
type Activation struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// Registry tracks which stored artifact is active. Exactly one artifact is
// active at a time and it only changes through Activate.
type Registry struct {
	kv     kv.Store
	store  *Store
	now    func() time.Time
	logger logging.Logger
}

// NewRegistry creates a registry over a kv store for artifacts in store.
func NewRegistry(kvStore kv.Store, store *Store) *Registry {
	return &Registry{
		kv:    kvStore,
		store: store,
		now:   time.Now,
		logger: logging.WithFields(logging.Fields{
			"component": "model_registry",
		}),
	}
}

// Activate marks the named artifact active. The artifact must exist and
// decode, so a broken file can never become the active model.
func (r *Registry) Activate(ctx context.Context, name string) error {
	if _, err := r.store.Load(ctx, name); err != nil {
		return fmt.Errorf("activate %s: %w", name, err)
	}

	at := r.now().UTC()
	err := r.kv.BatchSet(ctx, []kv.Entry{
		{Key: activeKey, Value: []byte(name)},
		{Key: historyKey(at), Value: []byte(name)},
	})
	if err != nil {
		return fmt.Errorf("activate %s: %w", name, err)
	}
	r.logger.Info("Model activated", logging.Fields{"name": name})
	return nil
}

// Active returns the name of the active artifact.
func (r *Registry) Active(ctx context.Context) (string, error) {
	v, err := r.kv.Get(ctx, activeKey)
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNoActiveModel
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// History yields past activations, oldest first.
func (r *Registry) History(ctx context.Context) iter.Seq2[Activation, error] {
	return func(yield func(Activation, error) bool) {
		for e, err := range r.kv.List(ctx, historyPrefix) {
			if err != nil {
				yield(Activation{}, err)
				return
			}
			at, err := time.ParseInLocation(historyLayout, e.Key[len(e.Key)-1], time.UTC)
			if err != nil {
				if !yield(Activation{}, fmt.Errorf("registry history key %s: %w", e.Key, err)) {
					return
				}
				continue
			}
			if !yield(Activation{Name: string(e.Value), At: at}, nil) {
				return
			}
		}
	}
}

// LoadActive loads the active artifact into classifier. It returns the
// artifact so callers can report its metadata.
func (r *Registry) LoadActive(ctx context.Context, classifier *chords.Classifier) (*Artifact, error) {
	name, err := r.Active(ctx)
	if err != nil {
		return nil, err
	}
	a, err := r.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	classifier.Load(a.Name, a.Predictor)
	return a, nil
}
