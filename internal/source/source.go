// Package source loads fragments payloads into the viewer from a local
// file, the conversion API or the fragments database, and remembers the
// most recent one.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjrosen/bimview/internal/api"
	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/infrastructure/sqlite"
	"github.com/zjrosen/bimview/internal/log"
)

// ErrNoRemote is returned when an API load is requested without a client.
var ErrNoRemote = errors.New("source: no API client configured")

// ErrNothingStored is returned by Last when no model has been stored.
var ErrNothingStored = errors.New("source: no stored model")

// Store persists the last loaded payload.
type Store interface {
	Put(ctx context.Context, rec sqlite.Record) error
	Last(ctx context.Context) (*sqlite.Record, error)
}

// Remote is the fragments conversion API.
type Remote interface {
	Download(ctx context.Context, id string) (*api.Fragments, error)
	UploadFile(ctx context.Context, path string) (*api.Fragments, error)
}

// Loaded describes a model that was loaded.
type Loaded struct {
	Model  engine.Model
	Origin string // file path, "api:<id>" or "db"
}

// Option configures a Source.
type Option func(*Source)

// WithStore remembers every loaded payload in store.
func WithStore(store Store) Option {
	return func(s *Source) { s.store = store }
}

// WithRemote enables API loads.
func WithRemote(remote Remote) Option {
	return func(s *Source) { s.remote = remote }
}

// Source loads payloads into a fragments manager.
type Source struct {
	fragments engine.FragmentsManager
	store     Store
	remote    Remote
}

// New returns a source loading into fragments.
func New(fragments engine.FragmentsManager, opts ...Option) *Source {
	s := &Source{fragments: fragments}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ModelIDForFile is the model id used for a file when none is given: the
// base name without its extension.
func ModelIDForFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// File loads the snapshot at path. An empty modelID is derived from the
// file name.
func (s *Source) File(ctx context.Context, path, modelID string) (Loaded, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the fragments file named by the user
	if err != nil {
		return Loaded{}, fmt.Errorf("read fragments file: %w", err)
	}
	if modelID == "" {
		modelID = ModelIDForFile(path)
	}
	return s.load(ctx, modelID, data, 0, path)
}

// Remote downloads the converted model id from the API and loads it under
// that id.
func (s *Source) Remote(ctx context.Context, id string) (Loaded, error) {
	if s.remote == nil {
		return Loaded{}, ErrNoRemote
	}
	frags, err := s.remote.Download(ctx, id)
	if err != nil {
		return Loaded{}, fmt.Errorf("download %s: %w", id, err)
	}
	return s.load(ctx, frags.ID, frags.Data, frags.Count, "api:"+frags.ID)
}

// Upload converts the IFC file at path through the API and loads the
// result under the id the API assigned.
func (s *Source) Upload(ctx context.Context, path string) (Loaded, error) {
	if s.remote == nil {
		return Loaded{}, ErrNoRemote
	}
	frags, err := s.remote.UploadFile(ctx, path)
	if err != nil {
		return Loaded{}, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	return s.load(ctx, frags.ID, frags.Data, frags.Count, "api:"+frags.ID)
}

// Last loads the most recently stored payload.
func (s *Source) Last(ctx context.Context) (Loaded, error) {
	if s.store == nil {
		return Loaded{}, ErrNothingStored
	}
	rec, err := s.store.Last(ctx)
	if errors.Is(err, sqlite.ErrNotFound) {
		return Loaded{}, ErrNothingStored
	}
	if err != nil {
		return Loaded{}, fmt.Errorf("read stored model: %w", err)
	}
	model, err := s.fragments.Load(ctx, rec.ModelID, rec.Data)
	if err != nil {
		return Loaded{}, err
	}
	log.Info(log.CatEngine, "Model restored", "model", rec.ModelID, "source", rec.Source)
	return Loaded{Model: model, Origin: "db"}, nil
}

func (s *Source) load(ctx context.Context, modelID string, data []byte, count int, origin string) (Loaded, error) {
	model, err := s.fragments.Load(ctx, modelID, data)
	if err != nil {
		return Loaded{}, err
	}
	log.Info(log.CatEngine, "Model loaded", "model", modelID, "source", origin, "bytes", len(data))

	if s.store != nil {
		err := s.store.Put(ctx, sqlite.Record{
			Key:            sqlite.LastKey,
			ModelID:        modelID,
			FragmentsCount: count,
			Source:         origin,
			Data:           data,
		})
		if err != nil {
			// The model is usable; only the next restore is affected.
			log.ErrorErr(log.CatDB, "Storing loaded model failed", err, "model", modelID)
		}
	}
	return Loaded{Model: model, Origin: origin}, nil
}
