package grade

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/susahesumudu/mit-erp/core"
)

const watchDebounce = 250 * time.Millisecond

// ArtifactStatus reports what the ArtifactStore currently holds.
type ArtifactStatus struct {
	ScalerPath       string    `json:"scaler_path"`
	ScalerLoaded     bool      `json:"scaler_loaded"`
	ScalerError      string    `json:"scaler_error,omitempty"`
	ClassifierPath   string    `json:"classifier_path"`
	ClassifierLoaded bool      `json:"classifier_loaded"`
	ClassifierError  string    `json:"classifier_error,omitempty"`
	LoadedAt         time.Time `json:"loaded_at"`
}

// ArtifactStore is the process-wide cache of the scaler and classifier.
// Loaded artifacts are immutable; Reload swaps them atomically.
type ArtifactStore struct {
	scalerPath     string
	classifierPath string
	logger         core.Logger

	mu         sync.RWMutex
	scaler     *Scaler
	classifier *Classifier
	scalerErr  error
	clsErr     error
	loadedAt   time.Time
}

func NewArtifactStore(scalerPath, classifierPath string, logger core.Logger) *ArtifactStore {
	return &ArtifactStore{scalerPath: scalerPath, classifierPath: classifierPath, logger: logger}
}

// NewArtifactStoreWith returns a store holding already loaded artifacts; nil means missing.
func NewArtifactStoreWith(scaler *Scaler, classifier *Classifier) *ArtifactStore {
	store := &ArtifactStore{scaler: scaler, classifier: classifier, loadedAt: time.Now().UTC()}
	if scaler == nil {
		store.scalerErr = ErrArtifactMissing
	}
	if classifier == nil {
		store.clsErr = ErrArtifactMissing
	}
	return store
}

// Reload re-reads both artifacts. A failed artifact is cleared so predictions fail closed.
func (s *ArtifactStore) Reload() error {
	scaler, scalerErr := LoadScaler(s.scalerPath)
	classifier, clsErr := LoadClassifier(s.classifierPath)

	s.mu.Lock()
	s.scaler, s.scalerErr = scaler, scalerErr
	s.classifier, s.clsErr = classifier, clsErr
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()

	if scalerErr != nil {
		return scalerErr
	}
	return clsErr
}

func (s *ArtifactStore) Scaler() (*Scaler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scaler == nil {
		if s.scalerErr != nil {
			return nil, s.scalerErr
		}
		return nil, errors.Wrap(ErrArtifactMissing, "scaler not loaded")
	}
	return s.scaler, nil
}

func (s *ArtifactStore) Classifier() (*Classifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.classifier == nil {
		if s.clsErr != nil {
			return nil, s.clsErr
		}
		return nil, errors.Wrap(ErrArtifactMissing, "classifier not loaded")
	}
	return s.classifier, nil
}

func (s *ArtifactStore) Status() ArtifactStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := ArtifactStatus{
		ScalerPath:       s.scalerPath,
		ScalerLoaded:     s.scaler != nil,
		ClassifierPath:   s.classifierPath,
		ClassifierLoaded: s.classifier != nil,
		LoadedAt:         s.loadedAt,
	}
	if s.scalerErr != nil {
		st.ScalerError = s.scalerErr.Error()
	}
	if s.clsErr != nil {
		st.ClassifierError = s.clsErr.Error()
	}
	return st
}

// Watch reloads the artifacts whenever one of their files is replaced, until ctx is done.
// Directories are watched rather than files so atomic renames are seen.
func (s *ArtifactStore) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating artifact watcher")
	}

	dirs := map[string]struct{}{
		filepath.Dir(s.scalerPath):     {},
		filepath.Dir(s.classifierPath): {},
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return errors.Wrapf(err, "watching %s", dir)
		}
	}

	go s.processEvents(ctx, fsw)
	return nil
}

func (s *ArtifactStore) processEvents(ctx context.Context, fsw *fsnotify.Watcher) {
	defer fsw.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !s.tracks(event.Name) || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(watchDebounce)
			}
			pending = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			s.log().Error("grade.ArtifactStore.Watch", err)
		case <-pending:
			pending = nil
			if err := s.Reload(); err != nil {
				s.log().Error("grade.ArtifactStore.Watch: reload failed", err)
			} else {
				s.log().Info("grade.ArtifactStore.Watch: artifacts reloaded")
			}
		}
	}
}

func (s *ArtifactStore) tracks(name string) bool {
	name = filepath.Clean(name)
	return name == filepath.Clean(s.scalerPath) || name == filepath.Clean(s.classifierPath)
}

func (s *ArtifactStore) log() core.Logger {
	if s.logger == nil {
		return nopLogger{}
	}
	return s.logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
