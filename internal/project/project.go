// Package project orchestrates the per-patient pipeline across a project
// root: folder discovery, classification with cache short-circuit, and the
// manual operations that mutate and immediately re-persist an aggregate.
package project

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"

	"dentarch/internal/classify"
	"dentarch/internal/config"
	"dentarch/internal/logging"
	"dentarch/internal/matchcache"
	"dentarch/internal/patient"
	"dentarch/internal/reconcile"
	"dentarch/internal/services"
)

// Service wires the classifier, cache, and reconciler together.
type Service struct {
	cfg        *config.Config
	classifier *classify.Classifier
	cache      *matchcache.Cache
	reconciler *reconcile.Reconciler
	logger     *slog.Logger
}

// NewService builds the pipeline from configuration.
func NewService(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	classifier, err := classify.New(cfg, logger)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "project", "new", "build classifier", err)
	}
	cache, err := matchcache.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:        cfg,
		classifier: classifier,
		cache:      cache,
		reconciler: reconcile.New(logger),
		logger:     logging.NewComponentLogger(logger, "project"),
	}, nil
}

// Close releases the cache backend.
func (s *Service) Close() error { return s.cache.Close() }

// Cache exposes the matching cache for callers that manage upload state.
func (s *Service) Cache() *matchcache.Cache { return s.cache }

// AnalyzePatient classifies one patient folder. With useCache a valid
// snapshot short-circuits classification: the folder is re-walked for
// structural state and the cached decisions are reconciled onto it. The
// fresh result of a cache miss is persisted before returning.
func (s *Service) AnalyzePatient(ctx context.Context, folderPath string, useCache bool) *patient.Patient {
	if useCache {
		if snap := s.cache.Get(ctx, folderPath); snap != nil {
			inv, err := s.classifier.Walk(folderPath)
			if err == nil {
				s.logger.Debug("serving patient from cache",
					logging.Args(logging.String("folder", folderPath))...)
				return s.reconciler.Apply(inv, snap)
			}
			s.logger.Warn("cached folder no longer walkable",
				logging.Args(logging.String("folder", folderPath), logging.Error(err))...)
		}
	}

	p := s.classifier.Classify(folderPath)
	if len(p.ValidationErrors) == 0 {
		if err := s.cache.Put(ctx, p); err != nil {
			s.logger.Warn("cache save failed",
				logging.Args(logging.String("folder", folderPath), logging.Error(err))...)
		}
	}
	return p
}

// AnalyzeProject discovers patient folders under the root and analyzes them
// on a bounded worker pool. Patients come back sorted by folder name
// regardless of completion order. Cancellation is honored between patients,
// never mid-patient.
func (s *Service) AnalyzeProject(ctx context.Context, rootPath string, useCache bool) (*patient.Project, error) {
	folders, err := DiscoverPatientFolders(rootPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "project", "analyze", "discover patient folders", err)
	}

	proj := &patient.Project{RootPath: rootPath}
	results := make([]*patient.Patient, len(folders))
	pool := newWorkerPool(s.cfg.Scan.Workers)
	pool.run(ctx, len(folders), func(i int) {
		results[i] = s.AnalyzePatient(ctx, folders[i], useCache)
	})

	for _, p := range results {
		if p == nil {
			// Cancelled before this folder was picked up.
			continue
		}
		proj.Patients = append(proj.Patients, p)
	}
	if err := ctx.Err(); err != nil {
		proj.GlobalErrors = append(proj.GlobalErrors, "analysis interrupted: "+err.Error())
	}
	s.logger.Info("project analyzed",
		logging.Args(
			logging.String("root", rootPath),
			logging.Int("patients", len(proj.Patients)),
			logging.Int("complete", len(proj.Complete())),
		)...)
	return proj, nil
}

// Reassign applies a manual slot change and persists it immediately; the
// cache is the only durable store for overrides.
func (s *Service) Reassign(ctx context.Context, folderPath, filePath string, newType patient.DataType) (*patient.Patient, error) {
	p := s.AnalyzePatient(ctx, folderPath, true)
	if err := s.reconciler.Reassign(p, filePath, newType); err != nil {
		return p, err
	}
	if err := s.cache.Put(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

// SetExcluded flips a file's sync exemption and persists it.
func (s *Service) SetExcluded(ctx context.Context, folderPath, filePath string, excluded bool) (*patient.Patient, error) {
	p := s.AnalyzePatient(ctx, folderPath, true)
	if err := s.reconciler.SetExcluded(p, filePath, excluded); err != nil {
		return p, err
	}
	if err := s.cache.Put(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

// RemoveMissing drops records for files gone from disk and persists the
// result.
func (s *Service) RemoveMissing(ctx context.Context, folderPath string) (*patient.Patient, []string, error) {
	p := s.AnalyzePatient(ctx, folderPath, true)
	removed := s.reconciler.RemoveMissing(p)
	if len(removed) > 0 {
		if err := s.cache.Put(ctx, p); err != nil {
			return p, removed, err
		}
	}
	return p, removed, nil
}

// SetManuallyComplete toggles the completeness escape hatch and persists it.
func (s *Service) SetManuallyComplete(ctx context.Context, folderPath string, complete bool, note string) (*patient.Patient, error) {
	p := s.AnalyzePatient(ctx, folderPath, true)
	p.ManuallyComplete = complete
	p.ManualCompletionNote = note
	if err := s.cache.Put(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

// InvalidateCache deletes the folder's cache record.
func (s *Service) InvalidateCache(ctx context.Context, folderPath string) error {
	return s.cache.Invalidate(ctx, folderPath)
}

// UpdateCache persists an already-mutated aggregate.
func (s *Service) UpdateCache(ctx context.Context, p *patient.Patient) error {
	return s.cache.Put(ctx, p)
}

// DiscoverPatientFolders lists the immediate subdirectories of a project
// root, skipping the tmp folder and ignored names, sorted by name.
func DiscoverPatientFolders(rootPath string) ([]string, error) {
	entries, err := os.ReadDir(rootPath)
	if err != nil {
		return nil, err
	}
	var folders []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.EqualFold(name, "tmp") || classify.IsIgnored(name) {
			continue
		}
		folders = append(folders, joinClean(rootPath, name))
	}
	sort.Strings(folders)
	return folders, nil
}
