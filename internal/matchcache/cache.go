package matchcache

import (
	"context"
	"log/slog"
	"time"

	"dentarch/internal/config"
	"dentarch/internal/fingerprint"
	"dentarch/internal/logging"
	"dentarch/internal/patient"
	"dentarch/internal/services"
)

// Store abstracts snapshot persistence. Load returns (nil, nil) on a miss.
type Store interface {
	Load(ctx context.Context, folderPath string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, folderPath string) error
	Close() error
}

// Cache validates and serves snapshots. A record is only returned when its
// stored fingerprint matches the freshly computed one and its age is under
// the ceiling; anything stale or unreadable is deleted on access so it can
// never half-apply later.
type Cache struct {
	store       Store
	sidecarName string
	maxAge      time.Duration
	logger      *slog.Logger
}

// New selects the backend from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	cache := &Cache{
		sidecarName: cfg.Cache.SidecarName,
		maxAge:      time.Duration(cfg.Cache.MaxAgeDays) * 24 * time.Hour,
		logger:      logging.NewComponentLogger(logger, "matchcache"),
	}
	switch cfg.Cache.Mode {
	case "centralized":
		store, err := openCentralized(cfg.Cache.CentralizedPath)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "matchcache", "open", "open centralized store", err)
		}
		cache.store = store
	default:
		cache.store = newSidecarStore(cfg.Cache.SidecarName)
	}
	return cache, nil
}

// Close releases the backing store.
func (c *Cache) Close() error { return c.store.Close() }

// Fingerprint computes the folder fingerprint, excluding the cache's own
// sidecar and lock files.
func (c *Cache) Fingerprint(folderPath string) (string, error) {
	return fingerprint.Compute(folderPath, c.sidecarName, c.sidecarName+".lock")
}

// Get returns the valid snapshot for a folder, or nil on any kind of miss.
// Corrupted and stale records are deleted here rather than ignored.
func (c *Cache) Get(ctx context.Context, folderPath string) *Snapshot {
	snap, err := c.store.Load(ctx, folderPath)
	if err != nil {
		c.logger.Warn("cache record unreadable, discarding",
			logging.Args(logging.String("folder", folderPath), logging.Error(err))...)
		_ = c.store.Delete(ctx, folderPath)
		return nil
	}
	if snap == nil {
		return nil
	}

	hash, err := c.Fingerprint(folderPath)
	if err != nil {
		c.logger.Warn("fingerprint failed",
			logging.Args(logging.String("folder", folderPath), logging.Error(err))...)
		return nil
	}
	if snap.FolderHash != hash {
		c.logger.Info("cache stale, folder changed",
			logging.Args(logging.String("folder", folderPath))...)
		_ = c.store.Delete(ctx, folderPath)
		return nil
	}
	if c.maxAge > 0 && time.Since(snap.Timestamp) > c.maxAge {
		c.logger.Info("cache expired",
			logging.Args(
				logging.String("folder", folderPath),
				logging.Duration("age", time.Since(snap.Timestamp)),
			)...)
		_ = c.store.Delete(ctx, folderPath)
		return nil
	}
	return snap
}

// Put serializes the aggregate under the folder's current fingerprint.
// Callers must invoke this immediately after any manual mutation; the cache
// is the only durable store for overrides.
func (c *Cache) Put(ctx context.Context, p *patient.Patient) error {
	hash, err := c.Fingerprint(p.FolderPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "matchcache", "put", "fingerprint folder", err)
	}
	snap := FromPatient(p, hash)
	if err := c.store.Save(ctx, snap); err != nil {
		return services.Wrap(services.ErrTransient, "matchcache", "put", "save snapshot", err)
	}
	return nil
}

// Invalidate deletes any record for the folder.
func (c *Cache) Invalidate(ctx context.Context, folderPath string) error {
	if err := c.store.Delete(ctx, folderPath); err != nil {
		return services.Wrap(services.ErrTransient, "matchcache", "invalidate", "delete snapshot", err)
	}
	return nil
}

// MarkUploaded records a completed upload on the existing snapshot without
// touching classification state.
func (c *Cache) MarkUploaded(ctx context.Context, folderPath, uploadID string, remotePatientID int, hashes map[string]string) error {
	snap, err := c.store.Load(ctx, folderPath)
	if err != nil {
		return services.Wrap(services.ErrTransient, "matchcache", "mark-uploaded", "load snapshot", err)
	}
	if snap == nil {
		return services.Wrap(services.ErrNotFound, "matchcache", "mark-uploaded", "no cache record for folder", nil)
	}
	now := time.Now().UTC()
	snap.Uploaded = true
	snap.UploadID = uploadID
	snap.RemotePatientID = remotePatientID
	snap.UploadedAt = &now
	snap.UploadedHashes = hashes
	if err := c.store.Save(ctx, snap); err != nil {
		return services.Wrap(services.ErrTransient, "matchcache", "mark-uploaded", "save snapshot", err)
	}
	return nil
}

// Stats reports record count and store size. Only the centralized backend
// tracks these; distributed sidecars have no global view.
func (c *Cache) Stats(ctx context.Context) (records int, sizeBytes int64, err error) {
	store, ok := c.store.(*centralizedStore)
	if !ok {
		return 0, 0, services.Wrap(services.ErrValidation, "matchcache", "stats", "stats require centralized cache mode", nil)
	}
	return store.Stats(ctx)
}
