package feeds

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bibmerge/internal"
	"bibmerge/internal/config"
	"bibmerge/internal/logger"
	"bibmerge/internal/pipeline"
	"bibmerge/internal/storage"
)

type SyncService struct {
	db     *storage.DB
	client *Client
	cfg    config.Config
	log    *logger.Logger
}

func NewSyncService(db *storage.DB, cfg config.Config, log *logger.Logger) *SyncService {
	if log == nil {
		log = logger.Nop()
	}
	return &SyncService{db: db, client: NewClient(cfg), cfg: cfg, log: log}
}

type SyncResult struct {
	Name    string
	Path    string
	Bytes   int
	Changed bool
	Family  internal.SourceFamily
}

// SyncAll downloads every configured feed into the feed directory in name
// order. Unchanged content (same sha256 as the last sync) is left alone. A
// failing feed does not stop the others.
func (s *SyncService) SyncAll(ctx context.Context) ([]SyncResult, error) {
	names := make([]string, 0, len(s.cfg.FeedSources))
	for name := range s.cfg.FeedSources {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []SyncResult
	var errs []error
	for _, name := range names {
		res, err := s.Sync(ctx, name, s.cfg.FeedSources[name])
		if err != nil {
			s.log.Error("feed sync failed", "feed", name, "error", err)
			errs = append(errs, fmt.Errorf("feed %s: %w", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (s *SyncService) Sync(ctx context.Context, name, rawURL string) (SyncResult, error) {
	body, err := s.client.Fetch(ctx, rawURL)
	if err != nil {
		return SyncResult{}, err
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	dest := filepath.Join(s.cfg.FeedDir, name+feedExtension(rawURL))
	res := SyncResult{
		Name:   name,
		Path:   dest,
		Bytes:  len(body),
		Family: pipeline.DetectSourceFamily(dest, body).Family,
	}

	hashKey := "feeds.hash." + name
	last, err := s.db.GetMetadata(hashKey)
	if err != nil {
		return SyncResult{}, err
	}
	if last != nil && *last == hash && fileExists(dest) {
		s.log.Debug("feed unchanged", "feed", name, "path", dest)
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return SyncResult{}, err
	}
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return SyncResult{}, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return SyncResult{}, err
	}
	if err := s.db.SetMetadata(hashKey, hash); err != nil {
		return SyncResult{}, err
	}
	_ = s.db.SetMetadata("feeds.last_sync."+name, time.Now().UTC().Format(time.RFC3339))

	res.Changed = true
	s.log.Info("feed downloaded", "feed", name, "path", dest, "bytes", len(body), "family", string(res.Family))
	return res, nil
}

func feedExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".xml"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".xml", ".onix", ".mrc", ".csv", ".xlsx":
		return ext
	default:
		return ".xml"
	}
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
