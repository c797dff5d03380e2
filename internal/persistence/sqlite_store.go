package persistence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/subrender/internal/renderjobs"
	_ "modernc.org/sqlite"
)

const captionCacheDefaultTTL = 24 * time.Hour

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

var _ renderjobs.Persister = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadRenderJobs(ctx context.Context) ([]*renderjobs.RenderJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, artifact_path, composition_id, file_size, created_at, expires_at
		 FROM render_jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*renderjobs.RenderJob, 0)
	for rows.Next() {
		var item renderjobs.RenderJob
		if err := rows.Scan(
			&item.ID,
			&item.ArtifactPath,
			&item.CompositionID,
			&item.FileSize,
			&item.CreatedAt,
			&item.ExpiresAt,
		); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertRenderJob(ctx context.Context, job *renderjobs.RenderJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO render_jobs (
			id, artifact_path, composition_id, file_size, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			artifact_path=excluded.artifact_path,
			composition_id=excluded.composition_id,
			file_size=excluded.file_size,
			expires_at=excluded.expires_at`,
		job.ID,
		job.ArtifactPath,
		job.CompositionID,
		job.FileSize,
		job.CreatedAt.UTC(),
		job.ExpiresAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) DeleteRenderJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM render_jobs WHERE id = ?`, id)
	return err
}

// CaptionCacheKey identifies a translation of content in the given dialect into target.
func CaptionCacheKey(dialect, target, content string) string {
	sum := sha256.Sum256([]byte(dialect + "\x00" + target + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

func (s *SQLiteStore) PutCaptionCache(ctx context.Context, entry CaptionCacheEntry) error {
	if strings.TrimSpace(entry.CacheKey) == "" {
		return fmt.Errorf("cache key is required")
	}
	updatedAt := entry.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	expiresAt := entry.ExpiresAt.UTC()
	if expiresAt.IsZero() {
		expiresAt = updatedAt.Add(captionCacheDefaultTTL)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO caption_cache (
			cache_key, dialect, target_lang, translated, expires_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			dialect=excluded.dialect,
			target_lang=excluded.target_lang,
			translated=excluded.translated,
			expires_at=excluded.expires_at,
			updated_at=excluded.updated_at`,
		entry.CacheKey,
		entry.Dialect,
		entry.TargetLanguage,
		entry.Translated,
		expiresAt,
		updatedAt,
	)
	return err
}

func (s *SQLiteStore) GetCaptionCache(ctx context.Context, cacheKey string, now time.Time) (CaptionCacheEntry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT cache_key, dialect, target_lang, translated, expires_at, updated_at
		 FROM caption_cache
		 WHERE cache_key = ? AND expires_at > ?`,
		cacheKey,
		now.UTC(),
	)
	var ret CaptionCacheEntry
	if err := row.Scan(
		&ret.CacheKey,
		&ret.Dialect,
		&ret.TargetLanguage,
		&ret.Translated,
		&ret.ExpiresAt,
		&ret.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CaptionCacheEntry{}, false, nil
		}
		return CaptionCacheEntry{}, false, err
	}
	return ret, true, nil
}

// DeleteExpiredCaptionCache removes caption_cache rows whose expires_at is before now.
func (s *SQLiteStore) DeleteExpiredCaptionCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM caption_cache WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
