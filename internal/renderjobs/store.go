package renderjobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/MimeLyc/subrender/pkg/log"
)

const DefaultTTL = time.Hour

// Store owns rendered artifacts until they are cancelled or expire.
// All registry mutations happen under one mutex. File deletion for a job is
// performed only by the caller that removed the job from the registry.
type Store struct {
	scheduler  Scheduler
	persister  Persister
	defaultTTL time.Duration
	now        func() time.Time
	newID      func() string
	removeFile func(string) error
	statFile   func(string) (os.FileInfo, error)

	mu   sync.Mutex
	jobs map[string]*RenderJob
}

type Option func(*Store)

func WithScheduler(s Scheduler) Option {
	return func(st *Store) {
		if s != nil {
			st.scheduler = s
		}
	}
}

func WithPersister(p Persister) Option {
	return func(st *Store) {
		st.persister = p
	}
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(st *Store) {
		if ttl > 0 {
			st.defaultTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(st *Store) {
		if now != nil {
			st.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(st *Store) {
		if gen != nil {
			st.newID = gen
		}
	}
}

func withFileOps(remove func(string) error, stat func(string) (os.FileInfo, error)) Option {
	return func(st *Store) {
		if remove != nil {
			st.removeFile = remove
		}
		if stat != nil {
			st.statFile = stat
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		scheduler:  NewTimerScheduler(),
		defaultTTL: DefaultTTL,
		now:        time.Now,
		newID:      uuid.NewString,
		removeFile: os.Remove,
		statFile:   os.Stat,
		jobs:       make(map[string]*RenderJob),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a finished artifact and arms its expiry timer.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*RenderJob, error) {
	if strings.TrimSpace(req.ArtifactPath) == "" {
		return nil, errors.New("artifact path is required")
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.now()

	s.mu.Lock()
	id, err := s.allocateIDLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	job := &RenderJob{
		ID:            id,
		ArtifactPath:  req.ArtifactPath,
		CompositionID: req.CompositionID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		FileSize:      req.FileSize,
	}
	s.jobs[id] = job
	s.scheduler.Arm(id, ttl, s.expire)
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persistIfLive(ctx, snapshot)
	log.Info("Render job %s created: composition=%s size=%s ttl=%s",
		id, snapshot.CompositionID, humanize.Bytes(uint64(max(snapshot.FileSize, 0))), ttl)
	return snapshot, nil
}

// allocateIDLocked draws an id, retrying once on collision.
func (s *Store) allocateIDLocked() (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		id := s.newID()
		if id == "" {
			continue
		}
		if _, exists := s.jobs[id]; !exists {
			return id, nil
		}
		log.Warn("Render job id collision on %s, retrying", id)
	}
	return "", ErrIDExhausted
}

// Get returns a snapshot of a live job. Expired jobs are evicted on access.
// A job whose artifact has vanished is evicted and reported as ErrArtifactMissing.
func (s *Store) Get(id string) (*RenderJob, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if job.expired(s.now()) {
		s.dropLocked(id)
		s.mu.Unlock()
		s.discard(job, "expired")
		return nil, ErrNotFound
	}
	snapshot := cloneJob(job)
	s.mu.Unlock()

	if _, err := s.statFile(snapshot.ArtifactPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if taken, ok := s.take(id); ok {
				log.Warn("Render job %s artifact missing at %s, evicting", id, taken.ArtifactPath)
				s.discard(taken, "artifact missing")
			}
			return nil, ErrArtifactMissing
		}
		log.Warn("Render job %s: stat artifact: %v", id, err)
	}
	return snapshot, nil
}

// List returns live jobs ordered by creation time, evicting expired ones.
func (s *Store) List() []Summary {
	now := s.now()

	s.mu.Lock()
	var expired []*RenderJob
	live := make([]*RenderJob, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job.expired(now) {
			s.dropLocked(id)
			expired = append(expired, job)
			continue
		}
		live = append(live, cloneJob(job))
	}
	s.mu.Unlock()

	for _, job := range expired {
		s.discard(job, "expired")
	}

	sort.Slice(live, func(i, j int) bool {
		if live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].ID < live[j].ID
		}
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})

	out := make([]Summary, 0, len(live))
	for _, job := range live {
		out = append(out, Summary{
			ID:               job.ID,
			CompositionID:    job.CompositionID,
			CreatedAt:        job.CreatedAt,
			ExpiresAt:        job.ExpiresAt,
			FileSize:         job.FileSize,
			SecondsRemaining: job.SecondsRemaining(now),
		})
	}
	return out
}

// Cancel removes a live job and its artifact. It reports false when the job
// is unknown, already cancelled, or expired.
func (s *Store) Cancel(id string) bool {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.dropLocked(id)
	expired := job.expired(s.now())
	s.mu.Unlock()

	if expired {
		s.discard(job, "expired")
		return false
	}
	s.discard(job, "cancelled")
	return true
}

// expire is the scheduler callback. It is a no-op when the job is already gone.
func (s *Store) expire(id string) {
	job, ok := s.take(id)
	if !ok {
		return
	}
	s.discard(job, "expired")
}

// ArtifactPaths returns the artifact paths of every registered job.
func (s *Store) ArtifactPaths() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make(map[string]struct{}, len(s.jobs))
	for _, job := range s.jobs {
		paths[job.ArtifactPath] = struct{}{}
	}
	return paths
}

// Len reports the number of registered jobs, including ones not yet evicted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Restore reloads persisted jobs, discarding any that expired or lost their
// artifact while the process was down, and re-arms timers for the rest.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	loaded, err := s.persister.LoadRenderJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load render jobs: %w", err)
	}

	now := s.now()
	restored := 0
	for _, job := range loaded {
		if job == nil || strings.TrimSpace(job.ID) == "" {
			continue
		}
		if job.expired(now) {
			s.discard(job, "expired during downtime")
			continue
		}
		if _, err := s.statFile(job.ArtifactPath); errors.Is(err, fs.ErrNotExist) {
			s.discard(job, "artifact missing")
			continue
		}

		s.mu.Lock()
		if _, exists := s.jobs[job.ID]; exists {
			s.mu.Unlock()
			continue
		}
		s.jobs[job.ID] = cloneJob(job)
		s.scheduler.Arm(job.ID, job.ExpiresAt.Sub(now), s.expire)
		s.mu.Unlock()
		restored++
	}

	if restored > 0 {
		log.Info("Restored %d render jobs", restored)
	}
	return restored, nil
}

func (s *Store) take(id string) (*RenderJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	s.dropLocked(id)
	return job, true
}

func (s *Store) dropLocked(id string) {
	delete(s.jobs, id)
	s.scheduler.Disarm(id)
}

// discard deletes the artifact and the persisted record of a job that has
// already been removed from the registry.
func (s *Store) discard(job *RenderJob, reason string) {
	if err := s.removeFile(job.ArtifactPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Render job %s: remove artifact %s: %v", job.ID, job.ArtifactPath, err)
	}
	if s.persister != nil {
		if err := s.persister.DeleteRenderJob(context.Background(), job.ID); err != nil {
			log.Warn("Render job %s: delete record: %v", job.ID, err)
		}
	}
	log.Info("Render job %s removed (%s)", job.ID, reason)
}

// persistIfLive upserts the job record, then deletes it again if the job left
// the registry meanwhile. A removal that lands after the liveness check runs
// its own delete after this upsert, so no removed job keeps a record.
func (s *Store) persistIfLive(ctx context.Context, job *RenderJob) {
	if s.persister == nil {
		return
	}
	if err := s.persister.UpsertRenderJob(ctx, job); err != nil {
		log.Warn("Render job %s: persist: %v", job.ID, err)
		return
	}

	s.mu.Lock()
	_, live := s.jobs[job.ID]
	s.mu.Unlock()
	if live {
		return
	}
	if err := s.persister.DeleteRenderJob(context.Background(), job.ID); err != nil {
		log.Warn("Render job %s: delete record: %v", job.ID, err)
	}
}
