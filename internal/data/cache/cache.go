package cache

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viccon/sturdyc"

	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
	"github.com/apolmig/smartqr-backend/internal/utils"
)

// Config tunes the in-process entity cache. Entries are last-known snapshots,
// never authoritative; the database stays the source of truth.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

func LoadConfig(logg *logger.Logger) Config {
	return Config{
		Capacity:           utils.GetEnvAsInt("CACHE_CAPACITY", 10000, logg),
		NumShards:          utils.GetEnvAsInt("CACHE_SHARDS", 64, logg),
		TTL:                utils.GetEnvAsDuration("CACHE_TTL", 5*time.Minute, logg),
		EvictionPercentage: utils.GetEnvAsInt("CACHE_EVICTION_PERCENTAGE", 10, logg),
		EvictionInterval:   utils.GetEnvAsDuration("CACHE_EVICTION_INTERVAL", time.Minute, logg),
	}
}

// Store holds recently-resolved entities keyed by logical identity
// ("user-email:...", "record-shortkey:...", "user-records:..."). Mutations
// invalidate; they never update in place, so post-mutation reads always
// repopulate from the database.
type Store struct {
	client *sturdyc.Client[any]
	log    *logger.Logger
}

func New(baseLog *logger.Logger, cfg Config) *Store {
	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		sturdyc.WithEvictionInterval(cfg.EvictionInterval),
	)
	return &Store{
		client: client,
		log:    baseLog.With("component", "EntityCache"),
	}
}

func UserKey(email string) string {
	return "user-email:" + NormalizeEmail(email)
}

func RecordKey(shortKey string) string {
	return "record-shortkey:" + shortKey
}

func UserRecordsKey(userID uuid.UUID) string {
	return "user-records:" + userID.String()
}

// NormalizeEmail is the case normalization applied before any email is used
// as an identity, in cache keys and database lookups alike.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) GetUser(email string) (*domain.User, bool) {
	v, ok := s.client.Get(UserKey(email))
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok
}

func (s *Store) PutUser(u *domain.User) {
	if u == nil {
		return
	}
	s.client.Set(UserKey(u.Email), any(u))
}

func (s *Store) InvalidateUser(email string) {
	s.client.Delete(UserKey(email))
}

func (s *Store) GetRecord(shortKey string) (*domain.Record, bool) {
	v, ok := s.client.Get(RecordKey(shortKey))
	if !ok {
		return nil, false
	}
	r, ok := v.(*domain.Record)
	return r, ok
}

func (s *Store) PutRecord(r *domain.Record) {
	if r == nil {
		return
	}
	s.client.Set(RecordKey(r.ShortKey), any(r))
}

func (s *Store) InvalidateRecord(shortKey string) {
	s.client.Delete(RecordKey(shortKey))
}

func (s *Store) GetUserRecords(userID uuid.UUID) ([]*domain.Record, bool) {
	v, ok := s.client.Get(UserRecordsKey(userID))
	if !ok {
		return nil, false
	}
	rows, ok := v.([]*domain.Record)
	return rows, ok
}

func (s *Store) PutUserRecords(userID uuid.UUID, rows []*domain.Record) {
	s.client.Set(UserRecordsKey(userID), any(rows))
}

func (s *Store) InvalidateUserRecords(userID uuid.UUID) {
	s.client.Delete(UserRecordsKey(userID))
}

// Size reports resident entries, for the diagnostics surface.
func (s *Store) Size() int {
	return s.client.Size()
}
