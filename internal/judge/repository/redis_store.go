package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"judgebox/internal/common/cache"
	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"

	"github.com/google/uuid"
)

const (
	DefaultKeyPrefix = "judge:submission:"
	DefaultRecordTTL = 24 * time.Hour
)

// RedisStore keeps submissions as JSON documents so several judge
// processes can share one table. Records expire after TTL.
type RedisStore struct {
	cache  cache.Cache
	prefix string
	TTL    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a store over cacheClient. Empty prefix and zero ttl use the defaults.
func NewRedisStore(cacheClient cache.Cache, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	return &RedisStore{cache: cacheClient, prefix: prefix, TTL: ttl, now: time.Now}
}

func (r *RedisStore) docKey(id int64) string {
	return r.prefix + strconv.FormatInt(id, 10)
}

func (r *RedisStore) tokenKey(token string) string {
	return r.prefix + "token:" + token
}

func (r *RedisStore) seqKey() string {
	return r.prefix + "seq"
}

func (r *RedisStore) idsKey() string {
	return r.prefix + "ids"
}

func (r *RedisStore) Create(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	if sub == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("submission is required")
	}
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	id, err := r.cache.Incr(ctx, r.seqKey())
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "allocate submission id failed")
	}

	rec := sub.Clone()
	rec.ID = id
	now := r.now()
	rec.Status = catalog.InQueue
	rec.CreatedAt = now
	rec.QueuedAt = now
	rec.StartedAt = nil
	rec.FinishedAt = nil
	rec.Result = model.Result{}

	ttl := cache.JitterTTL(r.TTL)
	for {
		rec.Token = uuid.NewString()
		ok, err := r.cache.SetNX(ctx, r.tokenKey(rec.Token), strconv.FormatInt(id, 10), ttl)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.CacheError, "reserve token failed")
		}
		if ok {
			break
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal submission failed: %w", err)
	}
	err = r.cache.Pipeline(ctx, func(pipe cache.Pipeliner) error {
		if err := pipe.Set(r.docKey(id), string(data), ttl); err != nil {
			return err
		}
		return pipe.ZAdd(r.idsKey(), cache.ZMember{Score: float64(id), Member: strconv.FormatInt(id, 10)})
	})
	if err != nil {
		_ = r.cache.Del(ctx, r.tokenKey(rec.Token))
		return nil, appErr.Wrapf(err, appErr.CacheError, "store submission failed")
	}
	return rec, nil
}

func (r *RedisStore) Update(ctx context.Context, sub *model.Submission) error {
	if sub == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("submission is required")
	}
	stored, err := r.ByID(ctx, sub.ID)
	if err != nil {
		return err
	}
	if err := checkUpdate(stored, sub); err != nil {
		return err
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission failed: %w", err)
	}
	ttl := cache.JitterTTL(r.TTL)
	err = r.cache.Pipeline(ctx, func(pipe cache.Pipeliner) error {
		if err := pipe.Set(r.docKey(sub.ID), string(data), ttl); err != nil {
			return err
		}
		return pipe.Expire(r.tokenKey(sub.Token), ttl)
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "update submission failed")
	}
	return nil
}

func (r *RedisStore) ByToken(ctx context.Context, token string) (*model.Submission, error) {
	if token == "" {
		return nil, notFound()
	}
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	raw, err := r.cache.Get(ctx, r.tokenKey(token))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "lookup token failed")
	}
	if raw == "" {
		return nil, notFound()
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "corrupt token index for %s", token)
	}
	return r.ByID(ctx, id)
}

func (r *RedisStore) ByID(ctx context.Context, id int64) (*model.Submission, error) {
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	raw, err := r.cache.Get(ctx, r.docKey(id))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load submission failed")
	}
	if raw == "" {
		return nil, notFound()
	}
	var sub model.Submission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "decode submission failed")
	}
	return &sub, nil
}

// All drops ids whose documents have expired.
func (r *RedisStore) All(ctx context.Context) ([]*model.Submission, error) {
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	ids, err := r.cache.ZRange(ctx, r.idsKey(), 0, -1)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "list submissions failed")
	}
	out := make([]*model.Submission, 0, len(ids))
	var expired []string
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			expired = append(expired, raw)
			continue
		}
		sub, err := r.ByID(ctx, id)
		if appErr.Is(err, appErr.SubmissionNotFound) {
			expired = append(expired, raw)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if len(expired) > 0 {
		_ = r.cache.ZRem(ctx, r.idsKey(), expired...)
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)
