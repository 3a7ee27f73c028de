package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"judgebox/internal/common/cache"
	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := cache.NewRedisCache(srv.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewRedisStore(c, "", time.Hour), srv
}

func storesUnderTest(t *testing.T) map[string]Store {
	redisStore, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func newSubmission() *model.Submission {
	return &model.Submission{
		SourceCode: "print(1)",
		LanguageID: 4,
		Limits:     model.DefaultRunLimits(),
		Flags:      model.Flags{PerProcessTime: true, PerProcessMemory: true},
		Status:     catalog.Accepted,
	}
}

func TestStoreCreateAssignsIdentity(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		ctx := context.Background()
		first, err := store.Create(ctx, newSubmission())
		if err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}
		second, err := store.Create(ctx, newSubmission())
		if err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}
		if first.ID != 1 || second.ID != 2 {
			t.Fatalf("%s: expected monotonic ids, got %d %d", name, first.ID, second.ID)
		}
		if first.Token == "" || first.Token == second.Token {
			t.Fatalf("%s: expected distinct tokens", name)
		}
		if first.Status != catalog.InQueue {
			t.Fatalf("%s: expected In Queue, got %q", name, first.Status.Description)
		}
		if first.CreatedAt.IsZero() || first.QueuedAt.IsZero() {
			t.Fatalf("%s: timestamps not set", name)
		}

		byToken, err := store.ByToken(ctx, second.Token)
		if err != nil || byToken.ID != 2 || byToken.SourceCode != "print(1)" {
			t.Fatalf("%s: lookup by token failed: %+v %v", name, byToken, err)
		}
		byID, err := store.ByID(ctx, 1)
		if err != nil || byID.Token != first.Token {
			t.Fatalf("%s: lookup by id failed: %+v %v", name, byID, err)
		}
		all, err := store.All(ctx)
		if err != nil || len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
			t.Fatalf("%s: unexpected listing %v %v", name, all, err)
		}
	}
}

func TestStoreNotFound(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		ctx := context.Background()
		if _, err := store.ByToken(ctx, "missing"); !appErr.Is(err, appErr.SubmissionNotFound) {
			t.Fatalf("%s: expected not found by token, got %v", name, err)
		}
		if _, err := store.ByID(ctx, 42); !appErr.Is(err, appErr.SubmissionNotFound) {
			t.Fatalf("%s: expected not found by id, got %v", name, err)
		}
		if err := store.Update(ctx, &model.Submission{ID: 42}); !appErr.Is(err, appErr.SubmissionNotFound) {
			t.Fatalf("%s: expected not found on update, got %v", name, err)
		}
	}
}

func TestStoreLifecycleAndImmutability(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		ctx := context.Background()
		sub, err := store.Create(ctx, newSubmission())
		if err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}

		if err := sub.Start(time.Now()); err != nil {
			t.Fatalf("%s: start: %v", name, err)
		}
		if err := store.Update(ctx, sub); err != nil {
			t.Fatalf("%s: update processing: %v", name, err)
		}
		got, _ := store.ByToken(ctx, sub.Token)
		if got.Status != catalog.Processing || got.StartedAt == nil {
			t.Fatalf("%s: expected Processing, got %q", name, got.Status.Description)
		}

		out := "1\n"
		if err := sub.Finish(catalog.Accepted, model.Result{Stdout: &out}, time.Now()); err != nil {
			t.Fatalf("%s: finish: %v", name, err)
		}
		if err := store.Update(ctx, sub); err != nil {
			t.Fatalf("%s: update final: %v", name, err)
		}
		got, _ = store.ByToken(ctx, sub.Token)
		if got.Status != catalog.Accepted || got.Result.Stdout == nil || *got.Result.Stdout != "1\n" {
			t.Fatalf("%s: final state not stored: %+v", name, got)
		}

		got.Result = model.Result{}
		if err := store.Update(ctx, got); !appErr.Is(err, appErr.InvalidTransition) {
			t.Fatalf("%s: expected final record to be immutable, got %v", name, err)
		}
	}
}

func TestStoreRejectsStatusRegression(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		ctx := context.Background()
		sub, err := store.Create(ctx, newSubmission())
		if err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}
		if err := sub.Start(time.Now()); err != nil {
			t.Fatalf("%s: start: %v", name, err)
		}
		if err := store.Update(ctx, sub); err != nil {
			t.Fatalf("%s: update processing: %v", name, err)
		}

		sub.Status = catalog.InQueue
		if err := store.Update(ctx, sub); !appErr.Is(err, appErr.InvalidTransition) {
			t.Fatalf("%s: expected regression to be rejected, got %v", name, err)
		}
		got, _ := store.ByToken(ctx, sub.Token)
		if got.Status != catalog.Processing {
			t.Fatalf("%s: stored status changed to %q", name, got.Status.Description)
		}
	}
}

func TestStoreAllowsQueuedToFinal(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		ctx := context.Background()
		sub, err := store.Create(ctx, newSubmission())
		if err != nil {
			t.Fatalf("%s: create: %v", name, err)
		}
		now := time.Now()
		_ = sub.Start(now)
		msg := "boom"
		if err := sub.Finish(catalog.InternalError, model.Result{Message: &msg}, now); err != nil {
			t.Fatalf("%s: finish: %v", name, err)
		}
		if err := store.Update(ctx, sub); err != nil {
			t.Fatalf("%s: skipping Processing should be allowed: %v", name, err)
		}
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sub, _ := store.Create(ctx, newSubmission())
	sub.SourceCode = "mutated"
	got, _ := store.ByID(ctx, sub.ID)
	if got.SourceCode != "print(1)" {
		t.Fatalf("store leaked its record")
	}
}

func TestMemoryStoreConcurrentCreate(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Create(context.Background(), newSubmission()); err != nil {
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()
	all, _ := store.All(context.Background())
	if len(all) != 50 || all[49].ID != 50 {
		t.Fatalf("expected 50 sequential records, got %d", len(all))
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()
	sub, err := store.Create(ctx, newSubmission())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ttl := srv.TTL(store.docKey(sub.ID)); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	srv.FastForward(2 * time.Hour)
	if _, err := store.ByToken(ctx, sub.Token); !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected expired record, got %v", err)
	}
	all, err := store.All(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty listing, got %v %v", all, err)
	}
	if members, _ := srv.ZMembers(store.idsKey()); len(members) != 0 {
		t.Fatalf("expired id not pruned: %v", members)
	}
}

func TestRedisStoreNilCache(t *testing.T) {
	store := NewRedisStore(nil, "", 0)
	if _, err := store.Create(context.Background(), newSubmission()); !appErr.Is(err, appErr.CacheError) {
		t.Fatalf("expected cache error, got %v", err)
	}
}
