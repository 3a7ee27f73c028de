package service

import (
	"context"
	"sync"
	"time"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	"judgebox/internal/judge/repository"
	"judgebox/internal/judge/sandbox"
)

type fakeSession struct {
	mu       sync.Mutex
	comp     sandbox.CompileResult
	compErr  error
	run      sandbox.RunResult
	runErr   error
	meta     sandbox.Metadata
	stdout   string
	stderr   string
	released int
	panicMsg string
}

func (f *fakeSession) Compile(context.Context) (sandbox.CompileResult, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.comp, f.compErr
}

func (f *fakeSession) Run(context.Context) (sandbox.RunResult, error) {
	return f.run, f.runErr
}

func (f *fakeSession) Metadata() (sandbox.Metadata, error) {
	return f.meta, nil
}

func (f *fakeSession) Stdout() (string, error) { return f.stdout, nil }
func (f *fakeSession) Stderr() (string, error) { return f.stderr, nil }

func (f *fakeSession) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

func (f *fakeSession) releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

type fakeSandbox struct {
	session    *fakeSession
	acquireErr error
}

func (f *fakeSandbox) Acquire(ctx context.Context, sub *model.Submission) (sandbox.Session, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return f.session, nil
}

func (f *fakeSandbox) Name() string { return "fake" }

type fakePublisher struct {
	mu        sync.Mutex
	published []*model.Submission
}

func (f *fakePublisher) PublishVerdict(ctx context.Context, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, sub.Clone())
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	verdicts []catalog.Status
	rejected []string
	compiles int
	runs     int
}

func (r *recordingObserver) ObserveCompile(string, time.Duration, bool) {
	r.mu.Lock()
	r.compiles++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveRun(string, time.Duration) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveVerdict(_ string, status catalog.Status) {
	r.mu.Lock()
	r.verdicts = append(r.verdicts, status)
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveRejected(reason string) {
	r.mu.Lock()
	r.rejected = append(r.rejected, reason)
	r.mu.Unlock()
}

// flakyStore fails the next failures calls to Update with err.
type flakyStore struct {
	repository.Store
	mu       sync.Mutex
	failures int
	err      error
	updates  int
}

func (f *flakyStore) Update(ctx context.Context, sub *model.Submission) error {
	f.mu.Lock()
	f.updates++
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return f.err
	}
	f.mu.Unlock()
	return f.Store.Update(ctx, sub)
}

func (f *flakyStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}
