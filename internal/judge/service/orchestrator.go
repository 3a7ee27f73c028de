package service

import (
	"context"
	"fmt"
	"time"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	"judgebox/internal/judge/repository"
	"judgebox/internal/judge/sandbox"
	"judgebox/internal/judge/verdict"
	appErr "judgebox/pkg/errors"
	"judgebox/pkg/utils/logger"

	"go.uber.org/zap"
)

// Orchestrator drives one submission from In Queue to its terminal status.
type Orchestrator struct {
	store     repository.Store
	sandbox   sandbox.Sandbox
	publisher repository.VerdictPublisher
	observer  Observer
	timeout   time.Duration
	retries   int
	delay     time.Duration
	now       func() time.Time
}

// OrchestratorConfig holds orchestrator dependencies.
type OrchestratorConfig struct {
	Store     repository.Store
	Sandbox   sandbox.Sandbox
	Publisher repository.VerdictPublisher
	Observer  Observer
	// Timeout bounds one whole submission. Zero means no bound.
	Timeout time.Duration
	// MaxRetries bounds extra attempts at the terminal store write.
	// Default: 3
	MaxRetries int
	// RetryDelay sets the delay between terminal write attempts.
	// Default: 100ms
	RetryDelay time.Duration
}

const (
	defaultWriteRetries = 3
	defaultRetryDelay   = 100 * time.Millisecond
)

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox is required")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = repository.NoopPublisher{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultWriteRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Orchestrator{
		store:     cfg.Store,
		sandbox:   cfg.Sandbox,
		publisher: cfg.Publisher,
		observer:  cfg.Observer,
		timeout:   cfg.Timeout,
		retries:   cfg.MaxRetries,
		delay:     cfg.RetryDelay,
		now:       time.Now,
	}, nil
}

// Process judges submission id and stores the terminal record.
func (o *Orchestrator) Process(ctx context.Context, id int64) error {
	sub, err := o.store.ByID(ctx, id)
	if err != nil {
		return err
	}
	ctx = logger.WithToken(ctx, sub.Token)

	if err := sub.Start(o.now()); err != nil {
		return err
	}
	if err := o.store.Update(ctx, sub); err != nil {
		logger.Error(ctx, "mark processing failed", zap.Error(err))
		o.fail(context.WithoutCancel(ctx), sub, err)
		return err
	}
	logger.Info(ctx, "judging submission", zap.Int64("id", sub.ID), zap.Int("language_id", sub.LanguageID))

	jobCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	outcome, err := o.judge(jobCtx, sub)
	if err != nil {
		logger.Error(ctx, "judge failed", zap.Error(err), zap.String("stack", appErr.GetError(err).Stack))
		outcome = verdict.Outcome{
			Status: catalog.InternalError,
			Result: model.Result{Message: model.StringPtr(appErr.GetError(err).Error())},
		}
	}

	// The terminal write must land even when the pool is shutting down.
	ctx = context.WithoutCancel(ctx)
	if err := sub.Finish(outcome.Status, outcome.Result, o.now()); err != nil {
		return err
	}
	if err := o.persistFinal(ctx, sub); err != nil {
		return err
	}

	lang, _ := sub.Language()
	o.observer.ObserveVerdict(lang.Name, sub.Status)
	logger.Info(ctx, "submission finished", zap.String("status", sub.Status.Description))

	if err := o.publisher.PublishVerdict(ctx, sub); err != nil {
		logger.Warn(ctx, "publish verdict failed", zap.Error(err))
	}
	return nil
}

// fail stores sub as Internal Error after a write that left it unjudged.
func (o *Orchestrator) fail(ctx context.Context, sub *model.Submission, cause error) {
	msg := appErr.GetError(cause).Error()
	if err := sub.Finish(catalog.InternalError, model.Result{Message: &msg}, o.now()); err != nil {
		return
	}
	if err := o.persistFinal(ctx, sub); err != nil {
		logger.Error(ctx, "mark failed submission failed", zap.Error(err))
	}
}

// persistFinal writes a terminal record, retrying transient store errors.
func (o *Orchestrator) persistFinal(ctx context.Context, sub *model.Submission) error {
	var err error
	for attempt := 0; attempt <= o.retries; attempt++ {
		if attempt > 0 {
			logger.Warn(ctx, "retrying terminal write", zap.Int("attempt", attempt), zap.Error(err))
			timer := time.NewTimer(o.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
		err = o.store.Update(ctx, sub)
		if err == nil {
			return nil
		}
		// A lost ack on an earlier attempt shows up as an already final record.
		if appErr.Is(err, appErr.InvalidTransition) || appErr.Is(err, appErr.SubmissionNotFound) {
			return err
		}
	}
	return err
}

func (o *Orchestrator) judge(ctx context.Context, sub *model.Submission) (out verdict.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = verdict.Outcome{}
			err = appErr.Newf(appErr.JudgeSystemError, "panic: %v", r)
		}
	}()
	lang, _ := sub.Language()

	sess, err := o.sandbox.Acquire(ctx, sub)
	if err != nil {
		return verdict.Outcome{}, err
	}
	defer func() {
		if relErr := sess.Release(ctx); relErr != nil {
			logger.Warn(ctx, "sandbox release failed", zap.Error(relErr))
		}
	}()

	start := time.Now()
	comp, err := sess.Compile(ctx)
	if err != nil {
		return verdict.Outcome{}, appErr.Wrapf(err, appErr.SandboxExecFailed, "compile step failed: %v", err)
	}
	if !comp.Skipped {
		o.observer.ObserveCompile(lang.Name, time.Since(start), comp.OK)
	}
	if !comp.OK {
		return verdict.Outcome{
			Status: catalog.CompilationError,
			Result: model.Result{CompileOutput: &comp.Output},
		}, nil
	}

	start = time.Now()
	run, err := sess.Run(ctx)
	if err != nil {
		return verdict.Outcome{}, appErr.Wrapf(err, appErr.SandboxExecFailed, "run step failed: %v", err)
	}
	o.observer.ObserveRun(lang.Name, time.Since(start))
	if !run.OK {
		logger.Debug(ctx, "run step exited abnormally", zap.String("error", run.Err))
	}

	meta, err := sess.Metadata()
	if err != nil {
		return verdict.Outcome{}, err
	}
	stdout, err := sess.Stdout()
	if err != nil {
		return verdict.Outcome{}, fmt.Errorf("read stdout: %w", err)
	}
	stderr, err := sess.Stderr()
	if err != nil {
		return verdict.Outcome{}, fmt.Errorf("read stderr: %w", err)
	}

	out = verdict.Decide(verdict.Input{
		Meta:     meta,
		Expected: sub.ExpectedOutput,
		Stdout:   stdout,
		Stderr:   stderr,
		Cgroups:  sub.Flags.UsesCgroups(),
	})
	if comp.Output != "" {
		out.Result.CompileOutput = &comp.Output
	}
	return out, nil
}
