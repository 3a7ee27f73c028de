package service

import (
	"context"
	"fmt"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	"judgebox/internal/judge/repository"
	appErr "judgebox/pkg/errors"
	"judgebox/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultMaxSourceBytes = 256 << 10

// SubmissionService accepts submissions and schedules them on the pool.
type SubmissionService struct {
	store          repository.Store
	pool           *Pool
	orchestrator   *Orchestrator
	observer       Observer
	defaults       model.Limits
	ceiling        model.Limits
	maxSourceBytes int
}

// Config holds service dependencies and settings.
type Config struct {
	Store        repository.Store
	Pool         *Pool
	Orchestrator *Orchestrator
	Observer     Observer
	// DefaultLimits fill fields the request leaves unset.
	DefaultLimits model.Limits
	// MaxLimits is the highest value a request may ask for.
	MaxLimits      model.Limits
	MaxSourceBytes int
}

func NewSubmissionService(cfg Config) (*SubmissionService, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = defaultMaxSourceBytes
	}
	defaults := cfg.DefaultLimits.FillZero(model.DefaultRunLimits())
	return &SubmissionService{
		store:          cfg.Store,
		pool:           cfg.Pool,
		orchestrator:   cfg.Orchestrator,
		observer:       cfg.Observer,
		defaults:       defaults,
		ceiling:        cfg.MaxLimits.FillZero(model.DefaultCompileLimits()),
		maxSourceBytes: cfg.MaxSourceBytes,
	}, nil
}

// Create validates req, stores it In Queue and schedules processing.
// The queue slot is reserved first so a rejected request leaves no record behind.
func (s *SubmissionService) Create(ctx context.Context, req model.CreateRequest) (*model.Submission, error) {
	sub, err := s.build(req)
	if err != nil {
		s.observer.ObserveRejected("invalid")
		return nil, err
	}

	reservation, err := s.pool.Reserve()
	if err != nil {
		s.observer.ObserveRejected("queue_full")
		logger.Warn(ctx, "submission rejected", zap.Error(err), zap.Int("queued", s.pool.Queued()))
		return nil, err
	}

	created, err := s.store.Create(ctx, sub)
	if err != nil {
		reservation.Cancel()
		return nil, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed: %v", err)
	}

	id := created.ID
	taskCtx := logger.WithToken(context.WithoutCancel(ctx), created.Token)
	if err := reservation.Submit(func(poolCtx context.Context) {
		runCtx, cancel := context.WithCancel(taskCtx)
		defer cancel()
		stop := context.AfterFunc(poolCtx, cancel)
		defer stop()
		if err := s.orchestrator.Process(runCtx, id); err != nil {
			logger.Error(taskCtx, "process submission failed", zap.Int64("id", id), zap.Error(err))
		}
	}); err != nil {
		s.abandon(ctx, created, err)
		return nil, err
	}

	logger.Info(taskCtx, "submission queued", zap.Int64("id", id), zap.Int("language_id", created.LanguageID))
	return created, nil
}

// abandon closes out a stored submission that could not be queued.
func (s *SubmissionService) abandon(ctx context.Context, sub *model.Submission, cause error) {
	now := s.orchestrator.now()
	if err := sub.Start(now); err != nil {
		return
	}
	msg := appErr.GetError(cause).Error()
	if err := sub.Finish(catalog.InternalError, model.Result{Message: &msg}, now); err != nil {
		return
	}
	if err := s.store.Update(ctx, sub); err != nil {
		logger.Warn(ctx, "mark abandoned submission failed", zap.Error(err))
	}
}

func (s *SubmissionService) build(req model.CreateRequest) (*model.Submission, error) {
	if _, ok := catalog.LanguageByID(req.LanguageID); !ok {
		return nil, appErr.ValidationError("language_id", fmt.Sprintf("Language with id %d not found", req.LanguageID))
	}
	if req.SourceCode == "" {
		return nil, appErr.ValidationError("source_code", "source_code is required")
	}
	if len(req.SourceCode) > s.maxSourceBytes {
		return nil, appErr.New(appErr.CodeTooLarge).WithDetail("limit", s.maxSourceBytes)
	}
	limits := req.Limits().FillZero(s.defaults)
	if field := limits.Exceeds(s.ceiling); field != "" {
		return nil, appErr.ValidationError(field, fmt.Sprintf("%s exceeds the allowed maximum", field))
	}
	return &model.Submission{
		SourceCode:           req.SourceCode,
		LanguageID:           req.LanguageID,
		Stdin:                req.Stdin,
		ExpectedOutput:       model.StringPtr(req.ExpectedOutput),
		CompilerOptions:      req.CompilerOptions,
		CommandLineArguments: req.CommandLineArguments,
		Limits:               limits,
		Flags:                req.Flags,
		Status:               catalog.InQueue,
	}, nil
}

// ByToken returns the submission with token.
func (s *SubmissionService) ByToken(ctx context.Context, token string) (*model.Submission, error) {
	return s.store.ByToken(ctx, token)
}

// Shutdown drains the pool.
func (s *SubmissionService) Shutdown(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}
