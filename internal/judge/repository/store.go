package repository

import (
	"context"

	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"
)

// Store is the submission table shared by the API and the orchestrator.
// Implementations are safe for concurrent use and hand out copies.
type Store interface {
	// Create assigns id, token and timestamps and stores sub as In Queue.
	Create(ctx context.Context, sub *model.Submission) (*model.Submission, error)
	// Update replaces the stored record. Status only moves forward and terminal records are immutable.
	Update(ctx context.Context, sub *model.Submission) error
	ByToken(ctx context.Context, token string) (*model.Submission, error)
	ByID(ctx context.Context, id int64) (*model.Submission, error)
	// All returns every live submission ordered by id.
	All(ctx context.Context) ([]*model.Submission, error)
}

func notFound() error {
	return appErr.New(appErr.SubmissionNotFound)
}

func checkUpdate(stored, next *model.Submission) error {
	if stored.Status.Terminal() {
		return appErr.Newf(appErr.InvalidTransition, "submission %s is already final", stored.Token)
	}
	if next.Status.ID < stored.Status.ID {
		return appErr.Newf(appErr.InvalidTransition, "submission %s cannot move from %q back to %q",
			stored.Token, stored.Status.Description, next.Status.Description)
	}
	if next.Token != stored.Token {
		return appErr.New(appErr.InvalidParams).WithMessage("token cannot change")
	}
	return nil
}
