package report

import (
	"context"
	"time"

	"testflow_backend/notify"
	"testflow_backend/store"

	"go.uber.org/zap"
)

type Mailer interface {
	RunReport(ctx context.Context, testerName string, att notify.Attachment) error
}

// Service compiles a run and dispatches it. Dispatch failures never touch
// the persisted responses, so any call can be repeated for the same run.
type Service struct {
	compiler  *Compiler
	responses store.Responses
	mailer    Mailer
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(compiler *Compiler, responses store.Responses, mailer Mailer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		compiler:  compiler,
		responses: responses,
		mailer:    mailer,
		now:       time.Now,
		logger:    logger.Named("report"),
	}
}

func (s *Service) Generate(ctx context.Context, run Run) (Artifact, error) {
	if run.End.IsZero() {
		run.End = s.now()
	}
	artifact, err := s.compiler.Compile(ctx, run)
	if err != nil {
		return Artifact{}, err
	}
	err = s.mailer.RunReport(ctx, run.TesterName, notify.Attachment{
		Filename:    artifact.Filename,
		ContentType: artifact.ContentType,
		Data:        artifact.Data,
	})
	if err != nil {
		s.logger.Error("report dispatch failed", zap.String("test_run_id", run.ID), zap.Error(err))
		return artifact, err
	}
	return artifact, nil
}

// Resend rebuilds the run from its first stored response and mails it again,
// with now as the end time.
func (s *Service) Resend(ctx context.Context, runID string) (Artifact, error) {
	run, err := s.reconstruct(ctx, runID)
	if err != nil {
		return Artifact{}, err
	}
	return s.Generate(ctx, run)
}

// Download compiles the run without mailing it.
func (s *Service) Download(ctx context.Context, runID string) (Artifact, error) {
	run, err := s.reconstruct(ctx, runID)
	if err != nil {
		return Artifact{}, err
	}
	return s.compiler.Compile(ctx, run)
}

func (s *Service) reconstruct(ctx context.Context, runID string) (Run, error) {
	first, err := s.responses.FirstResponse(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	return Run{
		ID:         runID,
		TesterName: first.TesterName,
		Start:      first.CreatedAt,
		End:        s.now(),
	}, nil
}
