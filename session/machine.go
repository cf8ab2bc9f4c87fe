// Package session drives a tester through the instruction catalog and the
// closing questionnaire. The Session value is owned by the caller: every
// operation takes the current value and returns the next one.
package session

import (
	"context"
	"strings"
	"time"

	"testflow_backend/apperr"
	"testflow_backend/models"
	"testflow_backend/report"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State string

const (
	StateNotStarted            State = "not_started"
	StateInProgress            State = "in_progress"
	StateAwaitingQuestionnaire State = "awaiting_questionnaire"
	StateCompleted             State = "completed"
)

type Session struct {
	RunID          string    `json:"run_id"`
	TesterName     string    `json:"tester_name"`
	StartTime      time.Time `json:"start_time"`
	CurrentIndex   int       `json:"current_index"`
	InstructionIDs []int     `json:"instruction_ids"`
	State          State     `json:"state"`
	// Questions is filled on entering awaiting_questionnaire.
	Questions []models.QuestionnaireItem `json:"questions,omitempty"`
	// AnswersRecorded marks that only the report is left to retry.
	AnswersRecorded bool `json:"answers_recorded"`
}

// Step is the outcome of Respond. Replayed is set when the step had already
// been stored by an earlier call whose reply never reached the client.
type Step struct {
	Session    Session
	Response   models.TestResponse
	Replayed   bool
	AlertSent  bool
	AlertError error
}

type Catalog interface {
	OrderedIDs(ctx context.Context) ([]int, error)
}

type QuestionSource interface {
	List(ctx context.Context) ([]models.QuestionnaireItem, error)
}

type Reporter interface {
	Generate(ctx context.Context, run report.Run) (report.Artifact, error)
}

type Machine struct {
	catalog   Catalog
	questions QuestionSource
	recorder  *Recorder
	reporter  Reporter
	now       func() time.Time
	newRunID  func() (uuid.UUID, error)
	logger    *zap.Logger
}

func NewMachine(c Catalog, q QuestionSource, recorder *Recorder, reporter Reporter, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		catalog:   c,
		questions: q,
		recorder:  recorder,
		reporter:  reporter,
		now:       time.Now,
		newRunID:  uuid.NewV7,
		logger:    logger.Named("session"),
	}
}

// Start opens a run over the current catalog. The instruction ids are
// snapshotted so later catalog edits do not change the run length.
func (m *Machine) Start(ctx context.Context, testerName string) (Session, error) {
	const op = "session.Start"
	testerName = strings.TrimSpace(testerName)
	if testerName == "" {
		return Session{State: StateNotStarted}, apperr.Validation(op, "tester name is required")
	}

	ids, err := m.catalog.OrderedIDs(ctx)
	if err != nil {
		return Session{State: StateNotStarted}, err
	}
	if len(ids) == 0 {
		return Session{State: StateNotStarted}, apperr.Validation(op, "there are no test instructions to run")
	}
	runID, err := m.newRunID()
	if err != nil {
		return Session{State: StateNotStarted}, err
	}

	s := Session{
		RunID:          runID.String(),
		TesterName:     testerName,
		StartTime:      m.now(),
		CurrentIndex:   0,
		InstructionIDs: ids,
		State:          StateInProgress,
	}
	m.logger.Info("test run started",
		zap.String("test_run_id", s.RunID),
		zap.String("tester", testerName),
		zap.Int("instructions", len(ids)))
	return s, nil
}

// Respond records the decision for the current instruction and advances.
// On error the returned session is the unchanged input.
func (m *Machine) Respond(ctx context.Context, s Session, approved bool, remark string) (Step, error) {
	const op = "session.Respond"
	if s.State != StateInProgress {
		return Step{Session: s}, apperr.Validation(op, "cannot respond while %s", s.State)
	}
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.InstructionIDs) {
		return Step{Session: s}, apperr.Validation(op, "current index %d is outside the run", s.CurrentIndex)
	}
	if !approved && strings.TrimSpace(remark) == "" {
		return Step{Session: s}, apperr.Validation(op, "a remark is required when rejecting a test")
	}

	receipt, err := m.recorder.RecordResponse(ctx, models.TestResponse{
		InstructionID: s.InstructionIDs[s.CurrentIndex],
		TestRunID:     s.RunID,
		TesterName:    s.TesterName,
		Approved:      approved,
		Remark:        &remark,
		TestNumber:    s.CurrentIndex + 1,
	})
	if err != nil {
		return Step{Session: s}, err
	}

	next := s
	if s.CurrentIndex+1 < len(s.InstructionIDs) {
		next.CurrentIndex++
	} else {
		next.State = StateAwaitingQuestionnaire
		items, err := m.questions.List(ctx)
		if err != nil {
			// SubmitQuestionnaire reads the questionnaire again.
			m.logger.Warn("questionnaire unavailable", zap.String("test_run_id", s.RunID), zap.Error(err))
		}
		next.Questions = items
	}

	return Step{
		Session:    next,
		Response:   receipt.Response,
		Replayed:   receipt.Replayed,
		AlertSent:  receipt.AlertSent,
		AlertError: receipt.AlertError,
	}, nil
}

// SubmitQuestionnaire stores the answers, then compiles and dispatches the
// report. When the report fails the session keeps awaiting the questionnaire
// with AnswersRecorded set, and a repeated call only retries the report.
func (m *Machine) SubmitQuestionnaire(ctx context.Context, s Session, answers map[int]string) (Session, error) {
	const op = "session.SubmitQuestionnaire"
	if s.State != StateAwaitingQuestionnaire {
		return s, apperr.Validation(op, "cannot submit the questionnaire while %s", s.State)
	}

	// AnswersRecorded only counts when answers are stored for the run.
	recorded := false
	if s.AnswersRecorded {
		var err error
		if recorded, err = m.recorder.AnswersStored(ctx, s.RunID); err != nil {
			return s, err
		}
	}
	if !recorded {
		if err := m.recorder.RecordAnswers(ctx, s.RunID, s.TesterName, answers); err != nil {
			s.AnswersRecorded = false
			return s, err
		}
	}
	s.AnswersRecorded = true

	_, err := m.reporter.Generate(ctx, report.Run{
		ID:         s.RunID,
		TesterName: s.TesterName,
		Start:      s.StartTime,
		End:        m.now(),
	})
	if err != nil {
		return s, err
	}

	m.logger.Info("test run completed", zap.String("test_run_id", s.RunID))
	return Session{State: StateCompleted}, nil
}
