package session

import (
	"context"
	"strings"

	"testflow_backend/apperr"
	"testflow_backend/models"
	"testflow_backend/notify"
	"testflow_backend/store"

	"go.uber.org/zap"
)

// Alerter sends the rejection alert for a recorded response.
type Alerter interface {
	RejectionAlert(ctx context.Context, a notify.Alert) error
}

// Receipt reports what happened to a recorded response. AlertError is set
// when the rejection alert could not be delivered; the response is stored
// regardless. Replayed marks a resubmission of an already stored step, for
// which no alert is sent again.
type Receipt struct {
	Response   models.TestResponse
	Replayed   bool
	AlertSent  bool
	AlertError error
}

type Recorder struct {
	responses      store.Responses
	instructions   store.Instructions
	questionnaires store.Questionnaires
	alerter        Alerter
	logger         *zap.Logger
}

func NewRecorder(s store.Store, alerter Alerter, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		responses:      s,
		instructions:   s,
		questionnaires: s,
		alerter:        alerter,
		logger:         logger.Named("recorder"),
	}
}

// RecordResponse persists one test response. A rejection alert is sent after
// the insert succeeds. Resubmitting a stored step for the same instruction
// returns the stored row.
func (r *Recorder) RecordResponse(ctx context.Context, resp models.TestResponse) (Receipt, error) {
	const op = "session.RecordResponse"
	resp.TestRunID = strings.TrimSpace(resp.TestRunID)
	resp.TesterName = strings.TrimSpace(resp.TesterName)
	switch {
	case resp.TestRunID == "":
		return Receipt{}, apperr.Validation(op, "test run id is required")
	case resp.TesterName == "":
		return Receipt{}, apperr.Validation(op, "tester name is required")
	case resp.TestNumber < 1:
		return Receipt{}, apperr.Validation(op, "test number must be at least 1")
	}

	remark := ""
	if resp.Remark != nil {
		remark = strings.TrimSpace(*resp.Remark)
	}
	if !resp.Approved && remark == "" {
		return Receipt{}, apperr.Validation(op, "a remark is required when rejecting a test")
	}
	resp.Remark = nil
	if remark != "" {
		resp.Remark = &remark
	}

	instruction, err := r.instructions.GetInstruction(ctx, resp.InstructionID)
	if err != nil {
		return Receipt{}, err
	}

	stored, created, err := r.responses.InsertTestResponse(ctx, resp)
	if err != nil {
		return Receipt{}, err
	}
	if !created {
		r.logger.Info("test response already recorded",
			zap.String("test_run_id", stored.TestRunID),
			zap.Int("test_number", stored.TestNumber))
		return Receipt{Response: stored, Replayed: true}, nil
	}
	receipt := Receipt{Response: stored}
	r.logger.Info("test response recorded",
		zap.String("test_run_id", stored.TestRunID),
		zap.Int("test_number", stored.TestNumber),
		zap.Bool("approved", stored.Approved))

	if stored.Approved {
		return receipt, nil
	}
	err = r.alerter.RejectionAlert(ctx, notify.Alert{
		TesterName:       stored.TesterName,
		InstructionTitle: instruction.Title,
		TestNumber:       stored.TestNumber,
		Remark:           remark,
	})
	if err != nil {
		r.logger.Warn("rejection alert not delivered",
			zap.String("test_run_id", stored.TestRunID),
			zap.Int("test_number", stored.TestNumber),
			zap.Error(err))
		receipt.AlertError = err
		return receipt, nil
	}
	receipt.AlertSent = true
	return receipt, nil
}

// RecordAnswers checks answers against the current questionnaire and stores
// every non-blank one in a single batch. Nothing is stored when a required
// item is unanswered or an id is unknown.
func (r *Recorder) RecordAnswers(ctx context.Context, runID, testerName string, answers map[int]string) error {
	const op = "session.RecordAnswers"
	runID = strings.TrimSpace(runID)
	testerName = strings.TrimSpace(testerName)
	if runID == "" {
		return apperr.Validation(op, "test run id is required")
	}
	if testerName == "" {
		return apperr.Validation(op, "tester name is required")
	}

	items, err := r.questionnaires.ListQuestionnaire(ctx)
	if err != nil {
		return err
	}
	known := make(map[int]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}
	for id := range answers {
		if !known[id] {
			return apperr.Validation(op, "unknown question %d", id)
		}
	}

	rows := make([]models.QuestionnaireResponse, 0, len(answers))
	for _, item := range items {
		answer := strings.TrimSpace(answers[item.ID])
		if answer == "" {
			if item.Required {
				return apperr.Validation(op, "question %q requires an answer", item.Title)
			}
			continue
		}
		id := item.ID
		rows = append(rows, models.QuestionnaireResponse{
			TestRunID:       runID,
			QuestionnaireID: &id,
			QuestionTitle:   item.Title,
			QuestionOrder:   item.OrderIndex,
			TesterName:      testerName,
			Answer:          answer,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := r.responses.InsertQuestionnaireResponses(ctx, rows); err != nil {
		return err
	}
	r.logger.Info("questionnaire answers recorded", zap.String("test_run_id", runID), zap.Int("answers", len(rows)))
	return nil
}

// AnswersStored reports whether any questionnaire answer exists for runID.
func (r *Recorder) AnswersStored(ctx context.Context, runID string) (bool, error) {
	answers, err := r.responses.RunAnswers(ctx, runID)
	if err != nil {
		return false, err
	}
	return len(answers) > 0, nil
}
