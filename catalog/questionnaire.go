package catalog

import (
	"context"
	"strings"

	"testflow_backend/apperr"
	"testflow_backend/models"
	"testflow_backend/store"

	"go.uber.org/zap"
)

type Questionnaire struct {
	store  store.Questionnaires
	logger *zap.Logger
}

func NewQuestionnaire(s store.Questionnaires, logger *zap.Logger) *Questionnaire {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Questionnaire{store: s, logger: logger.Named("questionnaire")}
}

func (q *Questionnaire) List(ctx context.Context) ([]models.QuestionnaireItem, error) {
	items, err := q.store.ListQuestionnaire(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.QuestionnaireItem{}
	}
	return items, nil
}

// Replace swaps the whole item set. Items get order_index 1..N in the order
// given.
func (q *Questionnaire) Replace(ctx context.Context, inputs []models.QuestionInput) ([]models.QuestionnaireItem, error) {
	const op = "questionnaire.Replace"
	cleaned := make([]models.QuestionInput, len(inputs))
	for i, in := range inputs {
		in.Title = strings.TrimSpace(in.Title)
		if in.Title == "" {
			return nil, apperr.Validation(op, "question %d has an empty title", i+1)
		}
		if err := checkStruct(op, in); err != nil {
			return nil, err
		}
		cleaned[i] = in
	}

	items, err := q.store.ReplaceQuestionnaire(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	q.logger.Info("questionnaire replaced", zap.String("actor", Actor(ctx)), zap.Int("items", len(items)))
	if items == nil {
		items = []models.QuestionnaireItem{}
	}
	return items, nil
}

func (q *Questionnaire) Delete(ctx context.Context, id int) error {
	if err := q.store.DeleteQuestionnaireItem(ctx, id); err != nil {
		return err
	}
	q.logger.Info("questionnaire item deleted", zap.String("actor", Actor(ctx)), zap.Int("id", id))
	return nil
}
