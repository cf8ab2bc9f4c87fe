// Package store persists instructions, questionnaire items, responses,
// settings and admin users. Postgres is the production backend; Memory backs
// tests and the DB_DRIVER=memory development mode. Both enforce the same
// invariants: dense order indices after every mutation and gap-free test
// numbers within a run.
package store

import (
	"context"

	"testflow_backend/models"
)

type Instructions interface {
	ListInstructions(ctx context.Context) ([]models.Instruction, error)
	GetInstruction(ctx context.Context, id int) (models.Instruction, error)
	CreateInstruction(ctx context.Context, in models.InstructionInput) (models.Instruction, error)
	UpdateInstruction(ctx context.Context, id int, patch models.InstructionPatch) (models.Instruction, error)
	// DeleteInstruction removes the instruction and its test responses and
	// renumbers the remaining rows in one transaction.
	DeleteInstruction(ctx context.Context, id int) error
	ReorderInstructions(ctx context.Context, ids []int) ([]models.Instruction, error)
}

type Questionnaires interface {
	ListQuestionnaire(ctx context.Context) ([]models.QuestionnaireItem, error)
	ReplaceQuestionnaire(ctx context.Context, items []models.QuestionInput) ([]models.QuestionnaireItem, error)
	DeleteQuestionnaireItem(ctx context.Context, id int) error
}

type Responses interface {
	// InsertTestResponse requires r.TestNumber to be exactly one past the
	// highest test number already stored for r.TestRunID. Resubmitting a
	// stored slot with the same instruction returns the stored row and
	// created=false.
	InsertTestResponse(ctx context.Context, r models.TestResponse) (stored models.TestResponse, created bool, err error)
	InsertQuestionnaireResponses(ctx context.Context, rs []models.QuestionnaireResponse) error
	RunResults(ctx context.Context, runID string) ([]models.RunResult, error)
	RunAnswers(ctx context.Context, runID string) ([]models.RunAnswer, error)
	FirstResponse(ctx context.Context, runID string) (models.TestResponse, error)
}

type Settings interface {
	GetSettings(ctx context.Context) (models.Settings, error)
	UpdateSettings(ctx context.Context, s models.Settings) (models.Settings, error)
}

type Users interface {
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByID(ctx context.Context, id int) (models.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	UpdateCredentials(ctx context.Context, id int, username, passwordHash string) error
}

type Store interface {
	Instructions
	Questionnaires
	Responses
	Settings
	Users
	Ping(ctx context.Context) error
	Close() error
}
