package store

import (
	"context"
	"errors"
	"testing"

	"testflow_backend/apperr"
	"testflow_backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryContract(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemoryDeleteIsAllOrNothing(t *testing.T) {
	for _, step := range []string{"delete_responses", "delete_instruction", "reindex"} {
		t.Run(step, func(t *testing.T) {
			m := NewMemory()
			ctx := context.Background()
			ids := seedInstructions(t, m, "I1", "I2", "I3")
			_, _, err := m.InsertTestResponse(ctx, models.TestResponse{InstructionID: ids[1], TestRunID: "r", TesterName: "Alice", Approved: true, TestNumber: 1})
			require.NoError(t, err)

			boom := errors.New("disk full")
			m.fault = func(name string) error {
				if name == step {
					return boom
				}
				return nil
			}

			err = m.DeleteInstruction(ctx, ids[1])
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrStorage))
			assert.True(t, errors.Is(err, boom))

			m.fault = nil
			assert.Equal(t, ids, listIDs(t, m))
			assert.Len(t, m.Responses("r"), 1)
			assertDense(t, m)
		})
	}
}

func TestMemoryReorderFailureLeavesOrder(t *testing.T) {
	m := NewMemory()
	ids := seedInstructions(t, m, "I1", "I2")
	m.fault = func(string) error { return errors.New("crash") }

	_, err := m.ReorderInstructions(context.Background(), []int{ids[1], ids[0]})
	require.Error(t, err)

	m.fault = nil
	assert.Equal(t, ids, listIDs(t, m))
}

func TestMemoryAnswerBatchIsAtomic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	items, err := m.ReplaceQuestionnaire(ctx, []models.QuestionInput{{Title: "Q1"}})
	require.NoError(t, err)

	missing := 777
	err = m.InsertQuestionnaireResponses(ctx, []models.QuestionnaireResponse{
		{TestRunID: "r", QuestionnaireID: &items[0].ID, QuestionTitle: "Q1", TesterName: "A", Answer: "ok"},
		{TestRunID: "r", QuestionnaireID: &missing, QuestionTitle: "??", TesterName: "A", Answer: "ok"},
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Empty(t, m.Answers("r"))
}

func TestMemoryUsers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u := m.SeedUser("admin", "hash", "admin@example.com")

	taken, err := m.UsernameTaken(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, taken)

	require.NoError(t, m.UpdateCredentials(ctx, u.ID, "root", ""))
	got, err := m.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "root", got.Username)
	assert.Equal(t, "hash", got.PasswordHash)

	err = m.UpdateCredentials(ctx, u.ID, "", "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
