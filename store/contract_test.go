package store

import (
	"context"
	"errors"
	"testing"

	"testflow_backend/apperr"
	"testflow_backend/models"
	"testflow_backend/ordering"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises the behaviour every Store implementation must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create appends dense indices", func(t *testing.T) {
		s := newStore(t)
		ids := seedInstructions(t, s, "I1", "I2", "I3")
		list := listIDs(t, s)
		assert.Equal(t, ids, list)
		assertDense(t, s)
	})

	t.Run("delete renumbers remaining rows", func(t *testing.T) {
		s := newStore(t)
		ids := seedInstructions(t, s, "I1", "I2", "I3")

		require.NoError(t, s.DeleteInstruction(context.Background(), ids[1]))

		list, err := s.ListInstructions(context.Background())
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "I1", list[0].Title)
		assert.Equal(t, 1, list[0].OrderIndex)
		assert.Equal(t, "I3", list[1].Title)
		assert.Equal(t, 2, list[1].OrderIndex)
	})

	t.Run("delete cascades to test responses", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ids := seedInstructions(t, s, "I1", "I2")
		_, _, err := s.InsertTestResponse(ctx, models.TestResponse{InstructionID: ids[0], TestRunID: "run-1", TesterName: "Alice", Approved: true, TestNumber: 1})
		require.NoError(t, err)

		require.NoError(t, s.DeleteInstruction(ctx, ids[0]))

		results, err := s.RunResults(ctx, "run-1")
		require.NoError(t, err)
		assert.Empty(t, results)
		assertDense(t, s)
	})

	t.Run("delete unknown id", func(t *testing.T) {
		s := newStore(t)
		seedInstructions(t, s, "I1")
		err := s.DeleteInstruction(context.Background(), 9999)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
		assertDense(t, s)
	})

	t.Run("reorder applies the permutation and is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ids := seedInstructions(t, s, "I1", "I2", "I3")
		want := []int{ids[2], ids[0], ids[1]}

		_, err := s.ReorderInstructions(ctx, want)
		require.NoError(t, err)
		first := listIDs(t, s)
		_, err = s.ReorderInstructions(ctx, want)
		require.NoError(t, err)

		assert.Equal(t, want, first)
		assert.Equal(t, first, listIDs(t, s))
		assertDense(t, s)
	})

	t.Run("reorder rejects a partial set", func(t *testing.T) {
		s := newStore(t)
		ids := seedInstructions(t, s, "I1", "I2", "I3")

		_, err := s.ReorderInstructions(context.Background(), []int{ids[1], ids[0]})
		assert.True(t, errors.Is(err, apperr.ErrValidation))
		assert.Equal(t, ids, listIDs(t, s))
	})

	t.Run("update keeps order index", func(t *testing.T) {
		s := newStore(t)
		ids := seedInstructions(t, s, "I1", "I2")
		title := "renamed"

		in, err := s.UpdateInstruction(context.Background(), ids[1], models.InstructionPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "renamed", in.Title)
		assert.Equal(t, 2, in.OrderIndex)

		_, err = s.UpdateInstruction(context.Background(), 9999, models.InstructionPatch{Title: &title})
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("empty video url clears it", func(t *testing.T) {
		s := newStore(t)
		ids := seedInstructions(t, s, "I1")
		link, empty := "https://videos.example.com/i1", ""

		in, err := s.UpdateInstruction(context.Background(), ids[0], models.InstructionPatch{VideoURL: &link})
		require.NoError(t, err)
		require.NotNil(t, in.VideoURL)
		assert.Equal(t, link, *in.VideoURL)

		in, err = s.UpdateInstruction(context.Background(), ids[0], models.InstructionPatch{VideoURL: &empty})
		require.NoError(t, err)
		assert.Nil(t, in.VideoURL)
	})

	t.Run("test numbers must be sequential", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ids := seedInstructions(t, s, "I1", "I2")

		_, _, err := s.InsertTestResponse(ctx, models.TestResponse{InstructionID: ids[0], TestRunID: "run-2", TesterName: "Bob", Approved: true, TestNumber: 2})
		assert.True(t, errors.Is(err, apperr.ErrValidation))

		stored, created, err := s.InsertTestResponse(ctx, models.TestResponse{InstructionID: ids[0], TestRunID: "run-2", TesterName: "Bob", Approved: true, TestNumber: 1})
		require.NoError(t, err)
		assert.True(t, created)
		_, _, err = s.InsertTestResponse(ctx, models.TestResponse{InstructionID: ids[1], TestRunID: "run-2", TesterName: "Bob", Approved: true, TestNumber: 1})
		assert.True(t, errors.Is(err, apperr.ErrValidation))

		again, created, err := s.InsertTestResponse(ctx, models.TestResponse{InstructionID: ids[0], TestRunID: "run-2", TesterName: "Bob", Approved: true, TestNumber: 1})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, stored.ID, again.ID)

		first, err := s.FirstResponse(ctx, "run-2")
		require.NoError(t, err)
		assert.Equal(t, "Bob", first.TesterName)
		assert.Equal(t, 1, first.TestNumber)
	})

	t.Run("unknown instruction response", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.InsertTestResponse(context.Background(), models.TestResponse{InstructionID: 4242, TestRunID: "run-3", TesterName: "Bob", Approved: true, TestNumber: 1})
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("questionnaire replace keeps answers readable", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ids := seedInstructions(t, s, "I1")
		items, err := s.ReplaceQuestionnaire(ctx, []models.QuestionInput{{Title: "Speed?"}, {Title: "Notes", Required: boolPtr(false)}})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, 1, items[0].OrderIndex)
		assert.True(t, items[0].Required)
		assert.False(t, items[1].Required)

		_, _, err = s.InsertTestResponse(ctx, models.TestResponse{InstructionID: ids[0], TestRunID: "run-4", TesterName: "Cleo", Approved: true, TestNumber: 1})
		require.NoError(t, err)
		require.NoError(t, s.InsertQuestionnaireResponses(ctx, []models.QuestionnaireResponse{
			{TestRunID: "run-4", QuestionnaireID: &items[1].ID, QuestionTitle: "Notes", QuestionOrder: 2, TesterName: "Cleo", Answer: "fine"},
			{TestRunID: "run-4", QuestionnaireID: &items[0].ID, QuestionTitle: "Speed?", QuestionOrder: 1, TesterName: "Cleo", Answer: "50 Mbit"},
		}))

		_, err = s.ReplaceQuestionnaire(ctx, []models.QuestionInput{{Title: "Other"}})
		require.NoError(t, err)

		answers, err := s.RunAnswers(ctx, "run-4")
		require.NoError(t, err)
		assert.Equal(t, []models.RunAnswer{{QuestionTitle: "Speed?", Answer: "50 Mbit"}, {QuestionTitle: "Notes", Answer: "fine"}}, answers)
	})

	t.Run("questionnaire item delete renumbers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		items, err := s.ReplaceQuestionnaire(ctx, []models.QuestionInput{{Title: "A"}, {Title: "B"}, {Title: "C"}})
		require.NoError(t, err)

		require.NoError(t, s.DeleteQuestionnaireItem(ctx, items[0].ID))
		err = s.DeleteQuestionnaireItem(ctx, items[0].ID)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))

		left, err := s.ListQuestionnaire(ctx)
		require.NoError(t, err)
		require.Len(t, left, 2)
		assert.Equal(t, "B", left[0].Title)
		assert.Equal(t, 1, left[0].OrderIndex)
		assert.Equal(t, 2, left[1].OrderIndex)
	})

	t.Run("settings round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		saved, err := s.UpdateSettings(ctx, models.Settings{ReportEmail: "reports@example.com", RejectionEmail: "qa@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "reports@example.com", saved.ReportEmail)

		got, err := s.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "qa@example.com", got.RejectionEmail)
	})
}

func seedInstructions(t *testing.T, s Store, titles ...string) []int {
	t.Helper()
	ids := make([]int, 0, len(titles))
	for _, title := range titles {
		in, err := s.CreateInstruction(context.Background(), models.InstructionInput{
			Title:   title,
			Content: "content of " + title,
			Device:  models.DeviceDesktop,
		})
		require.NoError(t, err)
		ids = append(ids, in.ID)
	}
	return ids
}

func listIDs(t *testing.T, s Store) []int {
	t.Helper()
	list, err := s.ListInstructions(context.Background())
	require.NoError(t, err)
	ids := make([]int, len(list))
	for i, in := range list {
		ids[i] = in.ID
	}
	return ids
}

func assertDense(t *testing.T, s Store) {
	t.Helper()
	list, err := s.ListInstructions(context.Background())
	require.NoError(t, err)
	indices := make([]int, len(list))
	for i, in := range list {
		indices[i] = in.OrderIndex
	}
	assert.True(t, ordering.IsDense(indices), "order indices %v are not dense", indices)
}

func boolPtr(b bool) *bool { return &b }
