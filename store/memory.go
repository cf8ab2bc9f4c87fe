package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"testflow_backend/apperr"
	"testflow_backend/models"
	"testflow_backend/ordering"
)

type memoryState struct {
	instructions map[int]models.Instruction
	questions    map[int]models.QuestionnaireItem
	responses    []models.TestResponse
	answers      []models.QuestionnaireResponse
	settings     models.Settings
	users        map[int]models.User
	nextID       int
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		instructions: make(map[int]models.Instruction, len(s.instructions)),
		questions:    make(map[int]models.QuestionnaireItem, len(s.questions)),
		responses:    append([]models.TestResponse(nil), s.responses...),
		answers:      append([]models.QuestionnaireResponse(nil), s.answers...),
		settings:     s.settings,
		users:        make(map[int]models.User, len(s.users)),
		nextID:       s.nextID,
	}
	for k, v := range s.instructions {
		c.instructions[k] = v
	}
	for k, v := range s.questions {
		c.questions[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

func (s *memoryState) id() int {
	s.nextID++
	return s.nextID
}

// Memory is an in-process Store. Every mutation runs against a copy of the
// state that replaces the live state only when the whole operation succeeds.
type Memory struct {
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
	// fault, when set, is consulted before each named step of a multi-row
	// mutation; a non-nil result aborts the operation.
	fault func(step string) error
}

func NewMemory() *Memory {
	return &Memory{
		state: memoryState{
			instructions: map[int]models.Instruction{},
			questions:    map[int]models.QuestionnaireItem{},
			users:        map[int]models.User{},
		},
		now: time.Now,
	}
}

// SeedUser adds an admin account; used by the memory driver at boot.
func (m *Memory) SeedUser(username, passwordHash, email string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{ID: m.state.id(), Username: username, Email: email, PasswordHash: passwordHash}
	m.state.users[u.ID] = u
	return u
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// tx runs fn against a copy of the state and commits it when fn succeeds.
func (m *Memory) tx(fn func(s *memoryState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.clone()
	if err := fn(&next); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *Memory) step(op, name string) error {
	if m.fault == nil {
		return nil
	}
	if err := m.fault(name); err != nil {
		return apperr.Storage(op, err)
	}
	return nil
}

func sortedInstructions(s *memoryState) []models.Instruction {
	out := make([]models.Instruction, 0, len(s.instructions))
	for _, in := range s.instructions {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func sortedQuestions(s *memoryState) []models.QuestionnaireItem {
	out := make([]models.QuestionnaireItem, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func (m *Memory) ListInstructions(context.Context) ([]models.Instruction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedInstructions(&m.state), nil
}

func (m *Memory) GetInstruction(_ context.Context, id int) (models.Instruction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.state.instructions[id]
	if !ok {
		return in, apperr.NotFound("store.GetInstruction", "instruction %d not found", id)
	}
	return in, nil
}

func (m *Memory) CreateInstruction(_ context.Context, input models.InstructionInput) (models.Instruction, error) {
	var created models.Instruction
	err := m.tx(func(s *memoryState) error {
		maxIndex := 0
		for _, in := range s.instructions {
			if in.OrderIndex > maxIndex {
				maxIndex = in.OrderIndex
			}
		}
		now := m.now()
		created = models.Instruction{
			ID:         s.id(),
			Title:      input.Title,
			Content:    input.Content,
			Device:     input.Device,
			VideoURL:   input.VideoURL,
			OrderIndex: maxIndex + 1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.instructions[created.ID] = created
		return nil
	})
	return created, err
}

func (m *Memory) UpdateInstruction(_ context.Context, id int, patch models.InstructionPatch) (models.Instruction, error) {
	var updated models.Instruction
	err := m.tx(func(s *memoryState) error {
		in, ok := s.instructions[id]
		if !ok {
			return apperr.NotFound("store.UpdateInstruction", "instruction %d not found", id)
		}
		if patch.Title != nil {
			in.Title = *patch.Title
		}
		if patch.Content != nil {
			in.Content = *patch.Content
		}
		if patch.Device != nil {
			in.Device = *patch.Device
		}
		if patch.VideoURL != nil {
			in.VideoURL = nil
			if link := *patch.VideoURL; link != "" {
				in.VideoURL = &link
			}
		}
		in.UpdatedAt = m.now()
		s.instructions[id] = in
		updated = in
		return nil
	})
	return updated, err
}

func applyMemoryOrder(s *memoryState, ids []int) {
	for _, a := range ordering.Dense(ids) {
		in := s.instructions[a.ID]
		in.OrderIndex = a.Index
		s.instructions[a.ID] = in
	}
}

func (m *Memory) DeleteInstruction(_ context.Context, id int) error {
	const op = "store.DeleteInstruction"
	return m.tx(func(s *memoryState) error {
		if _, ok := s.instructions[id]; !ok {
			return apperr.NotFound(op, "instruction %d not found", id)
		}

		if err := m.step(op, "delete_responses"); err != nil {
			return err
		}
		kept := s.responses[:0]
		for _, r := range s.responses {
			if r.InstructionID != id {
				kept = append(kept, r)
			}
		}
		s.responses = kept

		if err := m.step(op, "delete_instruction"); err != nil {
			return err
		}
		delete(s.instructions, id)

		if err := m.step(op, "reindex"); err != nil {
			return err
		}
		remaining := sortedInstructions(s)
		ids := make([]int, len(remaining))
		for i, in := range remaining {
			ids[i] = in.ID
		}
		applyMemoryOrder(s, ids)
		return nil
	})
}

func (m *Memory) ReorderInstructions(ctx context.Context, ids []int) ([]models.Instruction, error) {
	const op = "store.ReorderInstructions"
	err := m.tx(func(s *memoryState) error {
		existing := make([]int, 0, len(s.instructions))
		for id := range s.instructions {
			existing = append(existing, id)
		}
		if err := ordering.CheckPermutation(existing, ids); err != nil {
			return err
		}
		if err := m.step(op, "reindex"); err != nil {
			return err
		}
		applyMemoryOrder(s, ids)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.ListInstructions(ctx)
}

func (m *Memory) ListQuestionnaire(context.Context) ([]models.QuestionnaireItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedQuestions(&m.state), nil
}

func (m *Memory) ReplaceQuestionnaire(ctx context.Context, inputs []models.QuestionInput) ([]models.QuestionnaireItem, error) {
	const op = "store.ReplaceQuestionnaire"
	err := m.tx(func(s *memoryState) error {
		s.questions = map[int]models.QuestionnaireItem{}
		detachAnswers(s, nil)
		for i, q := range inputs {
			if err := m.step(op, "insert"); err != nil {
				return err
			}
			item := models.QuestionnaireItem{
				ID:         s.id(),
				Title:      q.Title,
				OrderIndex: i + 1,
				Required:   q.IsRequired(),
				CreatedAt:  m.now(),
			}
			s.questions[item.ID] = item
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.ListQuestionnaire(ctx)
}

// detachAnswers mirrors ON DELETE SET NULL; a nil id detaches everything.
func detachAnswers(s *memoryState, id *int) {
	for i, a := range s.answers {
		if a.QuestionnaireID == nil {
			continue
		}
		if id == nil || *a.QuestionnaireID == *id {
			s.answers[i].QuestionnaireID = nil
		}
	}
}

func (m *Memory) DeleteQuestionnaireItem(_ context.Context, id int) error {
	const op = "store.DeleteQuestionnaireItem"
	return m.tx(func(s *memoryState) error {
		if _, ok := s.questions[id]; !ok {
			return apperr.NotFound(op, "questionnaire item %d not found", id)
		}
		delete(s.questions, id)
		detachAnswers(s, &id)
		if err := m.step(op, "reindex"); err != nil {
			return err
		}
		for i, q := range sortedQuestions(s) {
			q.OrderIndex = i + 1
			s.questions[q.ID] = q
		}
		return nil
	})
}

func (m *Memory) InsertTestResponse(_ context.Context, r models.TestResponse) (models.TestResponse, bool, error) {
	const op = "store.InsertTestResponse"
	created := false
	err := m.tx(func(s *memoryState) error {
		if _, ok := s.instructions[r.InstructionID]; !ok {
			return apperr.NotFound(op, "instruction %d not found", r.InstructionID)
		}
		last := 0
		for _, existing := range s.responses {
			if existing.TestRunID != r.TestRunID {
				continue
			}
			if existing.TestNumber == r.TestNumber {
				if existing.InstructionID != r.InstructionID {
					return apperr.Validation(op, "test number %d of run %s already holds instruction %d", r.TestNumber, r.TestRunID, existing.InstructionID)
				}
				r = existing
				return nil
			}
			if existing.TestNumber > last {
				last = existing.TestNumber
			}
		}
		if r.TestNumber != last+1 {
			return apperr.Validation(op, "test number %d out of sequence for run %s, expected %d", r.TestNumber, r.TestRunID, last+1)
		}
		if !r.Approved && (r.Remark == nil || strings.TrimSpace(*r.Remark) == "") {
			return apperr.Validation(op, "rejection requires a remark")
		}
		r.ID = s.id()
		r.CreatedAt = m.now()
		s.responses = append(s.responses, r)
		created = true
		return nil
	})
	return r, created, err
}

func (m *Memory) InsertQuestionnaireResponses(_ context.Context, rs []models.QuestionnaireResponse) error {
	const op = "store.InsertQuestionnaireResponses"
	return m.tx(func(s *memoryState) error {
		for _, r := range rs {
			if err := m.step(op, "insert"); err != nil {
				return err
			}
			if r.QuestionnaireID != nil {
				if _, ok := s.questions[*r.QuestionnaireID]; !ok {
					return apperr.NotFound(op, "referenced row does not exist")
				}
			}
			r.ID = s.id()
			r.CreatedAt = m.now()
			s.answers = append(s.answers, r)
		}
		return nil
	})
}

func (m *Memory) RunResults(_ context.Context, runID string) ([]models.RunResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []models.RunResult
	for _, r := range m.state.responses {
		if r.TestRunID != runID {
			continue
		}
		in, ok := m.state.instructions[r.InstructionID]
		if !ok {
			continue
		}
		res := models.RunResult{
			TestNumber:       r.TestNumber,
			Approved:         r.Approved,
			InstructionTitle: in.Title,
			Content:          in.Content,
			Device:           in.Device,
			CreatedAt:        r.CreatedAt,
		}
		if r.Remark != nil {
			res.Remark = *r.Remark
		}
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].TestNumber < results[j].TestNumber })
	return results, nil
}

func (m *Memory) RunAnswers(_ context.Context, runID string) ([]models.RunAnswer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []models.QuestionnaireResponse
	for _, a := range m.state.answers {
		if a.TestRunID == runID {
			rows = append(rows, a)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].QuestionOrder < rows[j].QuestionOrder })

	answers := make([]models.RunAnswer, 0, len(rows))
	for _, a := range rows {
		answers = append(answers, models.RunAnswer{QuestionTitle: a.QuestionTitle, Answer: a.Answer})
	}
	return answers, nil
}

func (m *Memory) FirstResponse(_ context.Context, runID string) (models.TestResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		first models.TestResponse
		found bool
	)
	for _, r := range m.state.responses {
		if r.TestRunID == runID && (!found || r.TestNumber < first.TestNumber) {
			first, found = r, true
		}
	}
	if !found {
		return first, apperr.NotFound("store.FirstResponse", "test run %s not found", runID)
	}
	return first, nil
}

// Responses returns the stored test responses of a run in insertion order.
func (m *Memory) Responses(runID string) []models.TestResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.TestResponse
	for _, r := range m.state.responses {
		if r.TestRunID == runID {
			out = append(out, r)
		}
	}
	return out
}

// Answers returns the stored questionnaire responses of a run.
func (m *Memory) Answers(runID string) []models.QuestionnaireResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.QuestionnaireResponse
	for _, a := range m.state.answers {
		if a.TestRunID == runID {
			out = append(out, a)
		}
	}
	return out
}

func (m *Memory) GetSettings(context.Context) (models.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.settings, nil
}

func (m *Memory) UpdateSettings(_ context.Context, in models.Settings) (models.Settings, error) {
	var out models.Settings
	err := m.tx(func(s *memoryState) error {
		in.UpdatedAt = m.now()
		s.settings = in
		out = in
		return nil
	})
	return out, err
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.state.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, apperr.NotFound("store.GetUser", "user not found")
}

func (m *Memory) GetUserByID(_ context.Context, id int) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.state.users[id]
	if !ok {
		return u, apperr.NotFound("store.GetUser", "user not found")
	}
	return u, nil
}

func (m *Memory) UsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := m.GetUserByUsername(ctx, username)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	return err == nil, err
}

func (m *Memory) UpdateCredentials(_ context.Context, id int, username, passwordHash string) error {
	if username == "" && passwordHash == "" {
		return apperr.Validation("store.UpdateCredentials", "no changes requested")
	}
	return m.tx(func(s *memoryState) error {
		u, ok := s.users[id]
		if !ok {
			return apperr.NotFound("store.UpdateCredentials", "user %d not found", id)
		}
		if username != "" {
			u.Username = username
		}
		if passwordHash != "" {
			u.PasswordHash = passwordHash
		}
		s.users[id] = u
		return nil
	})
}
