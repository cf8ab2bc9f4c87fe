package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"testflow_backend/apperr"
	"testflow_backend/models"
	"testflow_backend/ordering"

	"github.com/lib/pq"
)

const instructionColumns = `id, title, content, device, video_url, order_index, created_at, updated_at`

// Postgres implements Store over database/sql with lib/pq.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstruction(row scanner) (models.Instruction, error) {
	var (
		in       models.Instruction
		videoURL sql.NullString
	)
	err := row.Scan(&in.ID, &in.Title, &in.Content, &in.Device, &videoURL, &in.OrderIndex, &in.CreatedAt, &in.UpdatedAt)
	if videoURL.Valid {
		in.VideoURL = &videoURL.String
	}
	return in, err
}

// classify turns driver errors into apperr kinds.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(op, "not found")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return apperr.Validation(op, "duplicate value violates %s", pqErr.Constraint)
		case "23503":
			return apperr.NotFound(op, "referenced row does not exist")
		case "23514":
			return apperr.Validation(op, "value violates %s", pqErr.Constraint)
		}
	}
	return apperr.Storage(op, err)
}

func (p *Postgres) ListInstructions(ctx context.Context) ([]models.Instruction, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+instructionColumns+` FROM instructions ORDER BY order_index ASC`)
	if err != nil {
		return nil, classify("store.ListInstructions", err)
	}
	defer rows.Close()

	instructions := []models.Instruction{}
	for rows.Next() {
		in, err := scanInstruction(rows)
		if err != nil {
			return nil, classify("store.ListInstructions", err)
		}
		instructions = append(instructions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("store.ListInstructions", err)
	}
	return instructions, nil
}

func (p *Postgres) GetInstruction(ctx context.Context, id int) (models.Instruction, error) {
	in, err := scanInstruction(p.db.QueryRowContext(ctx,
		`SELECT `+instructionColumns+` FROM instructions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return in, apperr.NotFound("store.GetInstruction", "instruction %d not found", id)
	}
	if err != nil {
		return in, classify("store.GetInstruction", err)
	}
	return in, nil
}

func (p *Postgres) CreateInstruction(ctx context.Context, input models.InstructionInput) (models.Instruction, error) {
	in, err := scanInstruction(p.db.QueryRowContext(ctx, `
		INSERT INTO instructions (title, content, device, video_url, order_index)
		SELECT $1, $2, $3, $4, COALESCE(MAX(order_index), 0) + 1 FROM instructions
		RETURNING `+instructionColumns,
		input.Title, input.Content, input.Device, input.VideoURL))
	if err != nil {
		return in, classify("store.CreateInstruction", err)
	}
	return in, nil
}

func (p *Postgres) UpdateInstruction(ctx context.Context, id int, patch models.InstructionPatch) (models.Instruction, error) {
	in, err := scanInstruction(p.db.QueryRowContext(ctx, `
		UPDATE instructions SET
			title = COALESCE($2, title),
			content = COALESCE($3, content),
			device = COALESCE($4, device),
			video_url = CASE WHEN $5::text IS NULL THEN video_url ELSE NULLIF($5::text, '') END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING `+instructionColumns,
		id, patch.Title, patch.Content, patch.Device, patch.VideoURL))
	if errors.Is(err, sql.ErrNoRows) {
		return in, apperr.NotFound("store.UpdateInstruction", "instruction %d not found", id)
	}
	if err != nil {
		return in, classify("store.UpdateInstruction", err)
	}
	return in, nil
}

// applyOrder writes a dense assignment in one statement.
func applyOrder(ctx context.Context, tx *sql.Tx, table string, ids []int) error {
	assigned, indices := ordering.Split(ordering.Dense(ids))
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s AS t SET order_index = v.idx
		FROM (SELECT UNNEST($1::int[]) AS id, UNNEST($2::int[]) AS idx) AS v
		WHERE t.id = v.id`, table),
		pq.Array(toInt64(assigned)), pq.Array(toInt64(indices)))
	return err
}

func toInt64(vs []int) []int64 {
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = int64(v)
	}
	return out
}

func orderedIDs(ctx context.Context, tx *sql.Tx, table string) ([]int, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY order_index ASC FOR UPDATE`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) DeleteInstruction(ctx context.Context, id int) error {
	const op = "store.DeleteInstruction"

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	ids, err := orderedIDs(ctx, tx, "instructions")
	if err != nil {
		return classify(op, err)
	}

	remaining := make([]int, 0, len(ids))
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			continue
		}
		remaining = append(remaining, existing)
	}
	if !found {
		return apperr.NotFound(op, "instruction %d not found", id)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM test_responses WHERE instruction_id = $1`, id); err != nil {
		return classify(op, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM instructions WHERE id = $1`, id); err != nil {
		return classify(op, err)
	}
	if err = applyOrder(ctx, tx, "instructions", remaining); err != nil {
		return classify(op, err)
	}

	if err = tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

func (p *Postgres) ReorderInstructions(ctx context.Context, ids []int) ([]models.Instruction, error) {
	const op = "store.ReorderInstructions"

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(op, err)
	}
	defer tx.Rollback()

	existing, err := orderedIDs(ctx, tx, "instructions")
	if err != nil {
		return nil, classify(op, err)
	}
	if err = ordering.CheckPermutation(existing, ids); err != nil {
		return nil, err
	}
	if err = applyOrder(ctx, tx, "instructions", ids); err != nil {
		return nil, classify(op, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, classify(op, err)
	}

	return p.ListInstructions(ctx)
}

func (p *Postgres) ListQuestionnaire(ctx context.Context) ([]models.QuestionnaireItem, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, title, order_index, required, created_at FROM questionnaires ORDER BY order_index ASC`)
	if err != nil {
		return nil, classify("store.ListQuestionnaire", err)
	}
	defer rows.Close()

	items := []models.QuestionnaireItem{}
	for rows.Next() {
		var q models.QuestionnaireItem
		if err := rows.Scan(&q.ID, &q.Title, &q.OrderIndex, &q.Required, &q.CreatedAt); err != nil {
			return nil, classify("store.ListQuestionnaire", err)
		}
		items = append(items, q)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("store.ListQuestionnaire", err)
	}
	return items, nil
}

func (p *Postgres) ReplaceQuestionnaire(ctx context.Context, inputs []models.QuestionInput) ([]models.QuestionnaireItem, error) {
	const op = "store.ReplaceQuestionnaire"

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(op, err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM questionnaires`); err != nil {
		return nil, classify(op, err)
	}
	for i, q := range inputs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO questionnaires (title, order_index, required) VALUES ($1, $2, $3)`,
			q.Title, i+1, q.IsRequired(),
		); err != nil {
			return nil, classify(op, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, classify(op, err)
	}
	return p.ListQuestionnaire(ctx)
}

func (p *Postgres) DeleteQuestionnaireItem(ctx context.Context, id int) error {
	const op = "store.DeleteQuestionnaireItem"

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM questionnaires WHERE id = $1`, id)
	if err != nil {
		return classify(op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return classify(op, err)
	} else if n == 0 {
		return apperr.NotFound(op, "questionnaire item %d not found", id)
	}

	remaining, err := orderedIDs(ctx, tx, "questionnaires")
	if err != nil {
		return classify(op, err)
	}
	if err = applyOrder(ctx, tx, "questionnaires", remaining); err != nil {
		return classify(op, err)
	}

	if err = tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

func (p *Postgres) InsertTestResponse(ctx context.Context, r models.TestResponse) (models.TestResponse, bool, error) {
	const op = "store.InsertTestResponse"

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return r, false, classify(op, err)
	}
	defer tx.Rollback()

	var last int
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(test_number), 0) FROM test_responses WHERE test_run_id = $1`,
		r.TestRunID,
	).Scan(&last); err != nil {
		return r, false, classify(op, err)
	}

	if r.TestNumber >= 1 && r.TestNumber <= last {
		var existing models.TestResponse
		err = tx.QueryRowContext(ctx, `
			SELECT id, instruction_id, test_run_id, tester_name, approved, remark, test_number, created_at
			FROM test_responses
			WHERE test_run_id = $1 AND test_number = $2`,
			r.TestRunID, r.TestNumber,
		).Scan(&existing.ID, &existing.InstructionID, &existing.TestRunID, &existing.TesterName,
			&existing.Approved, &existing.Remark, &existing.TestNumber, &existing.CreatedAt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return r, false, classify(op, err)
		}
		if err == nil {
			if existing.InstructionID != r.InstructionID {
				return r, false, apperr.Validation(op, "test number %d of run %s already holds instruction %d", r.TestNumber, r.TestRunID, existing.InstructionID)
			}
			return existing, false, nil
		}
	}
	if r.TestNumber != last+1 {
		return r, false, apperr.Validation(op, "test number %d out of sequence for run %s, expected %d", r.TestNumber, r.TestRunID, last+1)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO test_responses (instruction_id, test_run_id, tester_name, approved, remark, test_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		r.InstructionID, r.TestRunID, r.TesterName, r.Approved, r.Remark, r.TestNumber,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return r, false, classify(op, err)
	}

	if err = tx.Commit(); err != nil {
		return r, false, classify(op, err)
	}
	return r, true, nil
}

func (p *Postgres) InsertQuestionnaireResponses(ctx context.Context, rs []models.QuestionnaireResponse) error {
	const op = "store.InsertQuestionnaireResponses"

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO questionnaire_responses (test_run_id, questionnaire_id, question_title, question_order, tester_name, answer)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return classify(op, err)
	}
	defer stmt.Close()

	for _, r := range rs {
		if _, err = stmt.ExecContext(ctx, r.TestRunID, r.QuestionnaireID, r.QuestionTitle, r.QuestionOrder, r.TesterName, r.Answer); err != nil {
			return classify(op, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

func (p *Postgres) RunResults(ctx context.Context, runID string) ([]models.RunResult, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT tr.test_number, tr.approved, COALESCE(tr.remark, ''), i.title, i.content, i.device, tr.created_at
		FROM test_responses tr
		JOIN instructions i ON tr.instruction_id = i.id
		WHERE tr.test_run_id = $1
		ORDER BY tr.test_number ASC`, runID)
	if err != nil {
		return nil, classify("store.RunResults", err)
	}
	defer rows.Close()

	var results []models.RunResult
	for rows.Next() {
		var r models.RunResult
		if err := rows.Scan(&r.TestNumber, &r.Approved, &r.Remark, &r.InstructionTitle, &r.Content, &r.Device, &r.CreatedAt); err != nil {
			return nil, classify("store.RunResults", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("store.RunResults", err)
	}
	return results, nil
}

func (p *Postgres) RunAnswers(ctx context.Context, runID string) ([]models.RunAnswer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT question_title, answer
		FROM questionnaire_responses
		WHERE test_run_id = $1
		ORDER BY question_order ASC, id ASC`, runID)
	if err != nil {
		return nil, classify("store.RunAnswers", err)
	}
	defer rows.Close()

	var answers []models.RunAnswer
	for rows.Next() {
		var a models.RunAnswer
		if err := rows.Scan(&a.QuestionTitle, &a.Answer); err != nil {
			return nil, classify("store.RunAnswers", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("store.RunAnswers", err)
	}
	return answers, nil
}

func (p *Postgres) FirstResponse(ctx context.Context, runID string) (models.TestResponse, error) {
	var (
		r      models.TestResponse
		remark sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, instruction_id, test_run_id, tester_name, approved, remark, test_number, created_at
		FROM test_responses
		WHERE test_run_id = $1
		ORDER BY test_number ASC
		LIMIT 1`, runID,
	).Scan(&r.ID, &r.InstructionID, &r.TestRunID, &r.TesterName, &r.Approved, &remark, &r.TestNumber, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, apperr.NotFound("store.FirstResponse", "test run %s not found", runID)
	}
	if err != nil {
		return r, classify("store.FirstResponse", err)
	}
	if remark.Valid {
		r.Remark = &remark.String
	}
	return r, nil
}

func (p *Postgres) GetSettings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := p.db.QueryRowContext(ctx,
		`SELECT report_email, rejection_email, updated_at FROM settings WHERE id = 1`,
	).Scan(&s.ReportEmail, &s.RejectionEmail, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, apperr.NotFound("store.GetSettings", "settings not initialized")
	}
	if err != nil {
		return s, classify("store.GetSettings", err)
	}
	return s, nil
}

func (p *Postgres) UpdateSettings(ctx context.Context, s models.Settings) (models.Settings, error) {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO settings (id, report_email, rejection_email, updated_at)
		VALUES (1, $1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET report_email = EXCLUDED.report_email,
		    rejection_email = EXCLUDED.rejection_email,
		    updated_at = EXCLUDED.updated_at
		RETURNING report_email, rejection_email, updated_at`,
		s.ReportEmail, s.RejectionEmail,
	).Scan(&s.ReportEmail, &s.RejectionEmail, &s.UpdatedAt)
	if err != nil {
		return s, classify("store.UpdateSettings", err)
	}
	return s, nil
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return p.getUser(ctx, `WHERE username = $1`, username)
}

func (p *Postgres) GetUserByID(ctx context.Context, id int) (models.User, error) {
	return p.getUser(ctx, `WHERE id = $1`, id)
}

func (p *Postgres) getUser(ctx context.Context, where string, arg any) (models.User, error) {
	var (
		u     models.User
		email sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `SELECT id, username, email, password FROM users `+where, arg).
		Scan(&u.ID, &u.Username, &email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return u, apperr.NotFound("store.GetUser", "user not found")
	}
	if err != nil {
		return u, classify("store.GetUser", err)
	}
	u.Email = email.String
	return u, nil
}

func (p *Postgres) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists); err != nil {
		return false, classify("store.UsernameTaken", err)
	}
	return exists, nil
}

func (p *Postgres) UpdateCredentials(ctx context.Context, id int, username, passwordHash string) error {
	var (
		sets []string
		args []any
	)
	if username != "" {
		args = append(args, username)
		sets = append(sets, fmt.Sprintf("username = $%d", len(args)))
	}
	if passwordHash != "" {
		args = append(args, passwordHash)
		sets = append(sets, fmt.Sprintf("password = $%d", len(args)))
	}
	if len(sets) == 0 {
		return apperr.Validation("store.UpdateCredentials", "no changes requested")
	}
	args = append(args, id)

	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return classify("store.UpdateCredentials", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("store.UpdateCredentials", "user %d not found", id)
	}
	return nil
}
