package models

import "time"

type TestResponse struct {
	ID            int       `json:"id"`
	InstructionID int       `json:"instruction_id"`
	TestRunID     string    `json:"test_run_id"`
	TesterName    string    `json:"tester_name"`
	Approved      bool      `json:"approved"`
	Remark        *string   `json:"remark"`
	TestNumber    int       `json:"test_number"`
	CreatedAt     time.Time `json:"created_at"`
}

type QuestionnaireResponse struct {
	ID              int       `json:"id"`
	TestRunID       string    `json:"test_run_id"`
	QuestionnaireID *int      `json:"questionnaire_id"`
	QuestionTitle   string    `json:"question_title"`
	QuestionOrder   int       `json:"question_order"`
	TesterName      string    `json:"tester_name"`
	Answer          string    `json:"answer"`
	CreatedAt       time.Time `json:"created_at"`
}

type SubmitResponseRequest struct {
	Approved   *bool  `json:"approved" binding:"required"`
	Remark     string `json:"remark"`
	TestNumber int    `json:"test_number" binding:"required,min=1"`
	TestRunID  string `json:"test_run_id" binding:"required"`
	TesterName string `json:"tester_name" binding:"required"`
}

type AnswerInput struct {
	QuestionID int    `json:"question_id" binding:"required"`
	Answer     string `json:"answer"`
}

type SubmitQuestionnaireRequest struct {
	TestRunID  string        `json:"test_run_id" binding:"required"`
	TesterName string        `json:"tester_name" binding:"required"`
	Responses  []AnswerInput `json:"responses"`
}

// RunResult is a test response joined with its instruction.
type RunResult struct {
	TestNumber       int
	Approved         bool
	Remark           string
	InstructionTitle string
	Content          string
	Device           string
	CreatedAt        time.Time
}

type RunAnswer struct {
	QuestionTitle string
	Answer        string
}

type GenerateReportRequest struct {
	TestRunID  string    `json:"test_run_id" binding:"required"`
	TesterName string    `json:"tester_name" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
	EndTime    time.Time `json:"end_time"`
}
