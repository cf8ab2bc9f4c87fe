package models

import "time"

type QuestionnaireItem struct {
	ID         int       `json:"id"`
	Title      string    `json:"title"`
	OrderIndex int       `json:"order_index"`
	Required   bool      `json:"required"`
	CreatedAt  time.Time `json:"created_at"`
}

type QuestionInput struct {
	Title    string `json:"title" validate:"required"`
	Required *bool  `json:"required"`
}

type ReplaceQuestionnaireRequest struct {
	Questions []QuestionInput `json:"questions" binding:"required,dive"`
}

// IsRequired defaults to true when the admin left the flag out.
func (q QuestionInput) IsRequired() bool {
	return q.Required == nil || *q.Required
}
