package models

import "time"

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
)

type Instruction struct {
	ID         int       `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Device     string    `json:"device"`
	VideoURL   *string   `json:"video_url"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type InstructionInput struct {
	Title    string  `json:"title" binding:"required" validate:"required"`
	Content  string  `json:"content" binding:"required" validate:"required"`
	Device   string  `json:"device" binding:"required" validate:"required,oneof=desktop mobile"`
	VideoURL *string `json:"video_url" validate:"omitempty,url"`
}

// InstructionPatch only touches the fields that are set. An empty VideoURL
// clears the stored link.
type InstructionPatch struct {
	Title    *string `json:"title" validate:"omitempty,min=1"`
	Content  *string `json:"content" validate:"omitempty,min=1"`
	Device   *string `json:"device" validate:"omitempty,oneof=desktop mobile"`
	VideoURL *string `json:"video_url" validate:"omitempty,eq=|url"`
}

type ReorderRequest struct {
	IDs          []int `json:"ids"`
	Instructions []struct {
		ID int `json:"id"`
	} `json:"instructions"`
}

// OrderedIDs accepts either a plain id list or the list of instruction
// objects the admin panel posts after a drag.
func (r ReorderRequest) OrderedIDs() []int {
	if len(r.IDs) > 0 {
		return r.IDs
	}
	ids := make([]int, 0, len(r.Instructions))
	for _, in := range r.Instructions {
		ids = append(ids, in.ID)
	}
	return ids
}
