package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ChangeCredentialsRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"omitempty,min=8"`
	NewUsername     string `json:"new_username"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type Claims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // "-" means this field won't be included in JSON
}

// Settings holds the two notification addresses an admin can change at runtime.
type Settings struct {
	ReportEmail    string    `json:"report_email" binding:"required,email" validate:"required,email"`
	RejectionEmail string    `json:"rejection_email" binding:"required,email" validate:"required,email"`
	UpdatedAt      time.Time `json:"updated_at"`
}
