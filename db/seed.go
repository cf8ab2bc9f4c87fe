package db

import (
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SeedOptions is what the first boot needs: an admin login and the initial
// notification addresses.
type SeedOptions struct {
	AdminUsername  string
	AdminPassword  string
	AdminEmail     string
	ReportEmail    string
	RejectionEmail string
}

// SeedData creates the default admin and the settings row when missing.
// Existing rows are never overwritten.
func SeedData(db *sql.DB, opts SeedOptions) error {
	// Start a transaction
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err = tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users)`).Scan(&exists); err != nil {
		return fmt.Errorf("error checking users: %w", err)
	}
	if !exists {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("error hashing admin password: %w", err)
		}
		if _, err = tx.Exec(
			`INSERT INTO users (username, password, email) VALUES ($1, $2, $3)`,
			opts.AdminUsername, string(hash), opts.AdminEmail,
		); err != nil {
			return fmt.Errorf("error seeding admin user: %w", err)
		}
	}

	if _, err = tx.Exec(
		`INSERT INTO settings (id, report_email, rejection_email) VALUES (1, $1, $2) ON CONFLICT (id) DO NOTHING`,
		opts.ReportEmail, opts.RejectionEmail,
	); err != nil {
		return fmt.Errorf("error seeding settings: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}
