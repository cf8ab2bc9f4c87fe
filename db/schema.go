package db

import (
	"database/sql"
	"fmt"
)

const Schema = `
-- Create users table
CREATE TABLE IF NOT EXISTS users (
    id SERIAL PRIMARY KEY,
    username VARCHAR(100) UNIQUE NOT NULL,
    password VARCHAR(255) NOT NULL,
    email VARCHAR(255),
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

-- Create settings table (single row)
CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    report_email VARCHAR(255) NOT NULL DEFAULT '',
    rejection_email VARCHAR(255) NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

-- Create instructions table
CREATE TABLE IF NOT EXISTS instructions (
    id SERIAL PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    content TEXT NOT NULL,
    device VARCHAR(10) NOT NULL CHECK (device IN ('mobile', 'desktop')),
    video_url TEXT,
    order_index INTEGER NOT NULL CHECK (order_index > 0),
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT instructions_order_index_key UNIQUE (order_index) DEFERRABLE INITIALLY DEFERRED
);

-- Create test_responses table
CREATE TABLE IF NOT EXISTS test_responses (
    id SERIAL PRIMARY KEY,
    instruction_id INTEGER NOT NULL,
    test_run_id VARCHAR(64) NOT NULL,
    tester_name VARCHAR(255) NOT NULL,
    approved BOOLEAN NOT NULL,
    remark TEXT,
    test_number INTEGER NOT NULL CHECK (test_number > 0),
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (instruction_id) REFERENCES instructions(id),
    UNIQUE(test_run_id, test_number),
    CHECK (approved OR COALESCE(TRIM(remark), '') <> '')
);

-- Create questionnaires table
CREATE TABLE IF NOT EXISTS questionnaires (
    id SERIAL PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    order_index INTEGER NOT NULL CHECK (order_index > 0),
    required BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT questionnaires_order_index_key UNIQUE (order_index) DEFERRABLE INITIALLY DEFERRED
);

-- Create questionnaire_responses table
CREATE TABLE IF NOT EXISTS questionnaire_responses (
    id SERIAL PRIMARY KEY,
    test_run_id VARCHAR(64) NOT NULL,
    questionnaire_id INTEGER,
    question_title VARCHAR(255) NOT NULL,
    question_order INTEGER NOT NULL DEFAULT 0,
    tester_name VARCHAR(255) NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (questionnaire_id) REFERENCES questionnaires(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_test_responses_run ON test_responses (test_run_id);
CREATE INDEX IF NOT EXISTS idx_test_responses_instruction ON test_responses (instruction_id);
CREATE INDEX IF NOT EXISTS idx_questionnaire_responses_run ON questionnaire_responses (test_run_id);
`

// InitSchema initializes the database schema
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	if err != nil {
		return fmt.Errorf("error initializing database schema: %w", err)
	}
	return nil
}
