package models

import (
	"time"
)

// Resolution is a persisted record of one dependency resolution run
type Resolution struct {
	ID           string          `json:"id" db:"id"`
	WorkflowName string          `json:"workflow_name,omitempty" db:"workflow_name"`
	Format       WorkflowFormat  `json:"format" db:"format"`
	Graph        DependencyGraph `json:"dependencies" db:"graph"` // JSONB
	CreatedBy    string          `json:"created_by,omitempty" db:"created_by"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// StoredFile is a file reference remembered across runs for upload dedup
type StoredFile struct {
	Category  string    `json:"category" db:"category"`
	Name      string    `json:"name" db:"name"`
	Hash      Hash      `json:"hash" db:"hash"`
	URL       string    `json:"url" db:"url"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
