// Package store declares the persistence contracts for enriched target
// rows produced by pipeline runs.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("target record not found")

// Stage names the pipeline step whose columns an upsert replaces.
type Stage string

// Pipeline stages persisted per column group.
const (
	StageBlogCheck   Stage = "blog_check"
	StageEmailScrape Stage = "email_scrape"
	StageEmailVerify Stage = "email_verify"
)

// Valid reports whether the stage is one of the known column groups.
func (s Stage) Valid() bool {
	switch s {
	case StageBlogCheck, StageEmailScrape, StageEmailVerify:
		return true
	default:
		return false
	}
}

// TargetRecord is one flattened CRM row keyed by (upload_id, website).
// Up to three discovered emails live in fixed slots so the row exports
// cleanly to spreadsheets.
type TargetRecord struct {
	UploadID string `json:"upload_id"`
	Website  string `json:"website"`
	Company  string `json:"company,omitempty"`
	Name     string `json:"name,omitempty"`

	// Blog check columns.
	IsBlog           *bool  `json:"is_blog,omitempty"`
	BlogScore        *int   `json:"blog_score,omitempty"`
	BlogIndicators   string `json:"blog_indicators,omitempty"`
	HasRecentContent *bool  `json:"has_recent_content,omitempty"`
	RecentReason     string `json:"recent_reason,omitempty"`

	// Scrape columns.
	Email       string `json:"email,omitempty"`
	Email2      string `json:"email_2,omitempty"`
	Email3      string `json:"email_3,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedIn    string `json:"linkedin,omitempty"`
	Instagram   string `json:"instagram,omitempty"`
	Facebook    string `json:"facebook,omitempty"`
	ContactForm string `json:"contact_form,omitempty"`

	// Verification columns, one set per email slot. Verified is the
	// CRM-level advisory flag, a lower bar than deliverable.
	EmailQuality   *int   `json:"email_quality,omitempty"`
	EmailStatus    string `json:"email_status,omitempty"`
	EmailNotes     string `json:"email_notes,omitempty"`
	EmailVerified  *bool  `json:"email_verified,omitempty"`
	Email2Quality  *int   `json:"email_2_quality,omitempty"`
	Email2Status   string `json:"email_2_status,omitempty"`
	Email2Notes    string `json:"email_2_notes,omitempty"`
	Email2Verified *bool  `json:"email_2_verified,omitempty"`
	Email3Quality  *int   `json:"email_3_quality,omitempty"`
	Email3Status   string `json:"email_3_status,omitempty"`
	Email3Notes    string `json:"email_3_notes,omitempty"`
	Email3Verified *bool  `json:"email_3_verified,omitempty"`
	BestEmail      string `json:"best_email,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TargetRepository persists flattened target rows. UpsertTargets
// replaces the stage's column group wholesale for each record while
// merging identity columns, so checkpoint retries stay idempotent.
type TargetRepository interface {
	UpsertTargets(ctx context.Context, stage Stage, records []TargetRecord) error
	// GetTarget loads one row or returns ErrNotFound.
	GetTarget(ctx context.Context, uploadID, website string) (TargetRecord, error)
	// ListTargets returns every row for an upload ordered by website.
	ListTargets(ctx context.Context, uploadID string) ([]TargetRecord, error)
}
