// Package job defines the immutable job record produced by the scraper
// collaborator and consumed by every downstream stage.
package job

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is a scraped job posting. It is never mutated after import; all
// pipeline stages reference it by ID.
type Record struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	PostedDate  string    `json:"posted_date,omitempty"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Fingerprint derives the stable job id from the source URL: query
// parameters and fragments are stripped so the same posting reached via
// different tracking links collapses to one record.
func Fingerprint(url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", errors.New("cannot fingerprint job: url is empty")
	}

	clean := url
	if idx := strings.IndexByte(clean, '?'); idx != -1 {
		clean = clean[:idx]
	}
	if idx := strings.IndexByte(clean, '#'); idx != -1 {
		clean = clean[:idx]
	}
	clean = strings.TrimRight(clean, "/")

	sum := md5.Sum([]byte(clean))
	return hex.EncodeToString(sum[:])[:12], nil
}

// Validate rejects malformed records before they enter the hard filter.
func (r *Record) Validate() error {
	if r == nil {
		return errors.New("job record is nil")
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("job record has no id")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("job %s has no title", r.ID)
	}
	if strings.TrimSpace(r.Company) == "" {
		return fmt.Errorf("job %s has no company", r.ID)
	}
	return nil
}

// SearchText returns the lowercased text the filter and scorer match
// against: title, company, description and location joined together.
func (r *Record) SearchText() string {
	return strings.ToLower(strings.Join([]string{r.Title, r.Company, r.Description, r.Location}, " "))
}

// TitleText returns the lowercased title for title-only rules.
func (r *Record) TitleText() string {
	return strings.ToLower(r.Title)
}

// Records is a batch of job records with small convenience helpers.
type Records struct {
	Items []*Record `json:"jobs"`
}

func (rs *Records) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Items)
}

// FindByID returns the record with the given id or nil.
func (rs *Records) FindByID(id string) *Record {
	for _, r := range rs.Items {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// ReportByCompany returns a company -> titles summary used by the
// interactive review prompt.
func (rs *Records) ReportByCompany() map[string][]string {
	report := make(map[string][]string)
	for _, r := range rs.Items {
		report[r.Company] = append(report[r.Company], r.Title)
	}
	return report
}
