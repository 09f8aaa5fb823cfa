// Package catalog loads and validates the directory catalog: the read-only
// list of submission targets the monitor watches.
package catalog

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// DirectoryRecord describes one third-party directory. Records are validated
// once at load time and immutable afterwards.
type DirectoryRecord struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	SubmissionURL   string            `json:"submissionUrl"`
	FieldMapping    map[string]string `json:"fieldMapping"`
	Category        string            `json:"category"`
	Tier            int               `json:"tier"`
	DomainAuthority int               `json:"domainAuthority"`
}

// Target returns the URL to probe for form structure: the submission URL
// when present, otherwise the homepage.
func (r DirectoryRecord) Target() string {
	if r.SubmissionURL != "" {
		return r.SubmissionURL
	}
	return r.URL
}

// Catalog is an ordered, id-unique set of directory records.
type Catalog struct {
	records []DirectoryRecord
	byID    map[string]int
}

// Load reads a JSON array of directory records from path and validates it.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var records []DirectoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(records)
}

// New validates records and builds a Catalog. Validation is strict and
// happens exactly once; downstream code never re-checks record shape.
func New(records []DirectoryRecord) (*Catalog, error) {
	byID := make(map[string]int, len(records))
	for i, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			return nil, fmt.Errorf("catalog record %d: id is required", i)
		}
		if _, dup := byID[rec.ID]; dup {
			return nil, fmt.Errorf("catalog record %d: duplicate id %q", i, rec.ID)
		}
		if err := validURL(rec.URL); err != nil {
			return nil, fmt.Errorf("catalog record %q: url: %w", rec.ID, err)
		}
		if rec.SubmissionURL != "" {
			if err := validURL(rec.SubmissionURL); err != nil {
				return nil, fmt.Errorf("catalog record %q: submissionUrl: %w", rec.ID, err)
			}
		}
		byID[rec.ID] = i
	}
	return &Catalog{records: records, byID: byID}, nil
}

// Records returns the catalog in load order.
func (c *Catalog) Records() []DirectoryRecord {
	return c.records
}

// Get looks up a record by id.
func (c *Catalog) Get(id string) (DirectoryRecord, bool) {
	i, ok := c.byID[id]
	if !ok {
		return DirectoryRecord{}, false
	}
	return c.records[i], true
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.records) }

func validURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
