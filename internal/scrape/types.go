package scrape

import (
	"time"
)

// JobStatus represents the lifecycle state of a bulk scrape job.
type JobStatus string

// Job status values persisted in the job registry. Pending is transient:
// it holds only between job creation and the worker-total write.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
)

// MaxJobErrors caps the per-job error list. Overflow entries are dropped
// silently, oldest kept.
const MaxJobErrors = 20

// InputSummary describes how a submitted URL list was classified.
type InputSummary struct {
	TotalURLs int      `json:"total_urls"`
	ToScrape  int      `json:"to_scrape"`
	Assets    int      `json:"assets"`
	Unknown   int      `json:"unknown"`
	Sites     []string `json:"sites"`
}

// Progress tracks per-path outcomes for a job. All counters are
// monotonically non-decreasing and Completed == Success+Skipped+Failed.
type Progress struct {
	Completed int `json:"completed"`
	Success   int `json:"success"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// WorkerState tracks batch fan-in: Completed counts workers that have
// reported their result, and never exceeds Total.
type WorkerState struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// JobError is one captured per-path failure.
type JobError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Job is the aggregate record for one bulk submission. It is created once,
// mutated by every worker upon batch completion, and never deleted by this
// subsystem.
type Job struct {
	ID        string       `json:"job_id"`
	Status    JobStatus    `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Input     InputSummary `json:"input"`
	Progress  Progress     `json:"progress"`
	Workers   WorkerState  `json:"workers"`
	Errors    []JobError   `json:"errors,omitempty"`
}

// WorkerResult is the tally one worker folds into the job record, exactly
// once per batch.
type WorkerResult struct {
	Success int
	Skipped int
	Failed  int
	Errors  []JobError
}

// Batch is a contiguous slice of one site's paths assigned to a single
// worker invocation. Ephemeral: it exists only as a dispatch unit.
type Batch struct {
	SiteID string
	Paths  []string
}

// SiteMode selects the fetch strategy for a site.
type SiteMode string

// Supported fetch strategies.
const (
	ModeFetch   SiteMode = "fetch"
	ModeBrowser SiteMode = "browser"
)

// ExtractMethod selects how page content is pulled out of the DOM.
type ExtractMethod string

// Supported extraction methods.
const (
	ExtractInnerHTML   ExtractMethod = "inner_html"
	ExtractTextContent ExtractMethod = "text_content"
	ExtractReadability ExtractMethod = "readability"
)

// SiteConfig describes one configured documentation target.
type SiteConfig struct {
	ID       string        `mapstructure:"id" json:"id"`
	Name     string        `mapstructure:"name" json:"name"`
	BaseURL  string        `mapstructure:"base_url" json:"base_url"`
	Mode     SiteMode      `mapstructure:"mode" json:"mode"`
	Selector string        `mapstructure:"selector" json:"selector"`
	Method   ExtractMethod `mapstructure:"method" json:"method"`
	WaitFor  string        `mapstructure:"wait_for" json:"wait_for,omitempty"`
	Links    *LinksConfig  `mapstructure:"links" json:"links,omitempty"`
}

// LinksConfig drives link discovery for a site. Pattern is a substring
// filter on discovered URLs; an empty pattern keeps every same-host link.
type LinksConfig struct {
	StartURLs []string `mapstructure:"start_urls" json:"start_urls,omitempty"`
	Pattern   string   `mapstructure:"pattern" json:"pattern,omitempty"`
	WaitFor   string   `mapstructure:"wait_for" json:"wait_for,omitempty"`
	MaxDepth  int      `mapstructure:"max_depth" json:"max_depth"`
}

// PageContent is a successfully fetched and extracted page. HTML holds the
// raw document the extraction ran over; link discovery crawls it.
type PageContent struct {
	Content   string
	HTML      string
	SourceURL string
}

// Classification is the output of splitting a raw URL list by site.
type Classification struct {
	// BySite maps site id to the ordered list of unique scrapeable paths.
	BySite map[string][]string
	// Assets are URLs whose extension marks them as binary content.
	Assets []AssetRef
	// Unknown are URLs no configured site matched, malformed ones included.
	Unknown []string
}

// AssetRef identifies one binary-asset URL and its resolution, when any.
type AssetRef struct {
	URL    string `json:"url"`
	SiteID string `json:"site_id,omitempty"`
	Path   string `json:"path,omitempty"`
}
