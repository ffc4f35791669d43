package domain

import (
	"encoding/json"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day in UTC. The zero value means "unknown".
type Date struct {
	time.Time
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC calendar day.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// DaysSince returns the number of whole days from d to later.
func (d Date) DaysSince(later Date) int {
	return int(later.Sub(d.Time).Hours() / 24)
}

func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON never fails on a bad value; it leaves the date zero so that a
// single damaged record cannot invalidate a whole cache file.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		*d = Date{}
		return nil
	}
	*d = parsed
	return nil
}

// FrontierEntry is a URL waiting to be rendered, paired with its crawl depth.
type FrontierEntry struct {
	URL   string
	Depth int
}

// ProductRecord is the persisted state of one product URL.
type ProductRecord struct {
	URL      string `json:"-"`
	LastSeen Date   `json:"last_seen"`
	Lastmod  Date   `json:"lastmod"`
}

// Age returns today − last_seen in whole days.
func (r ProductRecord) Age(today Date) int {
	return r.LastSeen.DaysSince(today)
}

// CrawlStats summarises one run. It is served by the status API while the run
// is in progress and logged when it ends.
type CrawlStats struct {
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at,omitempty"`
	Phase              string    `json:"phase"` // "crawling", "refreshing", "emitting", "done"
	PagesProcessed     int64     `json:"pages_processed"`
	PagesFailed        int64     `json:"pages_failed"`
	PagesSkipped       int64     `json:"pages_skipped"`
	ProductsDiscovered int       `json:"products_discovered"`
	RecordsRefreshed   int       `json:"records_refreshed"`
	RecordsPruned      int       `json:"records_pruned"`
	RecordsTotal       int       `json:"records_total"`
	SitemapFiles       []string  `json:"sitemap_files,omitempty"`
}
