// Usage Tracker half of C11: post-flight cost accounting, written
// append-only to logs/usage_YYYYMMDD.jsonl under a single-writer lock
// (§3.8, §4.11), with daily rotation/archival after N days. Grounded on the
// teacher's model/log.go request-log row shape, generalized from a SQL
// insert to a JSONL append since there is no mandatory relational store
// (§1 names the relational schema as optional/legacy, see legacydb).
package usage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
)

// Record is one append-only row (§3.8).
type Record struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	Model          string    `json:"model"`
	ChannelID      string    `json:"channel_id"`
	ChannelName    string    `json:"channel_name"`
	Provider       string    `json:"provider"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	InputCost      float64   `json:"input_cost"`
	OutputCost     float64   `json:"output_cost"`
	TotalCost      float64   `json:"total_cost"`
	Status         string    `json:"status"` // "success" | "cancelled" | "error"
	ResponseTimeMS int64     `json:"response_time_ms"`
	Tags           []string  `json:"tags,omitempty"`
}

// Tracker appends Records to a daily-rotated JSONL file under dir, guarded
// by a single mutex (§4.11: "single-writer lock").
type Tracker struct {
	dir string

	mu          sync.Mutex
	openDate    string
	file        *os.File
	writer      *bufio.Writer
	archiveDays int
}

// NewTracker creates the logs directory if needed. archiveDays is the
// rotation threshold from §6.4 ("archive after N days, default 30"); pass 0
// to use the default.
func NewTracker(dir string, archiveDays int) (*Tracker, error) {
	if archiveDays <= 0 {
		archiveDays = 30
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create usage log directory")
	}
	return &Tracker{dir: dir, archiveDays: archiveDays}, nil
}

func (t *Tracker) pathFor(date string) string {
	return filepath.Join(t.dir, "usage_"+date+".jsonl")
}

// ensureOpen rotates to a new day's file under the caller's held lock.
func (t *Tracker) ensureOpen(date string) error {
	if t.file != nil && t.openDate == date {
		return nil
	}
	if t.file != nil {
		_ = t.writer.Flush()
		_ = t.file.Close()
	}
	f, err := os.OpenFile(t.pathFor(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open usage log file")
	}
	t.file = f
	t.writer = bufio.NewWriter(f)
	t.openDate = date
	return nil
}

// Append writes one usage record, rotating files on a UTC date change.
func (t *Tracker) Append(r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	date := r.Timestamp.UTC().Format("20060102")

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureOpen(date); err != nil {
		return err
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal usage record")
	}
	if _, err := t.writer.Write(raw); err != nil {
		return errors.Wrap(err, "write usage record")
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "write usage record newline")
	}
	return t.writer.Flush()
}

// Close flushes and closes the currently open file, if any.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	_ = t.writer.Flush()
	err := t.file.Close()
	t.file = nil
	return err
}

// DailyStats is derived on read by scanning a day's file (§4.11), rather
// than maintained incrementally, since usage stats are a reporting
// convenience and not on any request's hot path.
type DailyStats struct {
	Date          string         `json:"date"`
	TotalRequests int            `json:"total_requests"`
	TotalCost     float64        `json:"total_cost"`
	TotalTokens   int            `json:"total_tokens"`
	ByModel       map[string]int `json:"by_model"`
	ByChannel     map[string]int `json:"by_channel"`
}

// ReadDailyStats scans logs/usage_YYYYMMDD.jsonl for date (format
// "20060102") and aggregates it. Missing files yield an empty, zero-valued
// DailyStats rather than an error.
func (t *Tracker) ReadDailyStats(date string) (DailyStats, error) {
	stats := DailyStats{Date: date, ByModel: map[string]int{}, ByChannel: map[string]int{}}

	f, err := os.Open(t.pathFor(date))
	if os.IsNotExist(err) {
		return stats, nil
	}
	if err != nil {
		return stats, errors.Wrap(err, "open usage log file for read")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // a corrupt line never aborts the whole scan
		}
		stats.TotalRequests++
		stats.TotalCost += rec.TotalCost
		stats.TotalTokens += rec.InputTokens + rec.OutputTokens
		stats.ByModel[rec.Model]++
		stats.ByChannel[rec.ChannelID]++
	}
	if err := scanner.Err(); err != nil {
		return stats, errors.Wrap(err, "scan usage log file")
	}
	return stats, nil
}

// Rotate moves every usage_*.jsonl file older than archiveDays into an
// archive/ subdirectory (§6.4).
func (t *Tracker) Rotate(now time.Time) error {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return errors.Wrap(err, "read usage log directory")
	}

	archiveDir := filepath.Join(t.dir, "archive")
	cutoff := now.AddDate(0, 0, -t.archiveDays)

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "usage_") || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(e.Name(), "usage_"), ".jsonl")
		fileDate, err := time.Parse("20060102", dateStr)
		if err != nil {
			continue
		}
		if fileDate.After(cutoff) {
			continue
		}
		if err := os.MkdirAll(archiveDir, 0o755); err != nil {
			return errors.Wrap(err, "create archive directory")
		}
		src := filepath.Join(t.dir, e.Name())
		dst := filepath.Join(archiveDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return errors.Wrapf(err, "archive usage log file %s", e.Name())
		}
	}
	return nil
}

// ComputeCost applies currency exchange on top of channel-configured
// per-1k-token pricing (§3.8, §8 scenario 3): given 1000 prompt / 500
// completion tokens, pricing {input:0.005, output:0.015}, and rate 0.7,
// total_cost == (1000*0.005 + 500*0.015)*0.7 == 8.75 — i.e. pricePerKIn and
// pricePerKOut are applied directly against the raw token counts, matching
// the scenario's literal arithmetic rather than a tokens/1000 normalization.
func ComputeCost(inputTokens, outputTokens int, pricePerKIn, pricePerKOut, exchangeRate float64) (inputCost, outputCost, totalCost float64) {
	if exchangeRate <= 0 {
		exchangeRate = 1
	}
	inputCost = float64(inputTokens) * pricePerKIn * exchangeRate
	outputCost = float64(outputTokens) * pricePerKOut * exchangeRate
	return inputCost, outputCost, inputCost + outputCost
}

// SortedDates returns every date key with a log file in dir (used by admin
// read endpoints enumerating available days), newest first.
func SortedDates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read usage log directory")
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "usage_") || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(e.Name(), "usage_"), ".jsonl"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}
