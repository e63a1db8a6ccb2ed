package rewear

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// adHocReportKey labels history entries written by `rewear query`.
const adHocReportKey = "query"

// HistoryEntry is one executed report or ad-hoc query.
type HistoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Report     string    `json:"report"`
	Dialect    string    `json:"dialect"`
	Rows       int       `json:"rows"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

func newHistoryEntry(start time.Time, report, dialect string, rows int, err error) HistoryEntry {
	e := HistoryEntry{
		Timestamp:  start.UTC(),
		Report:     report,
		Dialect:    dialect,
		Rows:       rows,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func (e HistoryEntry) status() string {
	if e.Error != "" {
		return "failed"
	}
	return "ok"
}

// recordHistoryBestEffort appends entry unless history is disabled. Write
// failures never fail the run; they are only reported with --verbose.
func recordHistoryBestEffort(cfg *Config, stderr io.Writer, entry HistoryEntry) {
	if cfg.NoHistory {
		return
	}

	path := strings.TrimSpace(cfg.HistoryFile)
	if path == "" {
		path = defaultHistoryFile()
	}

	if err := appendHistoryEntry(path, entry); err != nil && cfg.Verbose {
		warnColor.Fprintf(stderr, "warning: failed to write history: %v\n", err)
	}
}

func appendHistoryEntry(path string, entry HistoryEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write history entry: %w", err)
	}
	return f.Close()
}

// validateHistoryFilter checks the --report value of `rewear history`.
func validateHistoryFilter(report string) error {
	if report == "" || report == adHocReportKey || slices.Contains(reportKeys(), report) {
		return nil
	}
	return fmt.Errorf("unknown --report %q (expected %s or %s)", report, strings.Join(reportKeys(), ", "), adHocReportKey)
}

func filterHistory(entries []HistoryEntry, report string, failedOnly bool) []HistoryEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if report != "" && e.Report != report {
			continue
		}
		if failedOnly && e.Error == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

func runHistory(cfg *Config, stdout io.Writer) error {
	entries, err := readHistoryEntries(cfg.HistoryFile)
	if err != nil {
		return err
	}

	entries = filterHistory(entries, cfg.HistoryReport, cfg.HistoryFailed)
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No history entries found.")
		return nil
	}
	if cfg.HistoryLimit < len(entries) {
		entries = entries[len(entries)-cfg.HistoryLimit:]
	}

	if cfg.HistoryOutput == "json" {
		payload, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		fmt.Fprintln(stdout, string(payload))
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Timestamp.Format(time.RFC3339),
			e.Report,
			e.Dialect,
			strconv.Itoa(e.Rows),
			strconv.FormatInt(e.DurationMs, 10),
			e.status(),
			e.Error,
		})
	}
	fmt.Fprintln(stdout, renderGrid([]string{"timestamp", "report", "db", "rows", "ms", "status", "error"}, rows))
	return nil
}

// readHistoryEntries decodes the JSONL history file in append order. A
// missing file has no entries.
func readHistoryEntries(path string) ([]HistoryEntry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var entries []HistoryEntry
	dec := json.NewDecoder(f)
	for {
		var e HistoryEntry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse history entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
}
