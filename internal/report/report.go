// Package report renders a prediction result for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/SyedDaiam9101/image-predict/internal/rank"
)

// Output formats
const (
	FormatText  = "text"
	FormatTable = "table"
	FormatJSON  = "json"
)

// Result is everything a run prints
type Result struct {
	RunID       string
	Elapsed     time.Duration
	Predictions []rank.Prediction
	Cached      bool
}

// Write renders r to w in the named format: "text", "table" or "json".
func Write(w io.Writer, format string, r *Result) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return writeText(w, r)
	case FormatTable:
		return writeTable(w, r)
	case FormatJSON:
		return writeJSON(w, r)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Seconds formats d as the shortest decimal number of seconds.
func Seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// Score formats a displayed score zero-padded to eight characters.
func Score(s float64) string {
	return fmt.Sprintf("%08.6f", s)
}

func writeText(w io.Writer, r *Result) error {
	if _, err := fmt.Fprintf(w, "time: %ss\n", Seconds(r.Elapsed)); err != nil {
		return err
	}
	for _, p := range r.Predictions {
		if _, err := fmt.Fprintf(w, "%s: %s\n", Score(p.Score), p.Label); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(w io.Writer, r *Result) error {
	if _, err := fmt.Fprintf(w, "time: %ss\n", Seconds(r.Elapsed)); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rank", "Score", "Label", "Index"})
	table.SetAutoWrapText(false)
	for i, p := range r.Predictions {
		table.Append([]string{
			strconv.Itoa(i + 1),
			Score(p.Score),
			p.Label,
			strconv.Itoa(p.Index),
		})
	}
	table.Render()
	return nil
}

type jsonResult struct {
	RunID          string            `json:"run_id"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	Cached         bool              `json:"cached"`
	Predictions    []rank.Prediction `json:"predictions"`
}

func writeJSON(w io.Writer, r *Result) error {
	preds := r.Predictions
	if preds == nil {
		preds = []rank.Prediction{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonResult{
		RunID:          r.RunID,
		ElapsedSeconds: r.Elapsed.Seconds(),
		Cached:         r.Cached,
		Predictions:    preds,
	})
}
