package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// Output file names written by DirWriter.
const (
	ClassificationsFile = "classifications.csv"
	ResolutionsFile     = "resolutions.csv"
)

// ClassificationHeader and ResolutionHeader are the output table schemas.
var (
	ClassificationHeader = []string{ColDisputeID, "category", "confidence", "method", "explanation", ColStatus}
	ResolutionHeader     = []string{ColDisputeID, "action", "justification"}
)

// FormatConfidence renders a confidence with fixed precision so repeated runs
// produce identical bytes.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 4, 64)
}

// ClassificationRow renders one classification in ClassificationHeader order.
func ClassificationRow(c model.ClassificationResult) []string {
	return []string{
		c.DisputeID,
		string(c.Category),
		FormatConfidence(c.Confidence),
		string(c.Method),
		c.Explanation,
		string(c.Status),
	}
}

// ResolutionRow renders one resolution in ResolutionHeader order.
func ResolutionRow(r model.ResolutionResult) []string {
	return []string{r.DisputeID, string(r.Action), r.Justification}
}

// WriteClassifications writes the classification table.
func WriteClassifications(w io.Writer, results []model.ClassificationResult) error {
	rows := make([][]string, 0, len(results)+1)
	rows = append(rows, ClassificationHeader)
	for _, c := range results {
		rows = append(rows, ClassificationRow(c))
	}
	return writeAll(w, rows)
}

// WriteResolutions writes the resolution table.
func WriteResolutions(w io.Writer, results []model.ResolutionResult) error {
	rows := make([][]string, 0, len(results)+1)
	rows = append(rows, ResolutionHeader)
	for _, r := range results {
		rows = append(rows, ResolutionRow(r))
	}
	return writeAll(w, rows)
}

func writeAll(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// DirWriter writes both output tables into a directory.
type DirWriter struct {
	Dir string
}

var _ service.ReportWriter = DirWriter{}

// Write implements service.ReportWriter. Each file is written to a temporary
// name first and renamed into place.
func (d DirWriter) Write(ctx context.Context, report *service.Report) error {
	dir := config.ExpandPath(d.Dir)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, ClassificationsFile), func(w io.Writer) error {
		return WriteClassifications(w, report.Classifications)
	}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, ResolutionsFile), func(w io.Writer) error {
		return WriteResolutions(w, report.Resolutions)
	}); err != nil {
		return err
	}

	slog.Info("Wrote output tables",
		"dir", dir,
		"run_id", report.RunID,
		"rows", len(report.Classifications))
	return nil
}

// Paths returns the files Write produces.
func (d DirWriter) Paths() (classifications, resolutions string) {
	dir := config.ExpandPath(d.Dir)
	return filepath.Join(dir, ClassificationsFile), filepath.Join(dir, ResolutionsFile)
}

func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename has happened.
		_ = os.Remove(tmpName)
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
