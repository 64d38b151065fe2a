package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sightline/sightline-cli/internal/model"
)

// csvRow mirrors the batch CSV column layout. Field order defines column order.
type csvRow struct {
	HasDetection     bool    `csv:"Has Detection"`
	Description      string  `csv:"Description"`
	ConfidenceScore  float64 `csv:"Confidence Score"`
	ProcessingTimeMs int64   `csv:"Processing Time ms"`
	InputRef         string  `csv:"Input Reference"`
	ErrorMessage     string  `csv:"Error Message"`
	Status           string  `csv:"Analysis Status"`
	ProcessedAt      string  `csv:"Processed At"`
}

// ExportCSV writes the batch records as a CSV artifact. The whole file is
// marshalled into memory first and persisted with a single write, so a
// partially written file is never observable as valid.
func ExportCSV(result model.BatchResult, outputPath string) error {
	rows := make([]csvRow, 0, len(result.Records))
	for _, rec := range result.Records {
		rows = append(rows, csvRow{
			HasDetection:     rec.HasDetection,
			Description:      UnwrapDescription(rec.Description),
			ConfidenceScore:  rec.ConfidenceScore,
			ProcessingTimeMs: rec.ProcessingTimeMs,
			InputRef:         rec.InputRef,
			ErrorMessage:     rec.ErrorMessage,
			Status:           string(rec.Status),
			ProcessedAt:      rec.ProcessedAt.Format(time.RFC3339),
		})
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "report: marshal csv")
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return eris.Wrap(err, "report: write csv")
	}
	return nil
}

// UnwrapDescription strips the JSON wrapper models often echo back
// ({"detected":...,"description":"..."}) down to the inner description text.
// Anything that does not parse as that shape passes through unchanged.
func UnwrapDescription(s string) string {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if !strings.HasPrefix(trimmed, "{") {
		return s
	}

	var wrapper struct {
		Description *string `json:"description"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil || wrapper.Description == nil {
		return s
	}
	return *wrapper.Description
}

// DefaultOutputPath derives a CSV path from the object name and the current
// time.
func DefaultOutputPath(objectName string, now time.Time) string {
	slug := strings.ToLower(strings.TrimSpace(objectName))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	if slug == "" {
		slug = "batch"
	}
	return fmt.Sprintf("%s_detections_%s.csv", slug, now.Format("20060102_150405"))
}

// WriteSummary renders a human-readable batch summary. It always renders,
// even under total failure.
func WriteSummary(out io.Writer, result model.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Object:\t%s\n", result.ObjectName)
	_, _ = fmt.Fprintf(w, "Inputs:\t%d\n", result.TotalInputs)
	_, _ = fmt.Fprintf(w, "Processed:\t%d\n", result.ProcessedCount)
	_, _ = fmt.Fprintf(w, "Detections:\t%d\n", countDetections(result.Records))
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d\n", result.SuccessCount)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", result.FailureCount)
	_, _ = fmt.Fprintf(w, "Elapsed:\t%s\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	_ = w.Flush()
}

func countDetections(records []model.BatchRecord) int {
	var n int
	for _, r := range records {
		if r.HasDetection {
			n++
		}
	}
	return n
}
