package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline/sightline-cli/internal/model"
)

func TestUnwrapDescription_JSONWrapper(t *testing.T) {
	got := UnwrapDescription(`{"detected": true, "description": "a bird on the feeder"}`)

	assert.Equal(t, "a bird on the feeder", got)
}

func TestUnwrapDescription_FencedJSON(t *testing.T) {
	got := UnwrapDescription("```json\n{\"detected\": false, \"description\": \"no bird seen\"}\n```")

	assert.Equal(t, "no bird seen", got)
}

func TestUnwrapDescription_PlainTextPassthrough(t *testing.T) {
	got := UnwrapDescription("A bird is visible near the edge of the frame.")

	assert.Equal(t, "A bird is visible near the edge of the frame.", got)
}

func TestUnwrapDescription_InvalidJSONPassthrough(t *testing.T) {
	in := `{"detected": true, "description":`

	assert.Equal(t, in, UnwrapDescription(in))
}

func TestUnwrapDescription_JSONWithoutDescriptionPassthrough(t *testing.T) {
	in := `{"detected": true}`

	assert.Equal(t, in, UnwrapDescription(in))
}

func TestExportCSV(t *testing.T) {
	processedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	result := model.BatchResult{
		Records: []model.BatchRecord{
			{
				InputRef:         "https://a.example.com/1.mp4",
				HasDetection:     true,
				Description:      `{"detected": true, "description": "a bird perched briefly"}`,
				ConfidenceScore:  0.9,
				ProcessingTimeMs: 1500,
				Status:           model.StatusSuccess,
				ProcessedAt:      processedAt,
			},
			{
				InputRef:     "https://a.example.com/2.mp4",
				Status:       model.StatusFailed,
				ErrorMessage: "https://a.example.com/2.mp4 not accessible",
				ProcessedAt:  processedAt,
			},
		},
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, ExportCSV(result, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Has Detection,Description,Confidence Score,Processing Time ms,Input Reference,Error Message,Analysis Status,Processed At", lines[0])
	assert.Contains(t, lines[1], "a bird perched briefly")
	assert.NotContains(t, lines[1], "detected\":")
	assert.Contains(t, lines[1], "2026-03-14T09:30:00Z")
	assert.Contains(t, lines[2], "Failed")
	assert.Contains(t, lines[2], "not accessible")
}

func TestDefaultOutputPath(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 5, 0, time.UTC)

	assert.Equal(t, "blue_jay_detections_20260314_093005.csv", DefaultOutputPath("Blue Jay", now))
	assert.Equal(t, "batch_detections_20260314_093005.csv", DefaultOutputPath("  ", now))
}

func TestWriteSummary_AlwaysRenders(t *testing.T) {
	var sb strings.Builder
	result := model.BatchResult{
		ObjectName:   "bird",
		TotalInputs:  2,
		Records:      []model.BatchRecord{{HasDetection: true}, {Status: model.StatusFailed}},
		SuccessCount: 1,
		FailureCount: 1,
		StartTime:    time.Now(),
		EndTime:      time.Now().Add(2 * time.Second),
	}
	result.ProcessedCount = 2

	WriteSummary(&sb, result)

	out := sb.String()
	assert.Contains(t, out, "Object:")
	assert.Contains(t, out, "bird")
	assert.Contains(t, out, "Detections:")
	assert.Contains(t, out, "Failed:")
}
