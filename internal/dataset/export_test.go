package dataset

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/siscx/voice-donation-app/internal/types"
)

func record(id string, quality string, pitch float64) types.DonationRecord {
	return types.DonationRecord{
		Metadata: types.RecordingMetadata{
			RecordingID:      id,
			DonationID:       "don-1",
			TaskNumber:       1,
			TaskType:         "free_speech",
			OriginalFilename: id + ".wav",
			OriginalFormat:   ".wav",
		},
		Quality: types.QualityMetrics{
			DurationSeconds: 2,
			SampleRate:      44100,
			SignalQuality:   quality,
		},
		Features: types.FeatureSet{
			"mean_pitch": types.Scalar(pitch),
			"mfcc_mean":  types.Vector([]float64{1, 2, 3}),
		},
		Summary: types.ProcessingSummary{
			DataCompleteness:       100,
			RecommendedForAnalysis: quality != types.QualityPoor,
		},
	}
}

func TestWriteAndReadBack(t *testing.T) {
	records := []types.DonationRecord{
		record("rec-1", types.QualityExcellent, 180),
		record("rec-2", types.QualityPoor, 95),
	}

	var buf bytes.Buffer
	if err := Write(records, &buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(recordingsSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}

	header := rows[0]
	col := map[string]int{}
	for i, h := range header {
		col[h] = i
	}
	for _, want := range []string{"recording_id", "signal_quality", "mean_pitch", "mfcc_mean_0", "mfcc_mean_2"} {
		if _, ok := col[want]; !ok {
			t.Fatalf("missing column %q in %v", want, header)
		}
	}
	if rows[1][col["recording_id"]] != "rec-1" {
		t.Fatalf("row order: %v", rows[1])
	}
	if rows[1][col["signal_quality"]] != "excellent" {
		t.Fatalf("quality cell: %v", rows[1][col["signal_quality"]])
	}
	if rows[2][col["mean_pitch"]] != "95" {
		t.Fatalf("feature cell: %v", rows[2][col["mean_pitch"]])
	}

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	byKey := map[string]string{}
	for _, row := range summary {
		if len(row) >= 2 {
			byKey[row[0]] = row[1]
		}
	}
	if byKey["total_recordings"] != "2" {
		t.Fatalf("summary totals: %v", byKey)
	}
	if byKey["excellent"] != "1" || byKey["poor"] != "1" {
		t.Fatalf("quality distribution: %v", byKey)
	}
}

func TestExportSavesWorkbookToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "donations.xlsx")
	records := []types.DonationRecord{record("rec-1", types.QualityGood, 140)}

	if err := Export(records, path); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen saved workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(recordingsSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus 1 row, got %d", len(rows))
	}
}

func TestWriteEmptyRecords(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(nil, &buf); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(recordingsSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}
