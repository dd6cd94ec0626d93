// Package dataset exports completed donation records as a research
// workbook: one row per recording plus a summary sheet.
package dataset

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/siscx/voice-donation-app/internal/logger"
	"github.com/siscx/voice-donation-app/internal/types"
)

const (
	recordingsSheet = "Recordings"
	summarySheet    = "Summary"
)

// Export writes the records to an xlsx workbook at path.
func Export(records []types.DonationRecord, path string) error {
	f, err := build(records)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Write streams the workbook to w, for HTTP download handlers.
func Write(records []types.DonationRecord, w io.Writer) error {
	f, err := build(records)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func build(records []types.DonationRecord) (*excelize.File, error) {
	log := logger.NewComponent("dataset").WithField("records", len(records))
	log.Info("building export workbook")

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", recordingsSheet)

	featureCols := featureColumns(records)
	header := append(metaHeader(), featureCols...)
	if err := f.SetSheetRow(recordingsSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		row := metaRow(rec)
		for _, name := range featureCols {
			row = append(row, featureCell(rec.Features, name))
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(recordingsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := writeSummary(f, records); err != nil {
		return nil, err
	}
	return f, nil
}

func metaHeader() []any {
	return []any{
		"recording_id", "donation_id", "task_number", "task_type",
		"recorded_at_utc", "original_filename", "original_format",
		"file_size_mb", "conversion_applied",
		"duration_seconds", "sample_rate", "signal_quality",
		"is_clipped", "silence_ratio", "audio_level_db",
		"data_completeness", "recommended_for_analysis",
	}
}

func metaRow(rec types.DonationRecord) []any {
	m, q, s := rec.Metadata, rec.Quality, rec.Summary
	return []any{
		m.RecordingID, m.DonationID, m.TaskNumber, m.TaskType,
		m.RecordedAtUTC, m.OriginalFilename, m.OriginalFormat,
		m.FileSizeMB, m.ConversionApplied,
		q.DurationSeconds, q.SampleRate, q.SignalQuality,
		q.IsClipped, q.SilenceRatio, q.AudioLevelDB,
		s.DataCompleteness, s.RecommendedForAnalysis,
	}
}

// featureColumns collects every feature name across all records, with
// vector features flattened to name_0..name_n, sorted for stable
// column order.
func featureColumns(records []types.DonationRecord) []any {
	seen := map[string]bool{}
	var names []string
	for _, rec := range records {
		for name, v := range rec.Features {
			if v.Vector != nil {
				for i := range v.Vector {
					flat := fmt.Sprintf("%s_%d", name, i)
					if !seen[flat] {
						seen[flat] = true
						names = append(names, flat)
					}
				}
			} else if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	cols := make([]any, len(names))
	for i, n := range names {
		cols[i] = n
	}
	return cols
}

func featureCell(fs types.FeatureSet, col any) any {
	name := col.(string)
	if v, ok := fs[name]; ok && v.Vector == nil {
		if !v.Valid() {
			return nil
		}
		return v.Scalar
	}
	// Flattened vector component: name_i.
	for base, v := range fs {
		if v.Vector == nil {
			continue
		}
		for i, x := range v.Vector {
			if fmt.Sprintf("%s_%d", base, i) == name {
				return x
			}
		}
	}
	return nil
}

func writeSummary(f *excelize.File, records []types.DonationRecord) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	byQuality := map[string]int{}
	var completeness float64
	recommended := 0
	for _, rec := range records {
		byQuality[rec.Quality.SignalQuality]++
		completeness += rec.Summary.DataCompleteness
		if rec.Summary.RecommendedForAnalysis {
			recommended++
		}
	}
	if len(records) > 0 {
		completeness /= float64(len(records))
	}

	rows := [][]any{
		{"total_recordings", len(records)},
		{"recommended_for_analysis", recommended},
		{"mean_data_completeness", completeness},
		{"excellent", byQuality[types.QualityExcellent]},
		{"good", byQuality[types.QualityGood]},
		{"poor", byQuality[types.QualityPoor]},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	return nil
}
