package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/siscx/voice-donation-app/internal/aggregator"
	"github.com/siscx/voice-donation-app/internal/assembler"
	"github.com/siscx/voice-donation-app/internal/audio"
	"github.com/siscx/voice-donation-app/internal/config"
	"github.com/siscx/voice-donation-app/internal/dataset"
	"github.com/siscx/voice-donation-app/internal/features"
	"github.com/siscx/voice-donation-app/internal/logger"
	"github.com/siscx/voice-donation-app/internal/pipeline"
	"github.com/siscx/voice-donation-app/internal/sink"
	"github.com/siscx/voice-donation-app/internal/types"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "voice-donation-app").Info("starting service")

	cfg, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	store := sink.NewMemorySink()
	reporting := sink.NewRetrySink(store, cfg.SinkMaxRetryTime)

	norm := audio.NewNormalizer(cfg.FFmpegBinary)
	engine := features.NewEngine()
	proc := pipeline.NewProcessor(norm, engine)
	sched := pipeline.NewScheduler(proc, reporting, cfg.MaxConcurrentBatches, cfg.StartupDelay,
		func(sub types.RecordingSubmission) types.RecordingMetadata {
			return assembler.BuildMetadata(sub, false)
		})
	agg := aggregator.New(sched, cfg.PendingTTL)
	agg.OnEvict(func(sub types.RecordingSubmission) {
		if err := reporting.RecordFailed(sub.RecordingID, "donation never completed"); err != nil {
			log.WithError(err).Error("could not record evicted task")
		}
	})
	agg.StartEvictionLoop(context.Background(), time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Info("health check")
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/api/voice-donation", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "voice-donation")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		reqLog.Info("donation submission received")

		if err := r.ParseMultipartForm(cfg.MaxAudioBytes); err != nil {
			reqLog.WithError(err).Warn("bad multipart form")
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart form"})
			return
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no audio file provided"})
			return
		}
		defer file.Close()
		audioData, err := io.ReadAll(io.LimitReader(file, cfg.MaxAudioBytes+1))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "could not read audio"})
			return
		}
		if int64(len(audioData)) > cfg.MaxAudioBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "audio file too large"})
			return
		}

		recordingID := uuid.New().String()
		donationID := r.FormValue("donation_id")
		if donationID == "" {
			donationID = recordingID
		}
		taskNumber := formInt(r, "task_number", 1)
		totalTasks := formInt(r, "total_tasks", 1)

		sub := types.RecordingSubmission{
			RecordingID:   recordingID,
			DonationID:    donationID,
			TaskNumber:    taskNumber,
			TaskType:      r.FormValue("task_type"),
			ExpectedTasks: totalTasks,
			Audio:         audioData,
			Filename:      header.Filename,
			Context: types.RequestContext{
				RemoteAddr: r.RemoteAddr,
				UserAgent:  r.UserAgent(),
				Method:     r.Method,
				SessionID:  r.FormValue("session_id"),
			},
			SubmittedAt: time.Now().UTC(),
		}

		if err := agg.Submit(sub); err != nil {
			reqLog.WithError(err).Warn("submission rejected")
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		reqLog.WithField("recording_id", recordingID).
			WithField("donation_id", donationID).
			WithField("task_number", taskNumber).
			Info("submission accepted")
		writeJSON(w, http.StatusOK, map[string]any{
			"success":         true,
			"recording_id":    recordingID,
			"donation_id":     donationID,
			"message":         "Voice donation submitted successfully",
			"status":          "submitted",
			"processing_info": "Your recordings are being processed to help advance medical research.",
			"task_info": map[string]any{
				"task_number": taskNumber,
				"task_type":   sub.TaskType,
				"total_tasks": totalTasks,
			},
		})
	})

	mux.HandleFunc("/api/recording-status", func(w http.ResponseWriter, r *http.Request) {
		recordingID := r.URL.Query().Get("recording_id")
		if recordingID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing recording_id"})
			return
		}
		entry, ok := store.Get(recordingID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown recording"})
			return
		}
		status := "processing"
		if entry.Status != "" {
			status = string(entry.Status)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"recording_id": recordingID,
			"status":       status,
			"error":        entry.Reason,
		})
	})

	mux.HandleFunc("/api/dataset-export", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "dataset-export")
		records := store.CompletedRecords()
		reqLog.WithField("records", len(records)).Info("export requested")
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="voice_donations.xlsx"`)
		if err := dataset.Write(records, w); err != nil {
			reqLog.WithError(err).Error("export failed")
		}
		if cfg.ExportPath != "" {
			if err := dataset.Export(records, cfg.ExportPath); err != nil {
				reqLog.WithError(err).Error("export snapshot failed")
			} else {
				reqLog.WithField("path", cfg.ExportPath).Info("export snapshot saved")
			}
		}
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}

func formInt(r *http.Request, field string, def int) int {
	if v := r.FormValue(field); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
