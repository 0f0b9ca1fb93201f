package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cardforge/internal/jobs"
	"cardforge/internal/pngtext"
	"cardforge/pkg/zip"
)

// maxUploadBytes bounds a single submission, input text and base image
// included.
const maxUploadBytes = 32 << 20

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Submit accepts a multipart generation request: a provider label, the raw
// character material as input_text or an uploaded file, and an optional PNG
// base image. The job is persisted first and processed asynchronously.
func (a *App) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	payload := strings.TrimSpace(r.FormValue("input_text"))
	if file, _, err := r.FormFile("file"); err == nil {
		data, readErr := io.ReadAll(file)
		file.Close()
		if readErr != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unreadable upload")
			return
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			if payload == "" {
				payload = text
			} else {
				payload = payload + "\n\n" + text
			}
		}
	}
	if payload == "" {
		a.error(w, http.StatusBadRequest, "input_required", message(r, "input_required"))
		return
	}

	var baseImage []byte
	if file, _, err := r.FormFile("base_image"); err == nil {
		data, readErr := io.ReadAll(file)
		file.Close()
		if readErr != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unreadable base image")
			return
		}
		if !pngtext.IsPNG(data) {
			a.error(w, http.StatusBadRequest, "base_image_not_png", message(r, "base_image_not_png"))
			return
		}
		baseImage = data
	}

	rec, err := a.Store.Create(r.FormValue("provider"), payload, baseImage)
	if err != nil {
		a.Logger.Error().Err(err).Msg("job create failed")
		a.error(w, http.StatusInternalServerError, "internal", message(r, "internal"))
		return
	}
	a.Runner.Start(rec.ID)
	a.json(w, http.StatusAccepted, submitResponse{JobID: rec.ID, Status: string(rec.Status)})
}

// ListJobs returns every readable job record, split into in-progress and
// completed groups, newest first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListJobs()
	if err != nil {
		a.Logger.Error().Err(err).Msg("job list failed")
		a.error(w, http.StatusInternalServerError, "internal", message(r, "internal"))
		return
	}
	a.json(w, http.StatusOK, list)
}

// JobDetail aggregates the record and every artifact of one job.
func (a *App) JobDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := a.Store.Detail(id)
	if errors.Is(err, jobs.ErrNotFound) {
		a.error(w, http.StatusNotFound, "job_not_found", message(r, "job_not_found"))
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", id).Msg("job detail failed")
		a.error(w, http.StatusInternalServerError, "internal", message(r, "internal"))
		return
	}
	a.json(w, http.StatusOK, detail)
}

// ResultFile downloads the normalized result document.
func (a *App) ResultFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := a.Store.ResultPath(id)
	if errors.Is(err, jobs.ErrNotFound) {
		a.error(w, http.StatusNotFound, "job_not_found", message(r, "job_not_found"))
		return
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", message(r, "internal"))
		return
	}
	if path == "" {
		a.error(w, http.StatusNotFound, "job_not_completed", message(r, "job_not_completed"))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=card-%s.json", id))
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, path)
}

// CardFile downloads the PNG character card with the definition embedded.
func (a *App) CardFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := a.Store.CardPath(id)
	if errors.Is(err, jobs.ErrNotFound) {
		a.error(w, http.StatusNotFound, "job_not_found", message(r, "job_not_found"))
		return
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", message(r, "internal"))
		return
	}
	if path == "" {
		a.error(w, http.StatusNotFound, "job_not_completed", message(r, "job_not_completed"))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=card-%s.png", id))
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// Bundle packages every artifact of a completed job into one zip download.
func (a *App) Bundle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := a.Store.Meta(id)
	if errors.Is(err, jobs.ErrNotFound) {
		a.error(w, http.StatusNotFound, "job_not_found", message(r, "job_not_found"))
		return
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", message(r, "internal"))
		return
	}
	if rec.Status != jobs.StatusCompleted {
		a.error(w, http.StatusConflict, "job_not_completed", message(r, "job_not_completed"))
		return
	}

	result, _ := a.Store.ReadResult(id)
	cardPNG, _ := a.Store.ReadCardImage(id)
	raw, _ := a.Store.ReadRaw(id)
	input, _ := a.Store.ReadInput(id)
	entries := []zip.Entry{
		{Filename: "result.json", Data: result},
		{Filename: "card.png", Data: cardPNG},
		{Filename: "input.txt", Data: []byte(input)},
	}
	if raw != nil {
		entries = append(entries, zip.Entry{Filename: "raw.txt", Data: []byte(*raw)})
	}
	archive, err := zip.Bundle(entries)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", id).Msg("bundle failed")
		a.error(w, http.StatusInternalServerError, "internal", message(r, "internal"))
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.zip", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

type chunkEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type statusEvent struct {
	Type       string             `json:"type"`
	Status     string             `json:"status"`
	Error      *string            `json:"error"`
	TokenUsage map[string]float64 `json:"token_usage"`
}

// Stream relays the job's partial output as server-sent events. Every chunk
// event carries the next read offset in its SSE id line, so a reconnecting
// client resumes with ?offset=N and never sees a byte twice. The stream ends
// with exactly one status event once the job reaches a terminal state.
func (a *App) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.Store.Meta(id); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			a.error(w, http.StatusNotFound, "job_not_found", message(r, "job_not_found"))
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", message(r, "internal"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	offset, _ := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	if offset < 0 {
		offset = 0
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(a.Config.StreamPollInterval)
	defer ticker.Stop()

	for {
		offset = a.emitChunk(w, flusher, id, offset)

		rec, err := a.Store.Meta(id)
		if err != nil {
			// The directory was evicted or corrupted mid-stream. The
			// client still gets a well-formed ending.
			msg := "任務記錄已無法讀取"
			writeSSE(w, offset, statusEvent{Type: "status", Status: string(jobs.StatusFailed), Error: &msg})
			flusher.Flush()
			return
		}
		if rec.Status.Terminal() {
			// Drain bytes appended between the last read and the
			// terminal transition before announcing the outcome.
			offset = a.emitChunk(w, flusher, id, offset)
			writeSSE(w, offset, statusEvent{
				Type:       "status",
				Status:     string(rec.Status),
				Error:      rec.Error,
				TokenUsage: rec.TokenUsage,
			})
			flusher.Flush()
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// emitChunk reads stream bytes past offset and, when any exist, writes one
// chunk event. Returns the offset to resume from.
func (a *App) emitChunk(w http.ResponseWriter, flusher http.Flusher, id string, offset int64) int64 {
	chunk, next, err := a.Store.ReadStreamChunk(id, offset)
	if err != nil || chunk == "" {
		return offset
	}
	writeSSE(w, next, chunkEvent{Type: "chunk", Content: chunk})
	flusher.Flush()
	return next
}

func writeSSE(w io.Writer, id int64, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\ndata: %s\n\n", id, data)
}
