package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cardforge/internal/pngtext"
)

// ExtractCard pulls the embedded character definition out of an uploaded PNG
// card and returns it as JSON.
func (a *App) ExtractCard(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "file_required", message(r, "file_required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable upload")
		return
	}

	payload, err := pngtext.Extract(data)
	switch {
	case errors.Is(err, pngtext.ErrNotPNG):
		a.error(w, http.StatusBadRequest, "file_not_png", message(r, "file_not_png"))
		return
	case errors.Is(err, pngtext.ErrNoCardChunk):
		a.error(w, http.StatusNotFound, "no_card_data", message(r, "no_card_data"))
		return
	case errors.Is(err, pngtext.ErrDecode):
		a.error(w, http.StatusUnprocessableEntity, "card_data_corrupt", message(r, "card_data_corrupt"))
		return
	case err != nil:
		a.error(w, http.StatusInternalServerError, "internal", message(r, "internal"))
		return
	}

	var card any
	if err := json.Unmarshal(payload, &card); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "card_data_corrupt", message(r, "card_data_corrupt"))
		return
	}
	a.json(w, http.StatusOK, map[string]any{"card": card})
}
