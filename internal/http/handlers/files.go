package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"genclient/internal/rpc"
)

// Upload accepts a multipart "file" field, stores it and answers with its URL.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	if a.Files == nil {
		a.error(w, http.StatusServiceUnavailable, rpc.CodeInternal, "uploads are disabled")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, rpc.CodeBadRequest, "file too large")
			return
		}
		a.error(w, http.StatusBadRequest, rpc.CodeBadRequest, "multipart field \"file\" required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, rpc.CodeBadRequest, "unreadable file")
		return
	}
	if len(data) == 0 {
		a.error(w, http.StatusBadRequest, rpc.CodeBadRequest, "empty file")
		return
	}
	mtype := mimetype.Detect(data)
	ext := mtype.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(header.Filename))
	}
	key := "uploads/" + uuid.NewString() + ext
	if _, err := a.Files.Save(r.Context(), key, data, mtype.String()); err != nil {
		a.Logger.Error().Err(err).Str("key", key).Msg("devapi: store upload failed")
		a.error(w, http.StatusInternalServerError, rpc.CodeInternal, "failed to store file")
		return
	}
	a.Logger.Info().Str("key", key).Str("mime", mtype.String()).Int("bytes", len(data)).Msg("devapi: upload stored")
	a.json(w, http.StatusOK, map[string]string{"url": baseURL(r) + "/files/" + key})
}

// UploadedFiles serves previously uploaded files below /files/uploads/.
func (a *App) UploadedFiles() http.Handler {
	if a.Files == nil {
		return http.NotFoundHandler()
	}
	root := filepath.Join(a.Files.BasePath(), "uploads")
	return http.StripPrefix("/files/uploads/", http.FileServer(http.Dir(root)))
}

// ResultFile renders the output of a completed item as a small PNG.
func (a *App) ResultFile(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	itemID, err := strconv.ParseInt(strings.TrimSuffix(chi.URLParam(r, "file"), ".png"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if !a.Jobs.ResultReady(jobID, itemID) {
		http.NotFound(w, r)
		return
	}
	data, err := renderResult(jobID, itemID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, rpc.CodeInternal, "failed to render result")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%d-%d.png", jobID, itemID))
	_, _ = w.Write(data)
}

func renderResult(jobID, itemID int64) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	fill := color.RGBA{R: uint8(jobID * 53), G: uint8(itemID * 97), B: uint8((jobID + itemID) * 31), A: 255}
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
