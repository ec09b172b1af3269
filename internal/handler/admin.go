package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/saq/internal/content"
)

const maxUploadSize = 10 << 20

func (h *Handler) handleDumpTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.store.DumpTags()
	if err != nil {
		slog.Error("failed to dump tags", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *Handler) handleLoadTags(w http.ResponseWriter, r *http.Request) {
	var tags map[string][]string
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&tags); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	skipped, err := h.store.LoadTags(tags)
	if err != nil {
		slog.Error("failed to load tags", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("loaded tags via admin", "questions", len(tags)-len(skipped), "skipped", len(skipped))
	if skipped == nil {
		skipped = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"updated": len(tags) - len(skipped),
		"skipped": skipped,
	})
}

// handleUploadContent imports a questionnaire document sent either as the
// content_file field of a multipart form or as a raw JSON body.
func (h *Handler) handleUploadContent(w http.ResponseWriter, r *http.Request) {
	var (
		data []byte
		name = "upload"
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			http.Error(w, "file too large", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("content_file")
		if err != nil {
			http.Error(w, "no file uploaded", http.StatusBadRequest)
			return
		}
		defer file.Close()
		name = header.Filename
		data, err = io.ReadAll(file)
		if err != nil {
			http.Error(w, "failed to read file", http.StatusInternalServerError)
			return
		}
	} else {
		data, err = io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])
	key := "upload:" + name

	storedHash, err := h.store.GetImportedFileHash(key)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, map[string]any{"unchanged": true})
		return
	}

	doc, err := content.Import(h.store, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.SetImportedFileHash(key, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("uploaded content via admin", "filename", name,
		"questions", len(doc.Questions), "pages", len(doc.Pages))
	writeJSON(w, http.StatusOK, map[string]any{
		"answer_sets": len(doc.AnswerSets),
		"questions":   len(doc.Questions),
		"pages":       len(doc.Pages),
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportSubmissions()
	if err != nil {
		slog.Error("failed to export submissions", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, export)
}
