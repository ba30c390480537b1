package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/kalambet/concierge/internal/ingest"
)

type ingestDocumentRequest struct {
	Title string `json:"title"`
	// Type is one of: markdown (default), html, pdf.
	Type    string `json:"type"`
	Source  string `json:"source"`
	Content string `json:"content"`
	// ContentBase64 carries binary documents (pdf). Exactly one of
	// Content and ContentBase64 must be set.
	ContentBase64 string `json:"content_base64"`
}

type ingestDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

func handleIngestDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		defer r.Body.Close()

		var req ingestDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if (req.Content == "") == (req.ContentBase64 == "") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "exactly one of content or content_base64 is required")
			return
		}
		if req.Type == "" {
			req.Type = "markdown"
		}
		if req.Source == "" {
			req.Source = "upload"
		}

		var text string
		switch req.Type {
		case "markdown":
			text = req.Content
		case "html":
			extracted, err := ingest.ExtractHTML(strings.NewReader(req.Content))
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "extracting html text: %v", err)
				return
			}
			text = extracted
		case "pdf":
			raw, err := base64.StdEncoding.DecodeString(req.ContentBase64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "decoding content_base64: %v", err)
				return
			}
			extracted, err := ingest.ExtractPDF(bytes.NewReader(raw), int64(len(raw)))
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "extracting pdf text: %v", err)
				return
			}
			text = extracted
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported type %q: must be markdown, html, or pdf", req.Type)
			return
		}

		docID, chunks, err := deps.Ingestor.Ingest(r.Context(), req.Title, req.Source, text)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "ingesting document: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, ingestDocumentResponse{DocumentID: docID, Chunks: chunks})
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			limit = n
		}

		docs, err := deps.Store.ListDocuments(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	}
}
