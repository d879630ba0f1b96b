package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"rsc.io/pdf"
)

const (
	maxUploadBytes           = 25 * 1024 * 1024
	maxMultipartRequestBytes = maxUploadBytes + (1 * 1024 * 1024)
	maxExportMessages        = 50
	maxExtractedTextRunes    = 200_000
	defaultUploadPrefix      = "chat-uploads"
	exportPrefix             = "chat-exports"
)

var (
	errUnsupportedFileType = errors.New("unsupported file type")

	supportedUploadExtensions = map[string]struct{}{
		".txt":  {},
		".md":   {},
		".pdf":  {},
		".csv":  {},
		".json": {},
	}

	filenameSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

type fileResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	MediaType   string `json:"mediaType"`
	SizeBytes   int64  `json:"sizeBytes"`
	DownloadURL string `json:"downloadUrl"`
	CreatedAt   string `json:"createdAt"`
}

// UploadFile stores the attachment blob and returns its extracted text so
// the client can send it back inline with the next chat message.
func (h Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}
	if h.files == nil {
		writeError(w, http.StatusServiceUnavailable, "attachments_unconfigured", "attachments storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartRequestBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file size exceeds 25 MB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "request must be multipart/form-data")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, "invalid_request", "file field is required")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read uploaded file")
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	extension := strings.ToLower(filepath.Ext(filename))
	if _, supported := supportedUploadExtensions[extension]; !supported {
		writeError(w, http.StatusBadRequest, "unsupported_file_type", "supported file types: .txt, .md, .pdf, .csv, .json")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read uploaded file")
		return
	}
	if int64(len(data)) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file size exceeds 25 MB")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "empty files are not allowed")
		return
	}

	extractedText, err := extractUploadedText(extension, data)
	if err != nil {
		if errors.Is(err, errUnsupportedFileType) {
			writeError(w, http.StatusBadRequest, "unsupported_file_type", "supported file types: .txt, .md, .pdf, .csv, .json")
			return
		}
		writeError(w, http.StatusBadRequest, "file_extraction_failed", "failed to extract text from attachment")
		return
	}
	extractedText = trimToRunes(extractedText, maxExtractedTextRunes)
	if strings.TrimSpace(extractedText) == "" {
		writeError(w, http.StatusBadRequest, "file_extraction_failed", "attachment did not contain extractable text")
		return
	}

	mediaType := detectUploadMediaType(header.Header.Get("Content-Type"), extension, data)
	fileID := uuid.NewString()
	objectPath := h.buildObjectPath(defaultUploadPrefix, user.ID, fileID, filename)

	if err := h.files.PutObject(r.Context(), objectPath, mediaType, data); err != nil {
		log.Printf("upload attachment object failed: user_id=%s file_id=%s err=%v", user.ID, fileID, err)
		writeError(w, http.StatusBadGateway, "storage_error", "failed to store attachment")
		return
	}

	response, err := h.insertFileRecord(r.Context(), user.ID, fileID, filename, mediaType, int64(len(data)), objectPath, extractedText)
	if err != nil {
		log.Printf("persist attachment metadata failed: user_id=%s file_id=%s err=%v", user.ID, fileID, err)
		_ = h.files.DeleteObject(r.Context(), objectPath)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to save file metadata")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"file": response, "content": extractedText})
}

func (h Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
SELECT id, filename, media_type, size_bytes, COALESCE(download_url, ''), created_at
FROM files
WHERE user_id = ?
ORDER BY created_at DESC, rowid DESC;
`, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read files")
		return
	}
	defer rows.Close()

	files := make([]fileResponse, 0, 16)
	for rows.Next() {
		var file fileResponse
		if err := rows.Scan(&file.ID, &file.Filename, &file.MediaType, &file.SizeBytes, &file.DownloadURL, &file.CreatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error", "failed to parse files")
			return
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read files")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

type exportRequest struct {
	MessageIDs []string `json:"messageIds"`
}

type exportedMessage struct {
	ID        string
	ChatID    string
	ChatTitle string
	Role      string
	Content   string
	CreatedAt string
}

// ExportFile renders the requested messages to markdown, one file per
// message, zipped when more than one. The produced blob is recorded in files
// and the download link is written back onto each exported message.
func (h Handler) ExportFile(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}
	if h.files == nil {
		writeError(w, http.StatusServiceUnavailable, "attachments_unconfigured", "attachments storage is not configured")
		return
	}

	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	messageIDs := normalizeIDs(req.MessageIDs)
	if len(messageIDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "messageIds is required")
		return
	}
	if len(messageIDs) > maxExportMessages {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many messageIds")
		return
	}

	exported, err := h.loadExportMessages(r.Context(), user.ID, messageIDs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "one or more messages not found or access denied")
			return
		}
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read messages")
		return
	}

	var (
		data      []byte
		filename  string
		mediaType string
	)
	if len(exported) == 1 {
		data = renderMessageMarkdown(exported[0])
		filename = exportFilename(exported[0], "md")
		mediaType = "text/markdown; charset=utf-8"
	} else {
		data, err = renderMessagesZip(exported)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "export_failed", "failed to build export archive")
			return
		}
		filename = fmt.Sprintf("chat-export-%s.zip", time.Now().UTC().Format("20060102-150405"))
		mediaType = "application/zip"
	}

	fileID := uuid.NewString()
	objectPath := h.buildObjectPath(exportPrefix, user.ID, fileID, filename)
	if err := h.files.PutObject(r.Context(), objectPath, mediaType, data); err != nil {
		log.Printf("store export object failed: user_id=%s file_id=%s err=%v", user.ID, fileID, err)
		writeError(w, http.StatusBadGateway, "storage_error", "failed to store export")
		return
	}

	response, err := h.insertFileRecord(r.Context(), user.ID, fileID, filename, mediaType, int64(len(data)), objectPath, "")
	if err != nil {
		log.Printf("persist export metadata failed: user_id=%s file_id=%s err=%v", user.ID, fileID, err)
		_ = h.files.DeleteObject(r.Context(), objectPath)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to save export metadata")
		return
	}

	for _, msg := range exported {
		if _, err := h.db.ExecContext(r.Context(), `
UPDATE messages SET download_url = ?, download_filename = ? WHERE id = ? AND user_id = ?;
`, response.DownloadURL, filename, msg.ID, user.ID); err != nil {
			log.Printf("attach export link failed: message_id=%s err=%v", msg.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "file": response})
}

// DownloadFile streams a stored blob back to its owner.
func (h Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}
	if h.files == nil {
		writeError(w, http.StatusServiceUnavailable, "attachments_unconfigured", "attachments storage is not configured")
		return
	}

	fileID := strings.TrimSpace(chi.URLParam(r, "id"))
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "file id is required")
		return
	}

	var (
		filename    string
		mediaType   string
		storagePath string
	)
	err := h.db.QueryRowContext(r.Context(), `
SELECT filename, media_type, storage_path
FROM files
WHERE id = ? AND user_id = ?;
`, fileID, user.ID).Scan(&filename, &mediaType, &storagePath)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not_found", "file not found or access denied")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read file metadata")
		return
	}

	data, err := h.files.GetObject(r.Context(), storagePath)
	if err != nil {
		log.Printf("read stored object failed: user_id=%s file_id=%s err=%v", user.ID, fileID, err)
		writeError(w, http.StatusBadGateway, "storage_error", "failed to read stored file")
		return
	}

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h Handler) insertFileRecord(ctx context.Context, userID, fileID, filename, mediaType string, sizeBytes int64, objectPath, extractedText string) (fileResponse, error) {
	downloadURL := fmt.Sprintf("/v1/files/%s/download", fileID)

	var extracted sql.NullString
	if extractedText != "" {
		extracted = sql.NullString{String: extractedText, Valid: true}
	}

	var response fileResponse
	err := h.db.QueryRowContext(ctx, `
INSERT INTO files (
  id,
  user_id,
  filename,
  media_type,
  size_bytes,
  storage_backend,
  storage_path,
  download_url,
  extracted_text
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, filename, media_type, size_bytes, download_url, created_at;
`, fileID, userID, filename, mediaType, sizeBytes, h.files.Backend(), objectPath, downloadURL, extracted).Scan(
		&response.ID,
		&response.Filename,
		&response.MediaType,
		&response.SizeBytes,
		&response.DownloadURL,
		&response.CreatedAt,
	)
	if err != nil {
		return fileResponse{}, fmt.Errorf("insert file record: %w", err)
	}
	return response, nil
}

// loadExportMessages resolves every requested message, joined to its chat
// for the title heading. Any id missing or foreign reports sql.ErrNoRows so
// the route can hide other users' messages behind a plain 404.
func (h Handler) loadExportMessages(ctx context.Context, userID string, messageIDs []string) ([]exportedMessage, error) {
	args := make([]any, 0, len(messageIDs)+1)
	args = append(args, userID)
	for _, id := range messageIDs {
		args = append(args, id)
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(messageIDs)), ",")
	query := fmt.Sprintf(`
SELECT m.id, m.chat_id, c.title, m.role, m.content, m.created_at
FROM messages m
JOIN chats c ON c.id = m.chat_id
WHERE m.user_id = ? AND m.id IN (%s);
`, placeholders)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]exportedMessage, len(messageIDs))
	for rows.Next() {
		var msg exportedMessage
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.ChatTitle, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		byID[msg.ID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]exportedMessage, 0, len(messageIDs))
	for _, id := range messageIDs {
		msg, ok := byID[id]
		if !ok {
			return nil, sql.ErrNoRows
		}
		ordered = append(ordered, msg)
	}
	return ordered, nil
}

func renderMessageMarkdown(msg exportedMessage) []byte {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("# %s\n\n", msg.ChatTitle))
	builder.WriteString(fmt.Sprintf("**Role:** %s  \n", msg.Role))
	builder.WriteString(fmt.Sprintf("**Date:** %s\n\n", msg.CreatedAt))
	builder.WriteString("---\n\n")
	builder.WriteString(msg.Content)
	builder.WriteString("\n")
	return []byte(builder.String())
}

func renderMessagesZip(messages []exportedMessage) ([]byte, error) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)

	for i, msg := range messages {
		name := fmt.Sprintf("%02d-%s", i+1, exportFilename(msg, "md"))
		entry, err := archive.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := entry.Write(renderMessageMarkdown(msg)); err != nil {
			return nil, err
		}
	}

	if err := archive.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportFilename(msg exportedMessage, extension string) string {
	base := sanitizeFilename(msg.ChatTitle)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "file" {
		base = "message"
	}
	base = trimToRunes(base, 60)
	return fmt.Sprintf("%s-%s.%s", base, trimToRunes(msg.ID, 8), extension)
}

func (h Handler) buildObjectPath(prefix, userID, fileID, filename string) string {
	configured := strings.Trim(strings.TrimSpace(h.cfg.GCSUploadPrefix), "/")
	if configured != "" && prefix == defaultUploadPrefix {
		prefix = configured
	}
	return path.Join(prefix, "users", userID, fileID, filename)
}

func extractUploadedText(extension string, data []byte) (string, error) {
	switch extension {
	case ".txt", ".md", ".csv":
		return normalizeTextPayload(string(data)), nil
	case ".json":
		if !json.Valid(data) {
			return "", errors.New("invalid json")
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, data, "", "  "); err != nil {
			return "", err
		}
		return normalizeTextPayload(pretty.String()), nil
	case ".pdf":
		text, err := extractPDFText(data)
		if err != nil {
			return "", err
		}
		return normalizeTextPayload(text), nil
	default:
		return "", errUnsupportedFileType
	}
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var textBuilder strings.Builder
	runeCount := 0
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		content := page.Content()
		for _, item := range content.Text {
			chunk := strings.TrimSpace(item.S)
			if chunk == "" {
				continue
			}
			if textBuilder.Len() > 0 {
				textBuilder.WriteByte('\n')
				runeCount++
			}
			textBuilder.WriteString(chunk)
			runeCount += utf8.RuneCountInString(chunk)
			if runeCount >= maxExtractedTextRunes {
				return trimToRunes(textBuilder.String(), maxExtractedTextRunes), nil
			}
		}
	}

	return textBuilder.String(), nil
}

func normalizeTextPayload(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ToValidUTF8(normalized, "")
	return strings.TrimSpace(normalized)
}

func detectUploadMediaType(headerContentType, extension string, data []byte) string {
	contentType := strings.TrimSpace(headerContentType)
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	if byExt := strings.TrimSpace(mime.TypeByExtension(extension)); byExt != "" {
		return byExt
	}

	if len(data) > 0 {
		sniffLen := len(data)
		if sniffLen > 512 {
			sniffLen = 512
		}
		return http.DetectContentType(data[:sniffLen])
	}

	return "application/octet-stream"
}

func sanitizeFilename(raw string) string {
	base := strings.TrimSpace(filepath.Base(raw))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "file"
	}

	extension := filepath.Ext(base)
	namePart := strings.TrimSuffix(base, extension)
	namePart = filenameSanitizer.ReplaceAllString(namePart, "_")
	namePart = strings.Trim(namePart, "._")
	if namePart == "" {
		namePart = "file"
	}

	extension = strings.ToLower(extension)
	extension = filenameSanitizer.ReplaceAllString(extension, "")
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}

	candidate := namePart + extension
	candidate = trimToRunes(candidate, 180)
	if strings.TrimSpace(candidate) == "" {
		return "file"
	}
	return candidate
}

func normalizeIDs(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func trimToRunes(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	return string([]rune(raw)[:limit])
}
