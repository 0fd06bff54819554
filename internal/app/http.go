package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskflow/api/internal/auth"
	"taskflow/api/internal/avatars"
	"taskflow/api/internal/realtime"
)

type HTTPServer struct {
	service    *Service
	stream     *realtime.Broadcaster
	corsOrigin string
}

func NewHTTPServer(service *Service, stream *realtime.Broadcaster, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, stream: stream, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeSuccess(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.service.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"success": false,
				"error":   map[string]any{"message": err.Error(), "code": "NOT_READY"},
			})
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		return
	}

	switch parts[1] {
	case "auth":
		s.handleAuth(w, r, parts)
	case "users":
		s.handleUsers(w, r, parts)
	case "boards":
		s.handleBoards(w, r, parts)
	case "lists":
		s.handleLists(w, r, parts)
	case "tasks":
		s.handleTasks(w, r, parts)
	case "search":
		s.handleSearch(w, r, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

// --- auth routes ---

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		return
	}

	switch {
	case r.Method == http.MethodPost && parts[2] == "register":
		var body struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		result, err := s.service.Register(r.Context(), body.Name, body.Email, body.Password)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, result)

	case r.Method == http.MethodPost && parts[2] == "login":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		result, err := s.service.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result)

	case r.Method == http.MethodPost && parts[2] == "refresh":
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		result, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result)

	case r.Method == http.MethodPost && parts[2] == "logout":
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeSuccess(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodGet && parts[2] == "me":
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		user, err := s.service.CurrentUser(r.Context(), session)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, user)

	case r.Method == http.MethodPut && parts[2] == "me":
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body UpdateProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		user, err := s.service.UpdateProfile(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, user)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

// --- user routes ---

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, parts []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodPut && len(parts) == 3 && parts[2] == "me":
		var body UpdateProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		user, err := s.service.UpdateProfile(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, user)

	case r.Method == http.MethodPost && len(parts) == 4 && parts[2] == "me" && parts[3] == "avatar":
		s.handleAvatarUpload(w, r, session)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

func (s *HTTPServer) handleAvatarUpload(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, avatars.MaxSize+4096)
	if err := r.ParseMultipartForm(avatars.MaxSize); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "avatar file is required")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "avatar file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "could not read avatar file")
		return
	}
	user, err := s.service.UploadAvatar(r.Context(), session, data, header.Header.Get("Content-Type"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

// --- board routes ---

func (s *HTTPServer) handleBoards(w http.ResponseWriter, r *http.Request, parts []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		page, limit := parsePagination(r)
		boards, total, err := s.service.ListBoards(r.Context(), session, r.URL.Query().Get("search"), page, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writePaginated(w, http.StatusOK, boards, page, limit, total)

	case r.Method == http.MethodPost && len(parts) == 2:
		var body CreateBoardInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		board, err := s.service.CreateBoard(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, board)

	case r.Method == http.MethodGet && len(parts) == 3:
		board, err := s.service.GetBoardDetail(r.Context(), session, parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, board)

	case r.Method == http.MethodPut && len(parts) == 3:
		var body UpdateBoardInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		board, err := s.service.UpdateBoard(r.Context(), session, parts[2], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, board)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteBoard(r.Context(), session, parts[2]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"id": parts[2]})

	case r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "members":
		var body AddMemberInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		board, err := s.service.AddBoardMember(r.Context(), session, parts[2], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, board)

	case r.Method == http.MethodDelete && len(parts) == 5 && parts[3] == "members":
		board, err := s.service.RemoveBoardMember(r.Context(), session, parts[2], parts[4])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, board)

	case r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "activities":
		page, limit := parsePagination(r)
		activities, total, err := s.service.ListActivities(r.Context(), session, parts[2], r.URL.Query().Get("action"), page, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writePaginated(w, http.StatusOK, activities, page, limit, total)

	case r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "lists":
		lists, err := s.service.ListLists(r.Context(), session, parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, lists)

	case r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "lists":
		var body CreateListInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		body.BoardID = parts[2]
		list, err := s.service.CreateList(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, list)

	case r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "stream":
		s.handleBoardStream(w, r, session, parts[2])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

// handleBoardStream serves board events over SSE. One stream covers exactly
// one board; joining another board is opening another stream.
func (s *HTTPServer) handleBoardStream(w http.ResponseWriter, r *http.Request, session Session, boardID string) {
	if _, err := s.service.requireBoardAccess(r.Context(), session, boardID); err != nil {
		writeMappedError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ch := s.stream.Subscribe(boardID)
	defer s.stream.Unsubscribe(boardID, ch)

	// Opening comment confirms the stream to the client.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event := <-ch:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("stream: marshal event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// --- list routes ---

func (s *HTTPServer) handleLists(w http.ResponseWriter, r *http.Request, parts []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		boardID := r.URL.Query().Get("boardId")
		if boardID == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "boardId query parameter is required")
			return
		}
		lists, err := s.service.ListLists(r.Context(), session, boardID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, lists)

	case r.Method == http.MethodPost && len(parts) == 2:
		var body CreateListInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		list, err := s.service.CreateList(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, list)

	case r.Method == http.MethodPatch && len(parts) == 3 && parts[2] == "reorder":
		var body ReorderListsInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		lists, err := s.service.ReorderLists(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, lists)

	case r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "tasks":
		page, limit := parsePagination(r)
		tasks, total, err := s.service.ListTasks(r.Context(), session, parts[2], r.URL.Query().Get("search"), page, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writePaginated(w, http.StatusOK, tasks, page, limit, total)

	case r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "tasks":
		var body CreateTaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		body.ListID = parts[2]
		task, err := s.service.CreateTask(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, task)

	case r.Method == http.MethodPut && len(parts) == 3:
		var body UpdateListInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		list, err := s.service.UpdateList(r.Context(), session, parts[2], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, list)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteList(r.Context(), session, parts[2]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"id": parts[2]})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

// --- task routes ---

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request, parts []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		listID := r.URL.Query().Get("listId")
		if listID == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "listId query parameter is required")
			return
		}
		page, limit := parsePagination(r)
		tasks, total, err := s.service.ListTasks(r.Context(), session, listID, r.URL.Query().Get("search"), page, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writePaginated(w, http.StatusOK, tasks, page, limit, total)

	case r.Method == http.MethodPost && len(parts) == 2:
		var body CreateTaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		task, err := s.service.CreateTask(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, task)

	case r.Method == http.MethodGet && len(parts) == 3:
		task, err := s.service.GetTask(r.Context(), session, parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, task)

	case r.Method == http.MethodPut && len(parts) == 3:
		var body UpdateTaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		task, err := s.service.UpdateTask(r.Context(), session, parts[2], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, task)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteTask(r.Context(), session, parts[2]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"id": parts[2]})

	case r.Method == http.MethodPatch && len(parts) == 4 && parts[3] == "move":
		var body MoveTaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		task, err := s.service.MoveTask(r.Context(), session, parts[2], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, task)

	case r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "assign":
		var body AssignTaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		task, err := s.service.AssignTask(r.Context(), session, parts[2], body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, task)

	case r.Method == http.MethodDelete && len(parts) == 5 && parts[3] == "assign":
		task, err := s.service.UnassignTask(r.Context(), session, parts[2], parts[4])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, task)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

// --- search ---

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodGet || len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		return
	}
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "q query parameter is required")
		return
	}
	page, limit := parsePagination(r)
	response, err := s.service.SearchAll(r.Context(), session, text, r.URL.Query().Get("type"), r.URL.Query().Get("boardId"), limit, (page-1)*limit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, response)
}

// --- session gate ---

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		// EventSource cannot set headers, streams pass the token in the query.
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return Session{}, false
	}
	return session, true
}

// --- middleware and helpers ---

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets the recorder pass through SSE flushes.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writePaginated(w http.ResponseWriter, status int, data any, page, limit, total int) {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
		"pagination": map[string]any{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": pages,
		},
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	})
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message := mapError(err)
	writeError(w, status, code, message)
}

func mapError(err error) (status int, code, message string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found"
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error"
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = 20
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
