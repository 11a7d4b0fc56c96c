package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/studynotes/internal/api/middleware"
	"github.com/bigkaa/studynotes/internal/domain/model"
	"github.com/bigkaa/studynotes/internal/domain/rbac"
	"github.com/bigkaa/studynotes/internal/service"
)

// --- Фейки сервисного слоя ---

type fakeNoteOps struct {
	notes      []*model.Note
	lastFilter model.NoteFilter
	lastInput  model.NoteInput
	createErr  error
	deleteErr  error
}

func (f *fakeNoteOps) ListNotes(_ context.Context, filter model.NoteFilter) ([]*model.Note, error) {
	f.lastFilter = filter
	if f.notes == nil {
		return []*model.Note{}, nil
	}
	return f.notes, nil
}

func (f *fakeNoteOps) GetNote(_ context.Context, id string) (*model.Note, error) {
	for _, n := range f.notes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, service.ErrNotFound
}

func (f *fakeNoteOps) DeleteNote(_ context.Context, id, _ string) (*model.Note, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return f.GetNote(context.Background(), id)
}

func (f *fakeNoteOps) CreateNote(_ context.Context, p model.Principal, in model.NoteInput) (*model.Note, error) {
	f.lastInput = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &model.Note{ID: "new", Title: in.Title, UploaderID: p.SubjectID, UploadedAt: time.Unix(0, 0).UTC()}, nil
}

type fakeUserOps struct {
	users      []*model.UserProfile
	updateErr  error
	lastTarget string
	lastRole   rbac.AssignableRole
}

func (f *fakeUserOps) ListUsers(context.Context) ([]*model.UserProfile, error) {
	return f.users, nil
}

func (f *fakeUserOps) UpdateRole(_ context.Context, targetID string, role rbac.AssignableRole) (*model.UserProfile, error) {
	f.lastTarget, f.lastRole = targetID, role
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &model.UserProfile{SubjectID: targetID, Email: "t@school.org", StoredRole: role.Role(), Role: role.Role()}, nil
}

func (f *fakeUserOps) SyncProfile(_ context.Context, p model.Principal) (*model.UserProfile, error) {
	if p.Email == "" {
		return nil, &service.ValidationError{Field: "email", Message: "email обязателен"}
	}
	return &model.UserProfile{SubjectID: p.SubjectID, Email: p.Email, Name: p.DisplayName, StoredRole: rbac.RoleUser, Role: rbac.RoleUser, CreatedAt: time.Now()}, nil
}

func (f *fakeUserOps) CurrentUser(_ context.Context, p model.Principal) (*model.UserProfile, error) {
	return &model.UserProfile{SubjectID: p.SubjectID, StoredRole: rbac.RoleUser, Role: rbac.RoleAdmin}, nil
}

// --- Вспомогательные функции ---

func newTestHandler(notes *fakeNoteOps, users *fakeUserOps, maxUpload int64) *APIHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAPIHandler(NewHealthHandler(nil, nil), notes, users, maxUpload, logger)
}

// testRouter повторяет маршруты сервера без middleware аутентификации.
func testRouter(h *APIHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/notes", h.ListNotes)
	r.Get("/api/notes/{id}", h.GetNote)
	r.Delete("/api/notes/{id}", h.DeleteNote)
	r.Post("/api/upload", h.UploadNote)
	r.Get("/api/users", h.ListUsers)
	r.Patch("/api/users", h.UpdateUserRole)
	r.Post("/api/users/sync", h.SyncProfile)
	r.Get("/api/users/me", h.CurrentUser)
	return r
}

func asUser(req *http.Request, sub, email string) *http.Request {
	claims := &middleware.AuthClaims{Subject: sub, Email: email, Name: "Alice"}
	return req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyClaims, claims))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// --- Конспекты ---

func TestListNotes_FilterFromQuery(t *testing.T) {
	notes := &fakeNoteOps{}
	router := testRouter(newTestHandler(notes, &fakeUserOps{}, 0))

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/notes?grade=10&subject=+math+&uploaderId=u1&q=%D0%90%D0%BB%D0%B3%D0%B5%D0%B1%D1%80%D0%B0", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.NoteFilter{Grade: "10", Subject: "math", UploaderID: "u1", SearchTerm: "Алгебра"}, notes.lastFilter)
	assert.JSONEq(t, `{"notes":[]}`, rec.Body.String())
}

func TestGetNote(t *testing.T) {
	notes := &fakeNoteOps{notes: []*model.Note{{ID: "n1", Title: "Алгебра", FileURL: "https://raw.example.com/a.pdf"}}}
	router := testRouter(newTestHandler(notes, &fakeUserOps{}, 0))

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/notes/n1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Note noteDTO `json:"note"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Алгебра", body.Note.Title)
	assert.Equal(t, "https://raw.example.com/a.pdf", body.Note.FileURL)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/notes/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)
}

func TestDeleteNote(t *testing.T) {
	tests := []struct {
		name       string
		deleteErr  error
		auth       bool
		wantStatus int
		wantCode   string
	}{
		{"успешно", nil, true, http.StatusOK, ""},
		{"без аутентификации", nil, false, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"чужой конспект", &service.ForbiddenError{Reason: "не владелец"}, true, http.StatusBadRequest, "FORBIDDEN"},
		{"не найден", service.ErrNotFound, true, http.StatusBadRequest, "NOT_FOUND"},
		{"ошибка базы", errors.New("db down"), true, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notes := &fakeNoteOps{notes: []*model.Note{{ID: "n1"}}, deleteErr: tt.deleteErr}
			router := testRouter(newTestHandler(notes, &fakeUserOps{}, 0))

			req := httptest.NewRequest(http.MethodDelete, "/api/notes/n1", nil)
			if tt.auth {
				req = asUser(req, "u1", "a@school.org")
			}
			rec := serve(router, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Error.Code)
			}
		})
	}
}

// --- Загрузка ---

func multipartBody(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func uploadFields() map[string]string {
	return map[string]string{
		"title":       "Алгебра 10",
		"description": "Конспект по квадратным уравнениям",
		"grade":       "10",
		"subject":     "math",
	}
}

func TestUploadNote_Created(t *testing.T) {
	notes := &fakeNoteOps{}
	router := testRouter(newTestHandler(notes, &fakeUserOps{}, 1<<20))

	body, ct := multipartBody(t, uploadFields(), "notes.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(router, asUser(req, "u1", "a@school.org"))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Алгебра 10", notes.lastInput.Title)
	assert.Equal(t, "notes.pdf", notes.lastInput.FileName)
	assert.Equal(t, []byte("%PDF-1.4"), notes.lastInput.Content)
	assert.Contains(t, rec.Body.String(), `"uploaderId":"u1"`)
}

func TestUploadNote_Errors(t *testing.T) {
	tests := []struct {
		name       string
		createErr  error
		noFile     bool
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"нет файла", nil, true, http.StatusBadRequest, "VALIDATION_ERROR", "file"},
		{"ошибка валидации", &service.ValidationError{Field: "title", Message: "слишком короткий"}, false, http.StatusBadRequest, "VALIDATION_ERROR", "title"},
		{"отказ хранилища", &service.UploadError{Detail: "422"}, false, http.StatusBadRequest, "UPLOAD_FAILED", ""},
		{"ошибка метаданных", errors.New("db down"), false, http.StatusInternalServerError, "INTERNAL_ERROR", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(newTestHandler(&fakeNoteOps{createErr: tt.createErr}, &fakeUserOps{}, 1<<20))

			fileName := "notes.pdf"
			if tt.noFile {
				fileName = ""
			}
			body, ct := multipartBody(t, uploadFields(), fileName, []byte("data"))
			req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := serve(router, asUser(req, "u1", "a@school.org"))

			assert.Equal(t, tt.wantStatus, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, e.Error.Code)
			assert.Equal(t, tt.wantField, e.Error.Field)
		})
	}
}

func TestUploadNote_StorageDetailNotExposed(t *testing.T) {
	detail := `{"message":"Bad credentials","token":"ghp_INTERNAL"}`
	router := testRouter(newTestHandler(&fakeNoteOps{createErr: &service.UploadError{Detail: detail}}, &fakeUserOps{}, 1<<20))

	body, ct := multipartBody(t, uploadFields(), "notes.pdf", []byte("data"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(router, asUser(req, "u1", "a@school.org"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "UPLOAD_FAILED", e.Error.Code)
	assert.Equal(t, "Хранилище файлов отклонило загрузку", e.Error.Message)
	assert.NotContains(t, rec.Body.String(), "ghp_INTERNAL")
	assert.NotContains(t, rec.Body.String(), "Bad credentials")
}

func TestUploadNote_TooLarge(t *testing.T) {
	notes := &fakeNoteOps{}
	router := testRouter(newTestHandler(notes, &fakeUserOps{}, 512))

	body, ct := multipartBody(t, uploadFields(), "big.pdf", bytes.Repeat([]byte("x"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(router, asUser(req, "u1", "a@school.org"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, notes.lastInput.Title, "сервис не должен вызываться")
}

// --- Пользователи ---

func TestUpdateUserRole(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		updateErr  error
		wantStatus int
		wantField  string
	}{
		{"назначение admin", `{"uid":"u2","role":"admin"}`, nil, http.StatusOK, ""},
		{"назначение user", `{"uid":"u2","role":"user"}`, nil, http.StatusOK, ""},
		{"owner не назначается", `{"uid":"u2","role":"owner"}`, nil, http.StatusBadRequest, "role"},
		{"неизвестная роль", `{"uid":"u2","role":"root"}`, nil, http.StatusBadRequest, "role"},
		{"без uid", `{"role":"user"}`, nil, http.StatusBadRequest, "uid"},
		{"некорректный JSON", `{`, nil, http.StatusBadRequest, ""},
		{"нарушение правила", `{"uid":"u2","role":"admin"}`, &service.ForbiddenError{Reason: "не в IAM"}, http.StatusForbidden, ""},
		{"профиль не найден", `{"uid":"u2","role":"user"}`, service.ErrNotFound, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUserOps{updateErr: tt.updateErr}
			router := testRouter(newTestHandler(&fakeNoteOps{}, users, 0))

			req := httptest.NewRequest(http.MethodPatch, "/api/users", strings.NewReader(tt.body))
			rec := serve(router, asUser(req, "admin-1", "admin@school.org"))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, decodeError(t, rec).Error.Field)
			}
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "u2", users.lastTarget)
				assert.Contains(t, rec.Body.String(), `"user":`)
			}
		})
	}
}

func TestListUsers(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	users := &fakeUserOps{users: []*model.UserProfile{
		{SubjectID: "u1", Name: "Alice", Email: "alice@school.org", StoredRole: rbac.RoleUser, Role: rbac.RoleAdmin, CreatedAt: created},
	}}
	router := testRouter(newTestHandler(&fakeNoteOps{}, users, 0))

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[{"uid":"u1","name":"Alice","email":"alice@school.org","role":"admin","storedRole":"user","createdAt":"2026-01-01T00:00:00Z"}]}`, rec.Body.String())
}

func TestSyncProfileAndMe(t *testing.T) {
	router := testRouter(newTestHandler(&fakeNoteOps{}, &fakeUserOps{}, 0))

	rec := serve(router, asUser(httptest.NewRequest(http.MethodPost, "/api/users/sync", nil), "u1", "a@school.org"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"profile":`)

	rec = serve(router, asUser(httptest.NewRequest(http.MethodPost, "/api/users/sync", nil), "u1", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decodeError(t, rec).Error.Field)

	rec = serve(router, asUser(httptest.NewRequest(http.MethodGet, "/api/users/me", nil), "u1", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":{"uid":"u1","name":"","role":"admin","storedRole":"user"}}`, rec.Body.String())

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Health ---

type stubChecker struct{ status string }

func (s stubChecker) CheckReady() (string, string) { return s.status, "" }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		pg, jwks   ReadinessChecker
		wantStatus int
		want       string
	}{
		{"всё доступно", stubChecker{"ok"}, stubChecker{"ok"}, http.StatusOK, "ok"},
		{"JWKS деградирован", stubChecker{"ok"}, stubChecker{"degraded"}, http.StatusOK, "degraded"},
		{"база недоступна", stubChecker{"fail"}, stubChecker{"ok"}, http.StatusServiceUnavailable, "fail"},
		{"checker не задан", nil, stubChecker{"ok"}, http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.pg, tt.jwks).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body healthReadyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
		})
	}
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil).HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"studynotes"`)
}

func TestWorse(t *testing.T) {
	assert.Equal(t, "ok", worse("ok", "ok"))
	assert.Equal(t, "degraded", worse("degraded", "ok"))
	assert.Equal(t, "fail", worse("degraded", "fail"))
	assert.Equal(t, "fail", worse("ok", "нечто"), "неизвестный статус считается fail")
}
