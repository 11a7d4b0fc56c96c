package githost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(Config{
		Token:  "ghp_test",
		Owner:  "school",
		Repo:   "notes",
		Branch: "main",
		APIURL: server.URL,
		RawURL: "https://raw.githubusercontent.com",
	}, server.Client(), testLogger())
}

func TestClient_CommitFile(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotReq  commitRequest
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("метод = %s, ожидали PUT", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("некорректное тело запроса: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"content":{"path":"x"}}`))
	})

	content := []byte("%PDF-1.4 конспект")
	err := c.CommitFile(context.Background(), "grade-10/subject-math/1-a.pdf", content, "feat(notes): add Алгебра")
	if err != nil {
		t.Fatalf("CommitFile() ошибка: %v", err)
	}

	if gotPath != "/repos/school/notes/contents/grade-10/subject-math/1-a.pdf" {
		t.Errorf("путь = %q", gotPath)
	}
	if gotAuth != "Bearer ghp_test" {
		t.Errorf("Authorization = %q, ожидали Bearer ghp_test", gotAuth)
	}
	if gotReq.Branch != "main" {
		t.Errorf("branch = %q, ожидали main", gotReq.Branch)
	}
	if gotReq.Message != "feat(notes): add Алгебра" {
		t.Errorf("message = %q", gotReq.Message)
	}
	decoded, err := base64.StdEncoding.DecodeString(gotReq.Content)
	if err != nil || string(decoded) != string(content) {
		t.Errorf("content не совпадает после base64: %q", decoded)
	}
}

func TestClient_CommitFile_ErrorBodyPropagated(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invalid request.\n\n\"sha\" wasn't supplied."}`))
	})

	err := c.CommitFile(context.Background(), "a/b.pdf", []byte("x"), "m")
	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("ошибка = %v, ожидали *UploadError", err)
	}
	if upErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d, ожидали 422", upErr.StatusCode)
	}
	if !strings.Contains(upErr.Body, "sha") {
		t.Errorf("Body = %q, ожидали тело ответа GitHub", upErr.Body)
	}
}

func TestClient_CommitFile_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := New(Config{Token: "t", Owner: "o", Repo: "r", APIURL: url}, nil, testLogger())
	err := c.CommitFile(context.Background(), "a.pdf", []byte("x"), "m")
	if err == nil {
		t.Fatal("ожидали ошибку сети")
	}
	var upErr *UploadError
	if errors.As(err, &upErr) {
		t.Error("сетевая ошибка не должна быть UploadError")
	}
}

func TestClient_RawURL(t *testing.T) {
	c := New(Config{
		Owner: "school", Repo: "notes", Branch: "main",
		RawURL: "https://raw.githubusercontent.com/",
	}, nil, testLogger())

	got := c.RawURL("grade-10/subject-math/1700000000000-my#notes.pdf")
	want := "https://raw.githubusercontent.com/school/notes/main/grade-10/subject-math/1700000000000-my%23notes.pdf"
	if got != want {
		t.Errorf("RawURL() = %q, ожидали %q", got, want)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"10", "10"},
		{"Grade 10", "grade-10"},
		{"  Computer Science!! ", "computer-science"},
		{"Физика", "general"},
		{"", "general"},
		{"---", "general"},
		{"A+B  C", "a-b-c"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, ожидали %q", tt.input, got, tt.want)
		}
	}
}

func TestBuildPath(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	tests := []struct {
		name     string
		grade    string
		subject  string
		fileName string
		want     string
	}{
		{"обычный файл", "10", "Math", "notes.pdf", "grade-10/subject-math/1700000000123-notes.pdf"},
		{"пробелы в имени", "11", "Physics", "my  final\tnotes.pdf", "grade-11/subject-physics/1700000000123-my-final-notes.pdf"},
		{"разделители путей", "9", "Bio", "../../etc/passwd", "grade-9/subject-bio/1700000000123-....etcpasswd"},
		{"пустые значения", "", "", "", "grade-general/subject-general/1700000000123-file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildPath(tt.grade, tt.subject, tt.fileName, now); got != tt.want {
				t.Errorf("BuildPath() = %q, ожидали %q", got, tt.want)
			}
		})
	}
}
