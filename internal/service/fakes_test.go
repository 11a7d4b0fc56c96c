package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bigkaa/studynotes/internal/domain/model"
	"github.com/bigkaa/studynotes/internal/domain/rbac"
	"github.com/bigkaa/studynotes/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMembers — изменяемое множество членов IAM.
type fakeMembers struct {
	mu      sync.Mutex
	members map[string]struct{}
	calls   int
	// lockHeld сообщает, держит ли вызывающий блокировку строки профиля.
	lockHeld     func() bool
	callsUnderLock int
}

func newFakeMembers(emails ...string) *fakeMembers {
	f := &fakeMembers{members: map[string]struct{}{}}
	for _, e := range emails {
		f.members[strings.ToLower(e)] = struct{}{}
	}
	return f
}

func (f *fakeMembers) set(emails ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = map[string]struct{}{}
	for _, e := range emails {
		f.members[strings.ToLower(e)] = struct{}{}
	}
}

func (f *fakeMembers) IsMember(_ context.Context, email string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.noteLock()
	if strings.TrimSpace(email) == "" {
		return false
	}
	_, ok := f.members[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

func (f *fakeMembers) AllMembers(context.Context) map[string]struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noteLock()
	out := make(map[string]struct{}, len(f.members))
	for m := range f.members {
		out[m] = struct{}{}
	}
	return out
}

func (f *fakeMembers) noteLock() {
	if f.lockHeld != nil && f.lockHeld() {
		f.callsUnderLock++
	}
}

// fakeProfiles — in-memory репозиторий профилей с теми же гарантиями,
// что и PostgreSQL-реализация (сериализация UpdateRole).
type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*model.UserProfile
	now      time.Time
	getErr   error
	writes   int
	// inTx выставлен, пока mutate выполняется под блокировкой строки.
	inTx atomic.Bool
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		profiles: map[string]*model.UserProfile{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeProfiles) put(p model.UserProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Role = p.StoredRole
	f.profiles[p.SubjectID] = &p
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) Sync(_ context.Context, id, name, email string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.now = f.now.Add(time.Second)
	p, ok := f.profiles[id]
	if !ok {
		p = &model.UserProfile{SubjectID: id, StoredRole: rbac.RoleUser, CreatedAt: f.now}
		f.profiles[id] = p
	}
	p.Name, p.Email, p.UpdatedAt = name, email, f.now
	p.Role = p.StoredRole
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) UpdateRole(_ context.Context, id string, mutate repository.RoleMutator) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	f.inTx.Store(true)
	next, err := mutate(&cp)
	f.inTx.Store(false)
	if err != nil {
		return nil, err
	}
	f.writes++
	p.StoredRole = next.Role()
	p.Role = p.StoredRole
	out := *p
	return &out, nil
}

func (f *fakeProfiles) List(context.Context) ([]*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.UserProfile, 0, len(f.profiles))
	for _, p := range f.profiles {
		cp := *p
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *model.UserProfile) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// fakeNotes — in-memory репозиторий конспектов.
// Порядок List при фильтрах — порядок вставки, как у базы без ORDER BY.
type fakeNotes struct {
	mu        sync.Mutex
	notes     []*model.Note
	createErr error
	gets      int
}

func (f *fakeNotes) Create(_ context.Context, n *model.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *n
	f.notes = append(f.notes, &cp)
	return nil
}

func (f *fakeNotes) GetByID(_ context.Context, id string) (*model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	for _, n := range f.notes {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeNotes) List(_ context.Context, filter model.NoteFilter) ([]*model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Note
	for _, n := range f.notes {
		if filter.Grade != "" && n.Grade != filter.Grade ||
			filter.Subject != "" && n.Subject != filter.Subject ||
			filter.UploaderID != "" && n.UploaderID != filter.UploaderID {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	if !filter.HasEqualityFilters() {
		slices.SortStableFunc(out, func(a, b *model.Note) int {
			return b.UploadedAt.Compare(a.UploadedAt)
		})
	}
	return out, nil
}

func (f *fakeNotes) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notes {
		if n.ID == id {
			f.notes = slices.Delete(f.notes, i, i+1)
			return nil
		}
	}
	return repository.ErrNotFound
}

// mockFileHost — testify mock для FileHost.
type mockFileHost struct {
	mock.Mock
}

func (m *mockFileHost) CommitFile(ctx context.Context, path string, content []byte, message string) error {
	args := m.Called(ctx, path, content, message)
	return args.Error(0)
}

func (m *mockFileHost) RawURL(path string) string {
	return "https://raw.example.com/school/notes/main/" + path
}
