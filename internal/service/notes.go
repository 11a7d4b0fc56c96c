// notes.go — сервис конспектов: выборка, получение, удаление, загрузка.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bigkaa/studynotes/internal/domain/model"
	"github.com/bigkaa/studynotes/internal/repository"
)

// unknownUploader подставляется, если имя загрузившего не сохранено.
const unknownUploader = "Unknown"

// FileHost — удалённое хранилище файлов конспектов.
// Реализуется githost.Client.
type FileHost interface {
	CommitFile(ctx context.Context, path string, content []byte, message string) error
	RawURL(path string) string
}

// NoteService — операции над конспектами.
type NoteService struct {
	notes  repository.NoteRepository
	files  FileHost
	cache  *NoteCache
	now    func() time.Time
	logger *slog.Logger
}

// NewNoteService создаёт сервис конспектов. cache может быть nil.
func NewNoteService(
	notes repository.NoteRepository,
	files FileHost,
	cache *NoteCache,
	logger *slog.Logger,
) *NoteService {
	if cache == nil {
		cache = NewNoteCache(0, 0)
	}
	return &NoteService{
		notes:  notes,
		files:  files,
		cache:  cache,
		now:    time.Now,
		logger: logger.With(slog.String("component", "note_service")),
	}
}

// ListNotes возвращает конспекты по фильтру, новые первыми.
//
// Без фильтров на равенство порядок задаёт база. С фильтрами выборка
// сортируется здесь (стабильно, по uploaded_at DESC). SearchTerm
// применяется последним: подстрока без учёта регистра в title или description.
func (s *NoteService) ListNotes(ctx context.Context, filter model.NoteFilter) ([]*model.Note, error) {
	notes, err := s.notes.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("получение списка конспектов: %w", err)
	}

	if filter.HasEqualityFilters() {
		slices.SortStableFunc(notes, func(a, b *model.Note) int {
			return b.UploadedAt.Compare(a.UploadedAt)
		})
	}

	if term := strings.ToLower(strings.TrimSpace(filter.SearchTerm)); term != "" {
		notes = slices.DeleteFunc(notes, func(n *model.Note) bool {
			return !strings.Contains(strings.ToLower(n.Title), term) &&
				!strings.Contains(strings.ToLower(n.Description), term)
		})
	}

	for _, n := range notes {
		normalizeNote(n)
	}
	if notes == nil {
		notes = []*model.Note{}
	}
	return notes, nil
}

// GetNote возвращает конспект по ID или ErrNotFound.
func (s *NoteService) GetNote(ctx context.Context, id string) (*model.Note, error) {
	if n, ok := s.cache.Get(id); ok {
		return n, nil
	}

	n, err := s.notes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение конспекта %s: %w", id, err)
	}
	normalizeNote(n)
	s.cache.Add(n)
	return n, nil
}

// DeleteNote удаляет метаданные конспекта, если вызывающий его загрузил.
// Файл в хранилище остаётся. Возвращает удалённый конспект.
func (s *NoteService) DeleteNote(ctx context.Context, id, callerID string) (*model.Note, error) {
	n, err := s.notes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение конспекта %s: %w", id, err)
	}

	if n.UploaderID != callerID {
		s.logger.Warn("Попытка удалить чужой конспект",
			slog.String("note_id", id),
			slog.String("caller_id", callerID),
		)
		return nil, &ForbiddenError{Reason: "удалить можно только свой конспект"}
	}

	if err := s.notes.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("удаление конспекта %s: %w", id, err)
	}
	s.cache.Remove(id)

	s.logger.Info("Конспект удалён",
		slog.String("note_id", id),
		slog.String("file_path", n.FilePath),
	)
	normalizeNote(n)
	return n, nil
}

func normalizeNote(n *model.Note) {
	if n.UploaderName == "" {
		n.UploaderName = unknownUploader
	}
}
