package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/studynotes/internal/domain/model"
)

// NoteRepository — интерфейс CRUD для таблицы notes.
type NoteRepository interface {
	// Create сохраняет метаданные конспекта.
	Create(ctx context.Context, n *model.Note) error
	// GetByID возвращает конспект по ID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Note, error)
	// List применяет фильтры на равенство (grade, subject, uploader_id).
	// Сортировка по uploaded_at DESC выполняется в базе только без фильтров.
	// SearchTerm здесь не применяется.
	List(ctx context.Context, filter model.NoteFilter) ([]*model.Note, error)
	// Delete удаляет метаданные конспекта или возвращает ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// noteRepo — реализация NoteRepository.
type noteRepo struct {
	db DBTX
}

// NewNoteRepository создаёт репозиторий конспектов.
func NewNoteRepository(db DBTX) NoteRepository {
	return &noteRepo{db: db}
}

const noteColumns = `id, title, description, grade, subject, file_path, file_url,
	uploader_id, uploader_name, uploaded_at`

func (r *noteRepo) Create(ctx context.Context, n *model.Note) error {
	query := `
		INSERT INTO notes (id, title, description, grade, subject, file_path, file_url,
			uploader_id, uploader_name, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		n.ID, n.Title, n.Description, n.Grade, n.Subject, n.FilePath, n.FileURL,
		n.UploaderID, n.UploaderName, n.UploadedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания конспекта: %w", err)
	}
	return nil
}

func (r *noteRepo) GetByID(ctx context.Context, id string) (*model.Note, error) {
	// Не-UUID не может существовать в таблице
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query := fmt.Sprintf(`SELECT %s FROM notes WHERE id = $1`, noteColumns)
	n, err := scanNote(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения конспекта: %w", err)
	}
	return n, nil
}

func (r *noteRepo) List(ctx context.Context, filter model.NoteFilter) ([]*model.Note, error) {
	var (
		conds []string
		args  []any
	)
	addCond := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addCond("grade", filter.Grade)
	addCond("subject", filter.Subject)
	addCond("uploader_id", filter.UploaderID)

	query := fmt.Sprintf(`SELECT %s FROM notes`, noteColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	} else {
		query += " ORDER BY uploaded_at DESC"
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка конспектов: %w", err)
	}
	defer rows.Close()

	var result []*model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования конспекта: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *noteRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления конспекта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanNote(row pgx.Row) (*model.Note, error) {
	n := &model.Note{}
	err := row.Scan(
		&n.ID, &n.Title, &n.Description, &n.Grade, &n.Subject, &n.FilePath, &n.FileURL,
		&n.UploaderID, &n.UploaderName, &n.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}
