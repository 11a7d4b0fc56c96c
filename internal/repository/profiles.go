package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/studynotes/internal/domain/model"
	"github.com/bigkaa/studynotes/internal/domain/rbac"
)

// RoleMutator решает, какую роль записать, глядя на текущий профиль.
// Вызывается под блокировкой строки; ошибка отменяет запись.
type RoleMutator func(current *model.UserProfile) (rbac.AssignableRole, error)

// ProfileRepository — интерфейс для таблицы user_profiles.
type ProfileRepository interface {
	// GetByID возвращает профиль по subject_id или ErrNotFound.
	GetByID(ctx context.Context, subjectID string) (*model.UserProfile, error)
	// Sync создаёт профиль (роль user) или обновляет name/email существующего.
	// created_at и роль существующего профиля не меняются.
	Sync(ctx context.Context, subjectID, name, email string) (*model.UserProfile, error)
	// UpdateRole атомарно читает профиль с блокировкой (FOR UPDATE),
	// вызывает mutate и записывает результат в той же транзакции.
	UpdateRole(ctx context.Context, subjectID string, mutate RoleMutator) (*model.UserProfile, error)
	// List возвращает все профили, новые первыми.
	List(ctx context.Context) ([]*model.UserProfile, error)
}

// profileRepo — реализация ProfileRepository.
type profileRepo struct {
	db DBTX
}

// NewProfileRepository создаёт репозиторий профилей.
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

const profileColumns = `subject_id, name, email, role, created_at, updated_at`

func (r *profileRepo) GetByID(ctx context.Context, subjectID string) (*model.UserProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_profiles WHERE subject_id = $1`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, subjectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return p, nil
}

func (r *profileRepo) Sync(ctx context.Context, subjectID, name, email string) (*model.UserProfile, error) {
	query := fmt.Sprintf(`
		INSERT INTO user_profiles (subject_id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email
		RETURNING %s`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, subjectID, name, email))
	if err != nil {
		return nil, fmt.Errorf("ошибка синхронизации профиля: %w", err)
	}
	return p, nil
}

func (r *profileRepo) UpdateRole(ctx context.Context, subjectID string, mutate RoleMutator) (*model.UserProfile, error) {
	var updated *model.UserProfile

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`SELECT %s FROM user_profiles WHERE subject_id = $1 FOR UPDATE`, profileColumns)
		current, err := scanProfile(tx.QueryRow(ctx, query, subjectID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка блокировки профиля: %w", err)
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}

		update := fmt.Sprintf(`
			UPDATE user_profiles SET role = $2
			WHERE subject_id = $1
			RETURNING %s`, profileColumns)
		updated, err = scanProfile(tx.QueryRow(ctx, update, subjectID, string(next.Role())))
		if err != nil {
			return fmt.Errorf("ошибка обновления роли: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *profileRepo) List(ctx context.Context) ([]*model.UserProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_profiles ORDER BY created_at DESC`, profileColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка профилей: %w", err)
	}
	defer rows.Close()

	var result []*model.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования профиля: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// scanProfile читает строку user_profiles в модель.
// Неизвестная роль в базе читается как user.
func scanProfile(row pgx.Row) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	var role string
	if err := row.Scan(&p.SubjectID, &p.Name, &p.Email, &role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.StoredRole, _ = rbac.ParseRole(role)
	p.Role = p.StoredRole
	return p, nil
}
