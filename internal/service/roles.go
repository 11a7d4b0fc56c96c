// Пакет service — бизнес-логика сервиса конспектов.
// roles.go — определение эффективной роли и управление профилями.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/studynotes/internal/domain/model"
	"github.com/bigkaa/studynotes/internal/domain/rbac"
	"github.com/bigkaa/studynotes/internal/iam"
	"github.com/bigkaa/studynotes/internal/repository"
)

// MembershipChecker — проверка членства в IAM.
// Реализуется iam.Cache.
type MembershipChecker interface {
	IsMember(ctx context.Context, email string) bool
	AllMembers(ctx context.Context) map[string]struct{}
}

// RoleService — определение эффективной роли и операции над профилями.
// IAM — источник истины для admin, роль профиля — запасной вариант.
type RoleService struct {
	members  MembershipChecker
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

// NewRoleService создаёт сервис ролей.
func NewRoleService(members MembershipChecker, profiles repository.ProfileRepository, logger *slog.Logger) *RoleService {
	return &RoleService{
		members:  members,
		profiles: profiles,
		logger:   logger.With(slog.String("component", "role_service")),
	}
}

// ResolveRole вычисляет эффективную роль субъекта.
//
// Член IAM получает admin без обращения к записи профиля. Профиль читается
// только чтобы не понизить owner; ошибка чтения в этом случае не мешает
// выдать admin. Для остальных ошибка чтения профиля возвращается вызывающему
// (запрос отклоняется), отсутствие профиля даёт user.
func (s *RoleService) ResolveRole(ctx context.Context, subjectID, email string) (rbac.Role, error) {
	if s.members.IsMember(ctx, email) {
		p, err := s.profiles.GetByID(ctx, subjectID)
		switch {
		case err == nil:
			return rbac.Effective(&p.StoredRole, true), nil
		case !errors.Is(err, repository.ErrNotFound):
			s.logger.Warn("Профиль члена IAM недоступен, роль admin",
				slog.String("subject_id", subjectID),
				slog.String("error", err.Error()),
			)
		}
		return rbac.RoleAdmin, nil
	}

	p, err := s.profiles.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return rbac.Effective(nil, false), nil
		}
		return "", fmt.Errorf("чтение профиля %s: %w", subjectID, err)
	}
	return rbac.Effective(&p.StoredRole, false), nil
}

// SyncProfile создаёт профиль при первом входе или обновляет name/email.
// created_at и сохранённая роль не меняются. Role в ответе — эффективная.
func (s *RoleService) SyncProfile(ctx context.Context, principal model.Principal) (*model.UserProfile, error) {
	email := strings.TrimSpace(principal.Email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Message: "email обязателен для синхронизации профиля"}
	}
	name := strings.TrimSpace(principal.DisplayName)
	if name == "" {
		name = email
	}

	p, err := s.profiles.Sync(ctx, principal.SubjectID, name, email)
	if err != nil {
		return nil, fmt.Errorf("синхронизация профиля: %w", err)
	}
	p.Role = rbac.Effective(&p.StoredRole, s.members.IsMember(ctx, p.Email))

	s.logger.Debug("Профиль синхронизирован",
		slog.String("subject_id", p.SubjectID),
		slog.String("role", p.Role.String()),
	)
	return p, nil
}

// UpdateRole записывает новую роль целевого профиля.
// Проверки выполняются под блокировкой строки в той же транзакции, что и запись:
//   - owner не меняется никогда;
//   - admin назначается только члену IAM.
//
// Снимок IAM берётся до транзакции: его обновление может уйти в сеть,
// и держать в это время блокировку строки и соединение пула нельзя.
func (s *RoleService) UpdateRole(ctx context.Context, targetID string, role rbac.AssignableRole) (*model.UserProfile, error) {
	if strings.TrimSpace(targetID) == "" {
		return nil, &ValidationError{Field: "uid", Message: "uid обязателен"}
	}

	var members map[string]struct{}
	if role.IsAdmin() {
		members = s.members.AllMembers(ctx)
	}

	p, err := s.profiles.UpdateRole(ctx, targetID, func(current *model.UserProfile) (rbac.AssignableRole, error) {
		if current.StoredRole == rbac.RoleOwner {
			return rbac.AssignableRole{}, &ForbiddenError{Reason: "роль владельца нельзя изменить"}
		}
		if role.IsAdmin() && !inSnapshot(members, current.Email) {
			return rbac.AssignableRole{}, &ForbiddenError{Reason: "роль admin выдаётся только участникам IAM"}
		}
		return role, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, ErrForbidden) {
			s.logger.Warn("Изменение роли отклонено",
				slog.String("target_id", targetID),
				slog.String("requested_role", role.Role().String()),
				slog.String("reason", err.Error()),
			)
			return nil, err
		}
		return nil, fmt.Errorf("обновление роли: %w", err)
	}

	p.Role = rbac.Effective(&p.StoredRole, s.members.IsMember(ctx, p.Email))
	s.logger.Info("Роль пользователя изменена",
		slog.String("target_id", targetID),
		slog.String("stored_role", p.StoredRole.String()),
		slog.String("effective_role", p.Role.String()),
	)
	return p, nil
}

func inSnapshot(members map[string]struct{}, email string) bool {
	email = iam.NormalizeEmail(email)
	if email == "" {
		return false
	}
	_, ok := members[email]
	return ok
}

// ListUsers возвращает профили (новые первыми) с эффективными ролями.
// Все роли вычисляются по одному снимку IAM.
func (s *RoleService) ListUsers(ctx context.Context) ([]*model.UserProfile, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка профилей: %w", err)
	}

	members := s.members.AllMembers(ctx)
	for _, p := range profiles {
		_, isMember := members[iam.NormalizeEmail(p.Email)]
		p.Role = rbac.Effective(&p.StoredRole, isMember)
	}
	return profiles, nil
}

// CurrentUser возвращает профиль вызывающего с эффективной ролью.
// Если профиль ещё не создан, возвращается представление из токена.
func (s *RoleService) CurrentUser(ctx context.Context, principal model.Principal) (*model.UserProfile, error) {
	isMember := s.members.IsMember(ctx, principal.Email)

	p, err := s.profiles.GetByID(ctx, principal.SubjectID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("чтение профиля %s: %w", principal.SubjectID, err)
		}
		return &model.UserProfile{
			SubjectID:  principal.SubjectID,
			Name:       principal.DisplayName,
			Email:      principal.Email,
			StoredRole: rbac.RoleUser,
			Role:       rbac.Effective(nil, isMember),
		}, nil
	}

	p.Role = rbac.Effective(&p.StoredRole, isMember)
	return p, nil
}
