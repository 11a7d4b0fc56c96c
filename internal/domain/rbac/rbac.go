// Пакет rbac — логика определения эффективной роли пользователя.
// Двухуровневая авторизация: членство в IAM (источник истины для admin)
// плюс роль, сохранённая в профиле.
// Правила: член IAM получает admin, owner не понижается никогда,
// роль owner нельзя назначить ни через какой путь обновления.
package rbac

import "fmt"

// Role — роль пользователя. Закрытое множество: owner, admin, user.
type Role string

// Роли в порядке убывания привилегий.
const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// String реализует fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsPrivileged сообщает, даёт ли роль права администратора.
func (r Role) IsPrivileged() bool {
	return r == RoleOwner || r == RoleAdmin
}

// ParseRole разбирает роль, прочитанную из хранилища.
// Неизвестное значение возвращает RoleUser вместе с ошибкой.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleUser:
		return Role(s), nil
	default:
		return RoleUser, fmt.Errorf("неизвестная роль %q", s)
	}
}

// AssignableRole — роль, которую разрешено записать через обновление.
// Поле скрыто: значение создаётся только конструкторами ниже,
// ни один из которых не возвращает owner.
type AssignableRole struct {
	role Role
}

// AssignUser возвращает назначаемую роль user.
func AssignUser() AssignableRole {
	return AssignableRole{role: RoleUser}
}

// AssignAdmin возвращает назначаемую роль admin.
func AssignAdmin() AssignableRole {
	return AssignableRole{role: RoleAdmin}
}

// ParseAssignableRole принимает ровно "admin" или "user".
func ParseAssignableRole(s string) (AssignableRole, error) {
	switch Role(s) {
	case RoleAdmin:
		return AssignAdmin(), nil
	case RoleUser:
		return AssignUser(), nil
	default:
		return AssignableRole{}, fmt.Errorf("некорректная роль %q: допустимые значения admin, user", s)
	}
}

// Role возвращает роль для записи в хранилище.
// Нулевое значение AssignableRole трактуется как user.
func (a AssignableRole) Role() Role {
	if a.role == "" {
		return RoleUser
	}
	return a.role
}

// IsAdmin сообщает, запрашивается ли повышение до admin.
func (a AssignableRole) IsAdmin() bool {
	return a.role == RoleAdmin
}

// Effective вычисляет итоговую роль.
// stored — роль из профиля (nil, если профиля нет).
// iamMember — состоит ли email в текущем снимке IAM.
// owner остаётся owner независимо от IAM.
func Effective(stored *Role, iamMember bool) Role {
	if stored != nil && *stored == RoleOwner {
		return RoleOwner
	}
	if iamMember {
		return RoleAdmin
	}
	if stored == nil {
		return RoleUser
	}
	return *stored
}
