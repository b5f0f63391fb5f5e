package services

import "github.com/pokopiemy/match-system/models"

// IsOrganizer решает, считается ли пользователь организатором матча.
//
// Сначала проверяется явная ссылка organizer_user_id. Для матчей без неё
// (созданных до её появления или импортированных) остаётся старое правило:
// совпадение телефона ИЛИ email с контактами организатора в матче.
// Уникальность контактов не гарантируется: два пользователя с одним
// телефоном оба будут считаться организаторами (поведение сохранено
// намеренно, см. DESIGN.md).
func IsOrganizer(user *models.User, match *models.Match) bool {
	if user == nil || match == nil {
		return false
	}
	if match.OrganizerUserID != nil {
		return *match.OrganizerUserID == user.ID
	}
	if match.OrganizerPhone != nil && *match.OrganizerPhone != "" &&
		user.Phone != nil && *user.Phone == *match.OrganizerPhone {
		return true
	}
	if match.OrganizerEmail != nil && *match.OrganizerEmail != "" &&
		user.Email == *match.OrganizerEmail {
		return true
	}
	return false
}
