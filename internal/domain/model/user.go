package model

import (
	"strconv"
	"time"

	"course-access-bot/internal/domain"
)

// User is a Telegram user known to the bot. Users are never deleted.
type User struct {
	TelegramID   int64
	Username     string
	FirstName    string
	IsApprover   bool
	RegisteredAt time.Time
	LastActiveAt time.Time
}

func NewUser(tgID int64, username, firstName string, now time.Time) (*User, error) {
	if tgID <= 0 {
		return nil, domain.ErrValidation
	}
	return &User{
		TelegramID:   tgID,
		Username:     username,
		FirstName:    firstName,
		RegisteredAt: now,
		LastActiveAt: now,
	}, nil
}

func (u *User) Touch(now time.Time) { u.LastActiveAt = now }

// DisplayName is what approvers see next to a request.
func (u *User) DisplayName() string {
	return DisplayName(u.TelegramID, u.Username, u.FirstName)
}

func DisplayName(tgID int64, username, firstName string) string {
	switch {
	case username != "":
		return "@" + username
	case firstName != "":
		return firstName
	default:
		return strconv.FormatInt(tgID, 10)
	}
}
