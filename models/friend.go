package models

import "time"

// Статусы заявки в друзья. Заявка терминальна: из accepted/rejected
// обратно в pending не возвращается.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// FriendRequest - заявка в друзья от одного пользователя к другому.
// Для пары {A,B} одновременно допускается не более одной pending заявки
// (проверка на уровне приложения, хранилище это не гарантирует).
type FriendRequest struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"fromUserId"`
	ToUserID   string    `json:"toUserId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Friendship - подтверждённая дружба между двумя пользователями.
// Создаётся только при принятии заявки, удаляется явным removeFriend.
type Friendship struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Counterpart возвращает второго участника дружбы.
func (f *Friendship) Counterpart(userID string) string {
	for _, p := range f.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// RelationshipStatus - отношение текущего пользователя к собеседнику,
// производная проекция от коллекций friendRequests и friends.
type RelationshipStatus string

const (
	RelationNone            RelationshipStatus = "none"
	RelationRequestSent     RelationshipStatus = "request-sent"
	RelationRequestReceived RelationshipStatus = "request-received"
	RelationFriend          RelationshipStatus = "friend"
)

// PairKey возвращает детерминированный ключ неупорядоченной пары.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
