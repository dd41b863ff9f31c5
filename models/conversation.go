package models

import "time"

// Conversation - контейнер переписки между двумя участниками.
// Денормализованные поля lastMessage/lastMessageAt/lastSenderId
// обновляются отдельной записью после каждого сообщения.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	LastSenderID  string    `json:"lastSenderId"`
}

// HasParticipant проверяет участие пользователя в диалоге.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Counterpart возвращает второго участника диалога.
func (c *Conversation) Counterpart(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}
