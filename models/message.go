package models

import "time"

// MessageTypeText - единственный тип сообщений на данный момент.
const MessageTypeText = "text"

// Message представляет сообщение в диалоге. Append-only: сообщения не
// редактируются, флаг read после установки не сбрасывается.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Read           bool      `json:"read"`

	// Delivered живёт только в локальном виде: ставится, когда запись
	// подтверждена хранилищем или пришла эхом подписки. В документе
	// остаётся false.
	Delivered bool `json:"delivered"`

	// ClientID - клиентский идентификатор для сверки оптимистичной
	// локальной копии с эхом от подписки.
	ClientID string `json:"clientId,omitempty"`

	// Seq - локальный монотонный счётчик вставки. Нужен как tie-break
	// для сортировки, пока серверный timestamp не разрешён. В документ
	// не пишется.
	Seq int64 `json:"-"`
}
