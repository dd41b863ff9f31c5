package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"pulseup/docstore"
	"pulseup/models"
)

type WsNotify struct {
	NotifyType string `json:"notify_type"`
	Message    string `json:"message"`
}

// SendWsNotify - отправка уведомления через WebSocket
func SendWsNotify(userID string, notifyType string, message string) error {
	if len(notifyType) == 0 {
		notifyType = "info"
	}
	if len(message) == 0 {
		return nil
	}
	if len(message) > 100 {
		message = message[:100] + "..."
	}
	notify := WsNotify{NotifyType: notifyType, Message: message}
	jsonData, err := json.Marshal(notify)
	if err != nil {
		return err
	}
	GlobalWSConnManager.Send(userID, jsonData)
	return nil
}

// Notifier подписывается на события новых сообщений и доводит их до
// получателей: push в открытые WebSocket-соединения и событие в
// RabbitMQ для внешних алертов. Сбой доставки не влияет на сам чат.
type Notifier struct {
	store *docstore.Store
}

func NewNotifier(store *docstore.Store) *Notifier {
	return &Notifier{store: store}
}

// Start запускает прослушивание коллекции сообщений.
func (n *Notifier) Start(ctx context.Context) {
	sub := n.store.Subscribe(MessagesCollection)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if ev.Type != docstore.ChangeAdded {
					continue
				}
				n.handleMessage(ctx, ev)
			}
		}
	}()
	log.Println("Message notifier started")
}

func (n *Notifier) handleMessage(ctx context.Context, ev docstore.ChangeEvent) {
	var msg models.Message
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		log.Printf("notifier: malformed message event %s: %v", ev.ID, err)
		return
	}
	msg.ID = ev.ID

	var conv models.Conversation
	err := n.store.Get(ctx, ConversationsCollection, msg.ConversationID, &conv)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			log.Printf("notifier: failed to load conversation %s: %v", msg.ConversationID, err)
		}
		return
	}

	for _, userID := range conv.Participants {
		if userID == msg.SenderID {
			continue
		}
		// Получателям с живым соединением хватает WebSocket-push;
		// событие в RabbitMQ уходит только для офлайн-доставки
		if GlobalWSConnManager.Connected(userID) {
			if err := SendWsNotify(userID, "message", msg.Content); err != nil {
				log.Printf("notifier: ws push to %s failed: %v", userID, err)
			}
			continue
		}
		event := ChatEvent{
			UserID:         userID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Content:        msg.Content,
			CreatedAt:      msg.Timestamp,
		}
		if err := PublishChatEvent(ctx, event); err != nil {
			// RabbitMQ опционален, чат без него живёт
			log.Printf("notifier: amqp publish for %s failed: %v", userID, err)
		}
	}
}
