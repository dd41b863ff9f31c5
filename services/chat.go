package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulseup/docstore"
	"pulseup/models"
)

// TypingTTL - окно неактивности, после которого маркер "печатает"
// снимается локальным таймером без подтверждения от хранилища.
const TypingTTL = 2000 * time.Millisecond

// WelcomeMessage формирует текст приветственного сообщения нового
// диалога.
func WelcomeMessage(friendName string) string {
	if friendName == "" {
		friendName = "User"
	}
	return fmt.Sprintf("Talk to your new friend %s! It will be an awesome experience! 🎉", friendName)
}

// ChatService поддерживает локальное представление открытого диалога:
// упорядоченный список сообщений без дублей, живую подписку, маркер
// набора текста и учёт прочитанного.
type ChatService struct {
	store *docstore.Store

	mu       sync.Mutex
	messages map[string][]models.Message
	seen     map[string]map[string]struct{}
	seq      int64

	// Одна активная подписка на сообщения на сессию пользователя.
	// При переключении диалога старая гасится сразу после установки
	// новой.
	sessions map[string]*chatSession

	typing    map[string]map[string]*time.Timer
	typingTTL time.Duration
}

// chatSession - живая подписка одного пользователя на его открытый
// диалог.
type chatSession struct {
	convID string
	sub    *docstore.Subscription
	done   chan struct{}
}

func NewChatService(store *docstore.Store) *ChatService {
	return &ChatService{
		store:     store,
		messages:  make(map[string][]models.Message),
		seen:      make(map[string]map[string]struct{}),
		sessions:  make(map[string]*chatSession),
		typing:    make(map[string]map[string]*time.Timer),
		typingTTL: TypingTTL,
	}
}

// Subscribe открывает живую подписку пользователя на сообщения его
// открытого диалога. Повторная подписка на тот же диалог - no-op, на
// другой - новая подписка встаёт на место старой под одним локом,
// после чего старая гасится. Сессии разных пользователей независимы.
func (cs *ChatService) Subscribe(userID, conversationID string) {
	cs.mu.Lock()
	prev := cs.sessions[userID]
	if prev != nil && prev.convID == conversationID {
		cs.mu.Unlock()
		return
	}
	sub := cs.store.Subscribe(MessagesCollection)
	done := make(chan struct{})
	cs.sessions[userID] = &chatSession{convID: conversationID, sub: sub, done: done}
	cs.mu.Unlock()

	go cs.consume(conversationID, sub, done)

	// Старая подписка гасится уже после установки новой: окно, в
	// котором конкурентный Subscribe мог бы осиротить её, закрыто
	if prev != nil {
		prev.teardown()
	}
}

// Unsubscribe явно снимает активную подписку пользователя.
func (cs *ChatService) Unsubscribe(userID string) {
	cs.mu.Lock()
	prev := cs.sessions[userID]
	delete(cs.sessions, userID)
	cs.mu.Unlock()

	if prev != nil {
		prev.teardown()
	}
}

// teardown закрывает подписку и дожидается выхода потребителя.
func (s *chatSession) teardown() {
	s.sub.Unsubscribe()
	<-s.done
}

// consume читает события подписки и применяет их к локальному виду.
func (cs *ChatService) consume(conversationID string, sub *docstore.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.Events() {
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			log.Printf("chat: malformed message event %s: %v", ev.ID, err)
			continue
		}
		msg.ID = ev.ID
		if msg.ConversationID != conversationID {
			continue
		}
		switch ev.Type {
		case docstore.ChangeAdded:
			cs.AppendIncoming(msg)
		case docstore.ChangeModified:
			cs.applyModified(msg)
		}
	}
}

// AppendIncoming применяет событие added. Идемпотентно по id:
// повторная доставка того же сообщения (например, после переподключения
// подписки) не создаёт дубль. Эхо собственной оптимистичной записи
// сверяется по clientId и разрешается на месте, без второй строки.
func (cs *ChatService) AppendIncoming(msg models.Message) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	convID := msg.ConversationID
	if cs.seen[convID] == nil {
		cs.seen[convID] = make(map[string]struct{})
	}
	if _, ok := cs.seen[convID][msg.ID]; ok {
		return
	}

	if msg.ClientID != "" {
		list := cs.messages[convID]
		for i := range list {
			if list[i].ClientID == msg.ClientID {
				// Серверное время занимает место локальной метки,
				// порядок вставки сохраняется через Seq
				seq := list[i].Seq
				list[i] = msg
				list[i].Seq = seq
				list[i].Delivered = true
				cs.seen[convID][msg.ID] = struct{}{}
				return
			}
		}
	}

	cs.seq++
	msg.Seq = cs.seq
	msg.Delivered = true
	cs.messages[convID] = append(cs.messages[convID], msg)
	cs.seen[convID][msg.ID] = struct{}{}
}

// applyModified обновляет уже известное сообщение (флаг прочтения).
// Сброс read обратно в false игнорируется: флаг односторонний.
func (cs *ChatService) applyModified(msg models.Message) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	list := cs.messages[msg.ConversationID]
	for i := range list {
		if list[i].ID == msg.ID {
			if msg.Read {
				list[i].Read = true
			}
			list[i].Delivered = msg.Delivered || list[i].Delivered
			return
		}
	}
}

// SendMessage пишет сообщение и вторым шагом обновляет сводку диалога.
// Локальная копия появляется сразу (оптимистично), серверная метка
// времени подставляется при записи и сверяется по clientId на эхе.
func (cs *ChatService) SendMessage(ctx context.Context, conversationID, senderID, content string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("empty message content")
	}

	clientID := uuid.NewString()

	cs.mu.Lock()
	cs.seq++
	optimistic := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           models.MessageTypeText,
		ClientID:       clientID,
		Seq:            cs.seq,
	}
	cs.messages[conversationID] = append(cs.messages[conversationID], optimistic)
	cs.mu.Unlock()

	msg := optimistic
	msg.Timestamp = time.Now().UTC()
	id, err := cs.store.Create(ctx, MessagesCollection, &msg)
	if err != nil {
		cs.dropPending(conversationID, clientID)
		return nil, remoteErr("send message", err)
	}
	msg.ID = id
	msg.Delivered = true

	// Эхо подписки могло прийти раньше нас; AppendIncoming разрешит
	// оптимистичную запись ровно один раз
	cs.AppendIncoming(msg)

	if err := cs.touchConversation(ctx, conversationID, content, senderID, msg.Timestamp); err != nil {
		// Сообщение уже записано, сводка разъедется до следующего
		// refetch - документированное промежуточное состояние
		return &msg, err
	}
	return &msg, nil
}

// touchConversation обновляет денормализованную сводку диалога.
func (cs *ChatService) touchConversation(ctx context.Context, conversationID, content, senderID string, at time.Time) error {
	var conv models.Conversation
	err := cs.store.Get(ctx, ConversationsCollection, conversationID, &conv)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return remoteErr("get conversation", err)
	}
	conv.ID = conversationID
	conv.LastMessage = content
	conv.LastMessageAt = at
	conv.LastSenderID = senderID
	if err := cs.store.Put(ctx, ConversationsCollection, conversationID, &conv); err != nil {
		return remoteErr("update conversation summary", err)
	}
	return nil
}

func (cs *ChatService) dropPending(conversationID, clientID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	list := cs.messages[conversationID]
	for i := range list {
		if list[i].ClientID == clientID && list[i].ID == "" {
			cs.messages[conversationID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Messages возвращает сообщения диалога в итоговом порядке: серверное
// время, затем локальный счётчик вставки, затем id. Неразрешённые
// оптимистичные записи держатся в хвосте в порядке вставки.
func (cs *ChatService) Messages(conversationID string) []models.Message {
	cs.mu.Lock()
	list := make([]models.Message, len(cs.messages[conversationID]))
	copy(list, cs.messages[conversationID])
	cs.mu.Unlock()

	sortMessages(list)
	return list
}

func sortMessages(list []models.Message) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Timestamp.IsZero() != b.Timestamp.IsZero() {
			return b.Timestamp.IsZero()
		}
		if !a.Timestamp.IsZero() && !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})
}

// FetchMessages перечитывает сообщения диалога из хранилища и заменяет
// локальный вид. Невысланные оптимистичные записи сохраняются в хвосте.
func (cs *ChatService) FetchMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	docs, err := cs.store.Find(ctx, MessagesCollection)
	if err != nil {
		return nil, remoteErr("list messages", err)
	}

	fetched := make([]models.Message, 0)
	for _, doc := range docs {
		var msg models.Message
		if err := json.Unmarshal(doc.Data, &msg); err != nil {
			log.Printf("skipping malformed message document %s: %v", doc.ID, err)
			continue
		}
		msg.ID = doc.ID
		if msg.ConversationID != conversationID {
			continue
		}
		fetched = append(fetched, msg)
	}

	cs.mu.Lock()
	var pending []models.Message
	for _, m := range cs.messages[conversationID] {
		if m.ID == "" {
			pending = append(pending, m)
		}
	}
	seen := make(map[string]struct{}, len(fetched))
	for i := range fetched {
		cs.seq++
		fetched[i].Seq = cs.seq
		fetched[i].Delivered = true
		seen[fetched[i].ID] = struct{}{}
	}
	cs.messages[conversationID] = append(fetched, pending...)
	cs.seen[conversationID] = seen
	cs.mu.Unlock()

	return cs.Messages(conversationID), nil
}

// MarkAsRead помечает прочитанными все чужие сообщения диалога. Это
// пакет независимых одиночных записей, не одна атомарная операция.
func (cs *ChatService) MarkAsRead(ctx context.Context, conversationID, userID string) (int, error) {
	msgs, err := cs.FetchMessages(ctx, conversationID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, msg := range msgs {
		if msg.SenderID == userID || msg.Read || msg.ID == "" {
			continue
		}
		msg.Read = true
		if err := cs.store.Put(ctx, MessagesCollection, msg.ID, &msg); err != nil {
			return updated, remoteErr("mark message as read", err)
		}
		cs.applyModified(msg)
		updated++
	}
	return updated, nil
}

// UnreadCount считает непрочитанные чужие сообщения диалога.
func (cs *ChatService) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	msgs, err := cs.FetchMessages(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, msg := range msgs {
		if msg.SenderID != userID && !msg.Read {
			count++
		}
	}
	return count, nil
}

// Typing ставит маркер "пользователь печатает" и перезаводит таймер
// автоснятия. Подтверждения от хранилища не требуется.
func (cs *ChatService) Typing(conversationID, userID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.typing[conversationID] == nil {
		cs.typing[conversationID] = make(map[string]*time.Timer)
	}
	if timer, ok := cs.typing[conversationID][userID]; ok {
		timer.Stop()
	}
	cs.typing[conversationID][userID] = time.AfterFunc(cs.typingTTL, func() {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		delete(cs.typing[conversationID], userID)
	})
}

// TypingUsers возвращает, кто сейчас печатает в диалоге.
func (cs *ChatService) TypingUsers(conversationID string) []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	users := make([]string, 0, len(cs.typing[conversationID]))
	for userID := range cs.typing[conversationID] {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Conversation читает один диалог по id.
func (cs *ChatService) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := cs.store.Get(ctx, ConversationsCollection, conversationID, &conv)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, remoteErr("get conversation", err)
	}
	conv.ID = conversationID
	return &conv, nil
}

// Conversations возвращает диалоги пользователя по убыванию последней
// активности.
func (cs *ChatService) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	docs, err := cs.store.Find(ctx, ConversationsCollection)
	if err != nil {
		return nil, remoteErr("list conversations", err)
	}

	conversations := make([]models.Conversation, 0)
	for _, doc := range docs {
		var conv models.Conversation
		if err := json.Unmarshal(doc.Data, &conv); err != nil {
			log.Printf("skipping malformed conversation document %s: %v", doc.ID, err)
			continue
		}
		conv.ID = doc.ID
		if conv.HasParticipant(userID) {
			conversations = append(conversations, conv)
		}
	}
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})
	return conversations, nil
}

// FindConversation ищет существующий диалог пары. Проверка уровня
// приложения: между lookup и созданием есть известное окно гонки,
// ограничение уникальности хранилище не даёт.
func (cs *ChatService) FindConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	conversations, err := cs.Conversations(ctx, userA)
	if err != nil {
		return nil, err
	}
	for i := range conversations {
		if conversations[i].HasParticipant(userB) {
			return &conversations[i], nil
		}
	}
	return nil, nil
}

// CreateConversation создаёт диалог пары, при наличии возвращает
// существующий. Опциональное первое сообщение пишется от первого
// участника.
func (cs *ChatService) CreateConversation(ctx context.Context, participants []string, initialMessage string) (*models.Conversation, error) {
	if len(participants) != 2 {
		return nil, fmt.Errorf("conversation requires exactly 2 participants, got %d", len(participants))
	}

	if existing, err := cs.FindConversation(ctx, participants[0], participants[1]); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	lastMessage := initialMessage
	if lastMessage == "" {
		lastMessage = "Conversation started"
	}
	conv := models.Conversation{
		Participants:  participants,
		CreatedAt:     now,
		LastMessage:   lastMessage,
		LastMessageAt: now,
		LastSenderID:  participants[0],
	}
	id, err := cs.store.Create(ctx, ConversationsCollection, &conv)
	if err != nil {
		return nil, remoteErr("create conversation", err)
	}
	conv.ID = id

	if initialMessage != "" {
		first := models.Message{
			ConversationID: id,
			SenderID:       participants[0],
			Content:        initialMessage,
			Type:           models.MessageTypeText,
			Timestamp:      now,
		}
		if _, err := cs.store.Create(ctx, MessagesCollection, &first); err != nil {
			return &conv, remoteErr("create initial message", err)
		}
	}
	return &conv, nil
}
