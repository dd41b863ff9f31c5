package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"pulseup/docstore"
	"pulseup/models"
)

// reconcileInterval - период фоновой сверки коллекций.
const reconcileInterval = 30 * time.Second

// Coordinator выполняет последовательности, пересекающие границы
// менеджеров: принятие заявки, создание дружбы, диалог с приветствием.
// Общей транзакции на эти коллекции нет, поэтому контракт такой:
// каждый шаг наблюдаем отдельно, после последовательности идёт refetch,
// откатов нет.
type Coordinator struct {
	store   *docstore.Store
	friends *FriendService
	chat    *ChatService
}

func NewCoordinator(store *docstore.Store, friends *FriendService, chat *ChatService) *Coordinator {
	return &Coordinator{
		store:   store,
		friends: friends,
		chat:    chat,
	}
}

// AcceptAndConnect - последовательность "принять заявку -> создать
// дружбу -> найти или создать диалог -> приветственное сообщение".
// Приветствие best-effort: его провал не откатывает уже созданную
// дружбу.
func (co *Coordinator) AcceptAndConnect(ctx context.Context, requestID, fromUserID, toUserID string) error {
	const sequence = "accept_and_connect"
	completed := make([]string, 0, 4)

	// После любого исхода локальные проекции пересобираются, чтобы
	// сойтись с фактическим состоянием хранилища
	defer co.refetch(ctx, fromUserID, toUserID)

	req, err := co.friends.acceptRequestDoc(ctx, requestID)
	if err != nil {
		return &PartialSequenceError{Sequence: sequence, Step: "accept_request", Completed: completed, Err: err}
	}
	completed = append(completed, "accept_request")
	log.Printf("sequence %s: request %s accepted (%s -> %s)", sequence, requestID, req.FromUserID, req.ToUserID)

	if _, err := co.friends.createFriendship(ctx, fromUserID, toUserID); err != nil {
		// Заявка уже accepted, дружбы нет - известное промежуточное
		// состояние, его видно в хранилище до следующей сверки
		return &PartialSequenceError{Sequence: sequence, Step: "create_friendship", Completed: completed, Err: err}
	}
	completed = append(completed, "create_friendship")
	notifyFriendshipAccepted(fromUserID, toUserID)

	// Встречная pending-заявка (гонка взаимных заявок) добивается здесь
	if err := co.friends.rejectPendingBetween(ctx, fromUserID, toUserID); err != nil {
		log.Printf("sequence %s: stale request cleanup failed: %v", sequence, err)
	}

	welcome := WelcomeMessage(co.displayName(ctx, fromUserID))
	conv, err := co.chat.CreateConversation(ctx, []string{toUserID, fromUserID}, welcome)
	if err != nil {
		log.Printf("sequence %s: failed to create welcome conversation: %v", sequence, err)
		return nil
	}
	completed = append(completed, "establish_conversation")
	log.Printf("sequence %s: conversation %s ready for pair %s/%s", sequence, conv.ID, fromUserID, toUserID)
	return nil
}

// notifyFriendshipAccepted шлёт обеим сторонам push о новой дружбе.
func notifyFriendshipAccepted(fromUserID, toUserID string) {
	payload, err := json.Marshal(WsNotify{NotifyType: "friendship", Message: "Friend request accepted"})
	if err != nil {
		return
	}
	GlobalWSConnManager.SendToAll([]string{fromUserID, toUserID}, payload)
}

// displayName возвращает имя пользователя для приветствия.
func (co *Coordinator) displayName(ctx context.Context, userID string) string {
	var user models.User
	err := co.store.Get(ctx, UsersCollection, userID, &user)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			log.Printf("failed to resolve display name for %s: %v", userID, err)
		}
		return ""
	}
	return user.DisplayName
}

// refetch пересобирает проекции обоих участников. Единственная
// компенсация отсутствия транзакций: локальный вид сходится к
// фактическому состоянию хранилища, даже если шаг тихо недоехал.
func (co *Coordinator) refetch(ctx context.Context, userIDs ...string) {
	for _, userID := range userIDs {
		if _, err := co.friends.RefreshIndex(ctx, userID); err != nil {
			log.Printf("refetch for %s failed: %v", userID, err)
		}
	}
}

// StartReconciliation запускает фоновую сверку коллекций.
func (co *Coordinator) StartReconciliation(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				co.Reconcile(ctx)
			}
		}
	}()
	log.Println("Reconciliation worker started")
}

// Reconcile - один проход сверки: pending-заявки, сосуществующие с
// дружбой той же пары, принудительно отклоняются; принятые заявки без
// дружбы логируются как известное рассогласование (молча не чиним).
func (co *Coordinator) Reconcile(ctx context.Context) {
	requests, err := co.friends.fetchRequests(ctx)
	if err != nil {
		log.Printf("reconcile: failed to fetch requests: %v", err)
		return
	}
	friendships, err := co.friends.fetchFriendships(ctx)
	if err != nil {
		log.Printf("reconcile: failed to fetch friendships: %v", err)
		return
	}

	touched := make(map[string]struct{})

	// Дубли дружбы одной пары схлопываются: остаётся самая ранняя
	// запись (fetchFriendships отдаёт их в порядке создания)
	friendPairs := make(map[string]struct{}, len(friendships))
	for _, fr := range friendships {
		if fr.Status != models.RequestAccepted || len(fr.Participants) != 2 {
			continue
		}
		pair := models.PairKey(fr.Participants[0], fr.Participants[1])
		if _, ok := friendPairs[pair]; !ok {
			friendPairs[pair] = struct{}{}
			continue
		}
		if err := co.store.Delete(ctx, FriendsCollection, fr.ID); err != nil {
			log.Printf("reconcile: failed to collapse duplicate friendship %s for pair %s: %v", fr.ID, pair, err)
			continue
		}
		log.Printf("reconcile: collapsed duplicate friendship %s for pair %s", fr.ID, pair)
		touched[fr.Participants[0]] = struct{}{}
		touched[fr.Participants[1]] = struct{}{}
	}
	for _, req := range requests {
		pair := models.PairKey(req.FromUserID, req.ToUserID)
		switch req.Status {
		case models.RequestPending:
			if _, ok := friendPairs[pair]; !ok {
				continue
			}
			// Дружба и pending-заявка одной пары сосуществовать не должны
			req.Status = models.RequestRejected
			req.UpdatedAt = time.Now().UTC()
			if err := co.store.Put(ctx, RequestsCollection, req.ID, &req); err != nil {
				log.Printf("reconcile: failed to reject stale request %s: %v", req.ID, err)
				continue
			}
			log.Printf("reconcile: rejected stale pending request %s for pair %s", req.ID, pair)
			touched[req.FromUserID] = struct{}{}
			touched[req.ToUserID] = struct{}{}
		case models.RequestAccepted:
			if _, ok := friendPairs[pair]; !ok {
				log.Printf("reconcile: accepted request %s has no friendship for pair %s", req.ID, pair)
			}
		}
	}

	for userID := range touched {
		if _, err := co.friends.RefreshIndex(ctx, userID); err != nil {
			log.Printf("reconcile: refresh for %s failed: %v", userID, err)
		}
	}
}
