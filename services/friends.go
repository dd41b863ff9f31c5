package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"pulseup/docstore"
	"pulseup/models"
)

// FriendService владеет машиной состояний отношений между парами
// пользователей: none -> request-sent/request-received -> friend/none.
type FriendService struct {
	store       *docstore.Store
	cache       *relationshipCache
	coordinator *Coordinator
}

func NewFriendService(store *docstore.Store) *FriendService {
	return &FriendService{
		store: store,
		cache: newRelationshipCache(),
	}
}

// SetCoordinator привязывает координатор. Вызывается один раз при
// старте, до первого Accept.
func (fs *FriendService) SetCoordinator(c *Coordinator) {
	fs.coordinator = c
}

// SendFriendRequest создаёт заявку в друзья. Хранилище уникальность
// pending-заявок не обеспечивает, поэтому проверяем актуальную
// проекцию перед записью.
func (fs *FriendService) SendFriendRequest(ctx context.Context, fromUserID, toUserID string) (*models.FriendRequest, error) {
	if fromUserID == "" || toUserID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidRelationship)
	}
	if fromUserID == toUserID {
		return nil, fmt.Errorf("%w: cannot add yourself as friend", ErrInvalidRelationship)
	}

	idx, err := fs.RefreshIndex(ctx, fromUserID)
	if err != nil {
		return nil, err
	}
	switch idx.Status(toUserID) {
	case models.RelationFriend:
		return nil, fmt.Errorf("%w: users are already friends", ErrInvalidRelationship)
	case models.RelationRequestSent, models.RelationRequestReceived:
		return nil, fmt.Errorf("%w: friend request already exists", ErrInvalidRelationship)
	}

	now := time.Now().UTC()
	req := models.FriendRequest{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     models.RequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	id, err := fs.store.Create(ctx, RequestsCollection, &req)
	if err != nil {
		return nil, remoteErr("send friend request", err)
	}
	req.ID = id

	fs.cache.invalidate(fromUserID, toUserID)
	return &req, nil
}

// AcceptFriendRequest принимает заявку. Полная последовательность
// (заявка -> дружба -> диалог -> приветствие) идёт через координатор,
// потому что затрагивает несколько коллекций без общей транзакции.
func (fs *FriendService) AcceptFriendRequest(ctx context.Context, requestID, fromUserID, toUserID string) error {
	if fs.coordinator == nil {
		return fmt.Errorf("coordinator is not attached")
	}
	return fs.coordinator.AcceptAndConnect(ctx, requestID, fromUserID, toUserID)
}

// acceptRequestDoc переводит заявку в accepted. Повторное принятие уже
// принятой заявки - no-op: гонку двойного принятия не лечим, только
// не падаем на ней.
func (fs *FriendService) acceptRequestDoc(ctx context.Context, requestID string) (*models.FriendRequest, error) {
	var req models.FriendRequest
	err := fs.store.Get(ctx, RequestsCollection, requestID, &req)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("friend request %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, remoteErr("get friend request", err)
	}
	req.ID = requestID

	switch req.Status {
	case models.RequestRejected:
		return nil, fmt.Errorf("%w: request already rejected", ErrInvalidRelationship)
	case models.RequestAccepted:
		return &req, nil
	}

	req.Status = models.RequestAccepted
	req.UpdatedAt = time.Now().UTC()
	if err := fs.store.Put(ctx, RequestsCollection, requestID, &req); err != nil {
		return nil, remoteErr("accept friend request", err)
	}
	return &req, nil
}

// findFriendship ищет существующую дружбу пары.
func (fs *FriendService) findFriendship(ctx context.Context, userA, userB string) (*models.Friendship, error) {
	friendships, err := fs.fetchFriendships(ctx)
	if err != nil {
		return nil, err
	}
	pairKey := models.PairKey(userA, userB)
	for i := range friendships {
		fr := &friendships[i]
		if fr.Status != models.RequestAccepted || len(fr.Participants) != 2 {
			continue
		}
		if models.PairKey(fr.Participants[0], fr.Participants[1]) == pairKey {
			return fr, nil
		}
	}
	return nil, nil
}

// createFriendship создаёт запись дружбы для пары. Повторный вызов
// (двойное принятие той же заявки) возвращает существующую запись, не
// плодя дублей.
func (fs *FriendService) createFriendship(ctx context.Context, userA, userB string) (*models.Friendship, error) {
	if existing, err := fs.findFriendship(ctx, userA, userB); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	friendship := models.Friendship{
		Participants: []string{userA, userB},
		Status:       models.RequestAccepted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	id, err := fs.store.Create(ctx, FriendsCollection, &friendship)
	if err != nil {
		return nil, remoteErr("create friendship", err)
	}
	friendship.ID = id

	fs.cache.invalidate(userA, userB)
	return &friendship, nil
}

// RejectFriendRequest отклоняет заявку. Отклонение уже отклонённой -
// идемпотентный no-op.
func (fs *FriendService) RejectFriendRequest(ctx context.Context, requestID string) error {
	var req models.FriendRequest
	err := fs.store.Get(ctx, RequestsCollection, requestID, &req)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("friend request %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return remoteErr("get friend request", err)
	}

	if req.Status == models.RequestRejected {
		return nil
	}
	if req.Status == models.RequestAccepted {
		return fmt.Errorf("%w: request already accepted", ErrInvalidRelationship)
	}

	req.ID = requestID
	req.Status = models.RequestRejected
	req.UpdatedAt = time.Now().UTC()
	if err := fs.store.Put(ctx, RequestsCollection, requestID, &req); err != nil {
		return remoteErr("reject friend request", err)
	}

	fs.cache.invalidate(req.FromUserID, req.ToUserID)
	return nil
}

// RemoveFriend удаляет дружбу и зачищает висящие pending-заявки между
// парой. Зачистка - отдельные записи, атомарности с удалением нет.
func (fs *FriendService) RemoveFriend(ctx context.Context, userID, friendID, friendshipID string) error {
	var friendship models.Friendship
	err := fs.store.Get(ctx, FriendsCollection, friendshipID, &friendship)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("friendship %s: %w", friendshipID, ErrNotFound)
	}
	if err != nil {
		return remoteErr("get friendship", err)
	}

	if err := fs.store.Delete(ctx, FriendsCollection, friendshipID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("friendship %s: %w", friendshipID, ErrNotFound)
		}
		return remoteErr("delete friendship", err)
	}

	if err := fs.rejectPendingBetween(ctx, userID, friendID); err != nil {
		// Дружба уже удалена, зачистку доделает reconciliation
		log.Printf("remove friend: pending cleanup failed for pair %s/%s: %v", userID, friendID, err)
	}

	fs.cache.invalidate(userID, friendID)
	return nil
}

// rejectPendingBetween переводит все pending-заявки между парой в
// rejected. Используется и при удалении друга, и при сборке мусора
// после гонки встречных заявок.
func (fs *FriendService) rejectPendingBetween(ctx context.Context, userA, userB string) error {
	requests, err := fs.fetchRequests(ctx)
	if err != nil {
		return err
	}

	pairKey := models.PairKey(userA, userB)
	for _, req := range requests {
		if req.Status != models.RequestPending {
			continue
		}
		if models.PairKey(req.FromUserID, req.ToUserID) != pairKey {
			continue
		}
		req.Status = models.RequestRejected
		req.UpdatedAt = time.Now().UTC()
		if err := fs.store.Put(ctx, RequestsCollection, req.ID, &req); err != nil {
			return remoteErr("reject stale request", err)
		}
	}
	return nil
}

// Friends возвращает дружбы пользователя.
func (fs *FriendService) Friends(ctx context.Context, userID string) ([]models.Friendship, error) {
	all, err := fs.fetchFriendships(ctx)
	if err != nil {
		return nil, err
	}
	friendships := make([]models.Friendship, 0)
	for _, fr := range all {
		if fr.Status == models.RequestAccepted && containsParticipant(fr.Participants, userID) {
			friendships = append(friendships, fr)
		}
	}
	return friendships, nil
}

// PendingRequests возвращает входящие pending-заявки пользователя.
func (fs *FriendService) PendingRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	return fs.filterRequests(ctx, func(req *models.FriendRequest) bool {
		return req.Status == models.RequestPending && req.ToUserID == userID
	})
}

// OutgoingRequests возвращает исходящие pending-заявки пользователя.
func (fs *FriendService) OutgoingRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	return fs.filterRequests(ctx, func(req *models.FriendRequest) bool {
		return req.Status == models.RequestPending && req.FromUserID == userID
	})
}

// RelationshipStatus возвращает отношение userID к counterpartID по
// кэшированной проекции.
func (fs *FriendService) RelationshipStatus(ctx context.Context, userID, counterpartID string) (models.RelationshipStatus, error) {
	idx, err := fs.Index(ctx, userID)
	if err != nil {
		return models.RelationNone, err
	}
	return idx.Status(counterpartID), nil
}

// Index возвращает проекцию отношений пользователя, пересобирая её при
// отсутствии в кэше.
func (fs *FriendService) Index(ctx context.Context, userID string) (*RelationshipIndex, error) {
	if idx, ok := fs.cache.get(userID); ok {
		return idx, nil
	}
	return fs.RefreshIndex(ctx, userID)
}

// RefreshIndex принудительно пересобирает проекцию из хранилища.
func (fs *FriendService) RefreshIndex(ctx context.Context, userID string) (*RelationshipIndex, error) {
	requests, err := fs.fetchRequests(ctx)
	if err != nil {
		return nil, err
	}
	friendships, err := fs.fetchFriendships(ctx)
	if err != nil {
		return nil, err
	}
	idx := BuildRelationshipIndex(userID, requests, friendships)
	fs.cache.set(idx)
	return idx, nil
}

// AllUsers возвращает всех пользователей кроме текущего (экран поиска
// напарников). Справочные данные, ядро их не изменяет.
func (fs *FriendService) AllUsers(ctx context.Context, currentUserID string) ([]models.User, error) {
	docs, err := fs.store.Find(ctx, UsersCollection)
	if err != nil {
		return nil, remoteErr("list users", err)
	}
	users := make([]models.User, 0, len(docs))
	for _, doc := range docs {
		var u models.User
		if err := json.Unmarshal(doc.Data, &u); err != nil {
			log.Printf("skipping malformed user document %s: %v", doc.ID, err)
			continue
		}
		u.ID = doc.ID
		if u.ID == currentUserID {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (fs *FriendService) fetchRequests(ctx context.Context) ([]models.FriendRequest, error) {
	docs, err := fs.store.Find(ctx, RequestsCollection)
	if err != nil {
		return nil, remoteErr("list friend requests", err)
	}
	requests := make([]models.FriendRequest, 0, len(docs))
	for _, doc := range docs {
		var req models.FriendRequest
		if err := json.Unmarshal(doc.Data, &req); err != nil {
			log.Printf("skipping malformed request document %s: %v", doc.ID, err)
			continue
		}
		req.ID = doc.ID
		requests = append(requests, req)
	}
	return requests, nil
}

func (fs *FriendService) fetchFriendships(ctx context.Context) ([]models.Friendship, error) {
	docs, err := fs.store.Find(ctx, FriendsCollection)
	if err != nil {
		return nil, remoteErr("list friendships", err)
	}
	friendships := make([]models.Friendship, 0, len(docs))
	for _, doc := range docs {
		var fr models.Friendship
		if err := json.Unmarshal(doc.Data, &fr); err != nil {
			log.Printf("skipping malformed friendship document %s: %v", doc.ID, err)
			continue
		}
		fr.ID = doc.ID
		friendships = append(friendships, fr)
	}
	return friendships, nil
}

func (fs *FriendService) filterRequests(ctx context.Context, keep func(*models.FriendRequest) bool) ([]models.FriendRequest, error) {
	all, err := fs.fetchRequests(ctx)
	if err != nil {
		return nil, err
	}
	requests := make([]models.FriendRequest, 0)
	for _, req := range all {
		if keep(&req) {
			requests = append(requests, req)
		}
	}
	return requests, nil
}
