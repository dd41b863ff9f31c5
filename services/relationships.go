package services

import (
	"sync"

	"pulseup/models"
)

// RelationshipIndex - локальная проекция отношений пользователя:
// counterpart id -> статус. Кэш, не источник истины; пересобирается
// после каждой мутации и обязан сойтись с коллекциями хранилища.
type RelationshipIndex struct {
	UserID     string
	Statuses   map[string]models.RelationshipStatus
	Requests   map[string]models.FriendRequest // counterpart -> pending заявка
	Friendship map[string]models.Friendship    // counterpart -> дружба
}

// BuildRelationshipIndex собирает проекцию из выборок заявок и дружб.
// Вместо линейного поиска по срезам даёт O(1) доступ по собеседнику.
func BuildRelationshipIndex(userID string, requests []models.FriendRequest, friendships []models.Friendship) *RelationshipIndex {
	idx := &RelationshipIndex{
		UserID:     userID,
		Statuses:   make(map[string]models.RelationshipStatus),
		Requests:   make(map[string]models.FriendRequest),
		Friendship: make(map[string]models.Friendship),
	}

	for _, req := range requests {
		if req.Status != models.RequestPending {
			continue
		}
		switch userID {
		case req.FromUserID:
			idx.Statuses[req.ToUserID] = models.RelationRequestSent
			idx.Requests[req.ToUserID] = req
		case req.ToUserID:
			idx.Statuses[req.FromUserID] = models.RelationRequestReceived
			idx.Requests[req.FromUserID] = req
		}
	}

	// Дружба перекрывает любую висящую заявку
	for _, fr := range friendships {
		if fr.Status != models.RequestAccepted || !containsParticipant(fr.Participants, userID) {
			continue
		}
		other := fr.Counterpart(userID)
		if other == "" {
			continue
		}
		idx.Statuses[other] = models.RelationFriend
		idx.Friendship[other] = fr
	}

	return idx
}

// Status возвращает отношение к собеседнику.
func (idx *RelationshipIndex) Status(counterpartID string) models.RelationshipStatus {
	if st, ok := idx.Statuses[counterpartID]; ok {
		return st
	}
	return models.RelationNone
}

func containsParticipant(participants []string, userID string) bool {
	for _, p := range participants {
		if p == userID {
			return true
		}
	}
	return false
}

// relationshipCache хранит проекции по пользователям между запросами.
type relationshipCache struct {
	mu     sync.RWMutex
	byUser map[string]*RelationshipIndex
}

func newRelationshipCache() *relationshipCache {
	return &relationshipCache{byUser: make(map[string]*RelationshipIndex)}
}

func (c *relationshipCache) get(userID string) (*RelationshipIndex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byUser[userID]
	return idx, ok
}

func (c *relationshipCache) set(idx *RelationshipIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser[idx.UserID] = idx
}

func (c *relationshipCache) invalidate(userIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.byUser, id)
	}
}
