package docstore

import (
	"log"
	"sync"
)

// Типы событий изменения документа.
const (
	ChangeAdded    = "added"
	ChangeModified = "modified"
	ChangeRemoved  = "removed"
)

// ChangeEvent - событие изменения документа, доставляемое подписчикам.
// Origin заполняется только при доставке через Redis-мост.
type ChangeEvent struct {
	Type       string `json:"type"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Data       []byte `json:"data,omitempty"`
	Origin     string `json:"origin,omitempty"`
}

// subscriptionBuffer - размер буфера канала подписки. Медленный
// подписчик теряет события, консистентность восстанавливает refetch.
const subscriptionBuffer = 64

// Subscription - активная подписка на изменения одной коллекции.
// Канал закрывается только при явном Unsubscribe.
type Subscription struct {
	id         int64
	collection string
	ch         chan ChangeEvent
	bus        *EventBus
	once       sync.Once
}

// Events возвращает канал событий подписки.
func (sub *Subscription) Events() <-chan ChangeEvent {
	return sub.ch
}

// Collection возвращает коллекцию, на которую оформлена подписка.
func (sub *Subscription) Collection() string {
	return sub.collection
}

// Unsubscribe снимает подписку и закрывает канал. Повторный вызов
// безопасен.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.bus.remove(sub)
	})
}

// EventBus рассылает события изменения документов подписчикам.
type EventBus struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[int64]*Subscription
}

func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[int64]*Subscription),
	}
}

// Subscribe регистрирует подписку на коллекцию.
func (b *EventBus) Subscribe(collection string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id:         b.nextID,
		collection: collection,
		ch:         make(chan ChangeEvent, subscriptionBuffer),
		bus:        b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish доставляет событие всем подписчикам коллекции. Порядок
// внутри одной подписки соответствует порядку публикаций, между
// подписками порядок не гарантируется.
func (b *EventBus) Publish(ev ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.collection != ev.Collection {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.Printf("docstore: subscriber for %s is slow, dropping event %s", ev.Collection, ev.ID)
		}
	}
}

func (b *EventBus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}
