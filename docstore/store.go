package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// ErrNotFound возвращается при обращении к несуществующему документу.
var ErrNotFound = errors.New("document not found")

// Document - строка schemaless-хранилища: один документ одной коллекции.
// Тело документа хранится как JSON, индексируется только коллекция.
type Document struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Collection string    `gorm:"index;size:60" json:"collection"`
	Data       []byte    `gorm:"type:text" json:"data"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// Store - адаптер документного хранилища поверх реляционной базы.
// Даёт точечные чтения, выборки по коллекции, атомарную запись одного
// документа и push-подписки на изменения. Транзакций на несколько
// документов намеренно нет.
type Store struct {
	orm    *gorm.DB
	bus    *EventBus
	bridge *RedisBridge
}

func NewStore(orm *gorm.DB) *Store {
	return &Store{
		orm: orm,
		bus: NewEventBus(),
	}
}

// AutoMigrate создаёт таблицу документов.
func (s *Store) AutoMigrate() error {
	return s.orm.AutoMigrate(&Document{})
}

// readDB возвращает подключение для чтения (реплики при наличии).
func (s *Store) readDB(ctx context.Context) *gorm.DB {
	return s.orm.WithContext(ctx).Clauses(dbresolver.Read)
}

// writeDB возвращает подключение для записи (мастер).
func (s *Store) writeDB(ctx context.Context) *gorm.DB {
	return s.orm.WithContext(ctx).Clauses(dbresolver.Write)
}

// Create сохраняет новый документ и возвращает назначенный id.
// Временные метки проставляются на стороне хранилища.
func (s *Store) Create(ctx context.Context, collection string, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	doc := Document{
		ID:         uuid.NewString(),
		Collection: collection,
		Data:       data,
	}
	if err := s.writeDB(ctx).Create(&doc).Error; err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}

	s.publish(ChangeEvent{Type: ChangeAdded, Collection: collection, ID: doc.ID, Data: data})
	return doc.ID, nil
}

// Set записывает документ под заданным id: создаёт или полностью
// заменяет. Используется для данных с внешним идентификатором
// (профили пользователей с uid от identity provider).
func (s *Store) Set(ctx context.Context, collection, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	result := s.writeDB(ctx).Model(&Document{}).
		Where("collection = ? AND id = ?", collection, id).
		Update("data", data)
	if result.Error != nil {
		return fmt.Errorf("failed to set document: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.publish(ChangeEvent{Type: ChangeModified, Collection: collection, ID: id, Data: data})
		return nil
	}

	doc := Document{ID: id, Collection: collection, Data: data}
	if err := s.writeDB(ctx).Create(&doc).Error; err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	s.publish(ChangeEvent{Type: ChangeAdded, Collection: collection, ID: id, Data: data})
	return nil
}

// Get читает документ по id.
func (s *Store) Get(ctx context.Context, collection, id string, out interface{}) error {
	var doc Document
	err := s.readDB(ctx).Where("collection = ? AND id = ?", collection, id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	return json.Unmarshal(doc.Data, out)
}

// Put полностью заменяет тело документа. Последняя запись побеждает,
// версионирования нет.
func (s *Store) Put(ctx context.Context, collection, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	result := s.writeDB(ctx).Model(&Document{}).
		Where("collection = ? AND id = ?", collection, id).
		Update("data", data)
	if result.Error != nil {
		return fmt.Errorf("failed to update document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	s.publish(ChangeEvent{Type: ChangeModified, Collection: collection, ID: id, Data: data})
	return nil
}

// Delete удаляет документ.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	result := s.writeDB(ctx).Where("collection = ? AND id = ?", collection, id).Delete(&Document{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	s.publish(ChangeEvent{Type: ChangeRemoved, Collection: collection, ID: id})
	return nil
}

// Find возвращает все документы коллекции. Фильтрация по полям тела
// делается вызывающей стороной после декодирования.
func (s *Store) Find(ctx context.Context, collection string) ([]Document, error) {
	var docs []Document
	err := s.readDB(ctx).Where("collection = ?", collection).Order("created_at ASC, id ASC").Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	return docs, nil
}

// Subscribe открывает push-подписку на изменения коллекции. Отмена
// только явная, через Subscription.Unsubscribe.
func (s *Store) Subscribe(collection string) *Subscription {
	return s.bus.Subscribe(collection)
}

func (s *Store) publish(ev ChangeEvent) {
	s.bus.Publish(ev)
	if s.bridge != nil {
		s.bridge.Publish(ev)
	}
}
