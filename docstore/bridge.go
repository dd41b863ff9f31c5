package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"pulseup/config"
)

// eventsChannel - канал Redis pub/sub для обмена событиями между
// инстансами сервера.
const eventsChannel = "docstore_events"

// RedisBridge ретранслирует события изменений между инстансами через
// Redis pub/sub. Собственные события отбрасываются по origin.
type RedisBridge struct {
	client *redis.Client
	bus    *EventBus
	origin string
}

// ConnectRedisBridge подключает мост к Redis из конфигурации и
// привязывает его к хранилищу.
func ConnectRedisBridge(ctx context.Context, store *Store) (*RedisBridge, error) {
	if config.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is not loaded")
	}

	redisConfig := config.AppConfig.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// Тест соединения
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	bridge := &RedisBridge{
		client: client,
		bus:    store.bus,
		origin: uuid.NewString(),
	}
	store.bridge = bridge

	go bridge.run(ctx)
	return bridge, nil
}

// Publish отправляет локальное событие другим инстансам.
func (br *RedisBridge) Publish(ev ChangeEvent) {
	ev.Origin = br.origin
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("docstore bridge: failed to marshal event: %v", err)
		return
	}
	if err := br.client.Publish(context.Background(), eventsChannel, body).Err(); err != nil {
		log.Printf("docstore bridge: failed to publish event: %v", err)
	}
}

// run читает события других инстансов и вливает их в локальную шину.
func (br *RedisBridge) run(ctx context.Context) {
	pubsub := br.client.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("docstore bridge: failed to unmarshal event: %v", err)
				continue
			}
			if ev.Origin == br.origin {
				// Своё событие уже доставлено локально
				continue
			}
			br.bus.Publish(ev)
		}
	}
}

// Close закрывает соединение с Redis.
func (br *RedisBridge) Close() error {
	return br.client.Close()
}
