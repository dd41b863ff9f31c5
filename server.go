package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"pulseup/api/handlers"
	"pulseup/api/middleware"
	"pulseup/api/routes"
	"pulseup/config"
	"pulseup/docstore"
	"pulseup/services"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	err := config.LoadConfig(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	log.Println("Starting server...")

	store, err := docstore.Connect()
	if err != nil {
		panic("Failed to connect to the document store: " + err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis-мост событий между инстансами (опционален)
	if config.AppConfig.Redis.Host != "" {
		if _, err := docstore.ConnectRedisBridge(ctx, store); err != nil {
			log.Printf("Redis bridge unavailable, running single-instance: %v", err)
		}
	}

	// RabbitMQ для внешних уведомлений (опционален)
	if err := services.InitRabbitMQ(); err != nil {
		log.Printf("RabbitMQ unavailable, notifications limited to WebSocket: %v", err)
	}
	defer services.CloseRabbitMQ()

	friendService := services.NewFriendService(store)
	chatService := services.NewChatService(store)
	coordinator := services.NewCoordinator(store, friendService, chatService)
	friendService.SetCoordinator(coordinator)

	coordinator.StartReconciliation(ctx)

	notifier := services.NewNotifier(store)
	notifier.Start(ctx)

	handlers.Init(friendService, chatService)
	middleware.InitAuth(store)

	router := gin.Default()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.PrometheusMiddleware("social-core"))

	routes.PublicApi(router)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Backend.Host, config.AppConfig.Backend.Port)
	if err := router.Run(addr); err != nil {
		panic(err)
	}
}
