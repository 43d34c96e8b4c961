package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"estate_backoffice/internal/config"
	"estate_backoffice/internal/services"
)

func main() {
	phone := flag.String("phone", "", "Phone number or group id (e.g. 08123456789 or 1203630@g.us)")
	msg := flag.String("msg", "Test message from the estate back-office", "Message body")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := services.NewLogger(false)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if *phone == "" {
		log.Fatal("please provide a phone number using -phone")
	}

	chatID := services.NormalizeChatID(*phone, cfg.Waha.DefaultCountryCode)
	log.Info("sending message", zap.String("chat_id", chatID))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := services.NewWahaService(cfg.Waha).SendMessage(ctx, chatID, *msg); err != nil {
		log.Fatal("failed to send message", zap.Error(err))
	}
	log.Info("message sent")
}
