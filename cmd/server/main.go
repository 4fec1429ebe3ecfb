package main

import (
	"log"

	"branchpos/config"
	"branchpos/internal/database"
	"branchpos/internal/gateway/handlers"
	"branchpos/internal/pos"
	"branchpos/internal/realtime"
	"branchpos/internal/utils"
)

func main() {
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	rdb := config.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	router := realtime.NewRedisRouter(rdb)

	directory := pos.NewDirectory(db)
	counters := pos.NewCounterService(db)
	assignments := pos.NewAssignmentDirectory(db)
	sessions := pos.NewSessionService(db)
	pins := pos.NewPinService(db)
	orders := pos.NewOrderService(db, counters, assignments, directory, sessions, router)
	transfers := pos.NewTransferService(db, directory, router)

	posHandler := handlers.NewPOSHTTPHandler(orders, transfers)
	sessionHandler := handlers.NewSessionHTTPHandler(sessions)
	adminHandler := handlers.NewAdminHTTPHandler(pins, assignments, counters)

	r := buildRouter(posHandler, sessionHandler, adminHandler)

	addr := ":" + cfg.Server.Port
	log.Printf("Starting server on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
