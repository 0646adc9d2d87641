package main

import (
	"mmark-score/internal/app/server"
	"mmark-score/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel)

	server.Run(cfg)
}
