package main

import (
	config "github.com/NordCoder/doggy-auth/internal/config/auth-api"
	"github.com/NordCoder/doggy-auth/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}
