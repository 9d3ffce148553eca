package main

import (
	"context"

	config "github.com/NordCoder/doggy-auth/internal/config/auth-api"
	"github.com/NordCoder/doggy-auth/internal/identity/firebase"
	"go.uber.org/zap"
)

func initIdentity(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*firebase.Verifier, error) {
	return firebase.New(ctx, cfg.Identity.AsFirebaseConfig(), logger)
}
