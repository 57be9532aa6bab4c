package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	caja "github.com/xenking/caja/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := caja.LoadConfig()
		if err != nil {
			return err
		}
		return caja.Run(ctx, lg, m, cfg)
	})
}
