package main

import (
	"context"
	"fmt"
	"log"

	"github.com/m3rciful/volunteerbot/core/cmd"
	"github.com/m3rciful/volunteerbot/volunteer/app"
	"github.com/m3rciful/volunteerbot/volunteer/config"
)

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(ctx context.Context, carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			cfg, ok := carrier.(*config.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", carrier)
			}
			return app.Bootstrap(ctx, cfg)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
