package main

import (
	approuters "Wayfarer/internal/app_routers"
	"Wayfarer/internal/configuration"
	"log"

	"go.uber.org/zap"
)

func main() {
	envFiles := configuration.LoadDotEnv()

	container, err := configuration.BuildContainer()
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	container.Logger.Info("configuration loaded",
		zap.String("env", container.Config.Env),
		zap.Strings("env_files", envFiles),
	)

	// Setup routers
	approuters.StartServer(container)
}
