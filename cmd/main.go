package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/kaanbsaglam/studyai-backend/internal/app"
)

func main() {
	// Best effort: production deployments configure the environment directly.
	_ = godotenv.Load()

	a, err := app.New()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Log.Sync()

	if err := a.Run(); err != nil {
		a.Log.Fatal("server exited", "error", err)
	}
}
