package utils

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		// Environment variables can be provided via Docker Compose or system
		log.Info().Msg(".env file not found, using system environment variables")
	}
}
