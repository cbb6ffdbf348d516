package main

import (
	"github.com/wasender/app/cmd"
)

// @title WhatsApp Sender API
// @version 1.0
// @description Session management, auto replies and background bulk sending over WhatsApp.

// @host  localhost:8000
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cmd.StartApp()
}
