package main

import (
	"log/slog"
	"os"

	"paydesk/internal/app/server"
)

func main() {
	if err := server.Run(); err != nil {
		slog.Error("paydesk server stopped", "err", err)
		os.Exit(1)
	}
}
