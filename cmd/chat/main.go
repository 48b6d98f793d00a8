package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"docchat/internal/client"
	"docchat/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")

	apiBase := flag.String("api", envOr("DOCCHAT_API_BASE", "http://localhost:8080"), "chat API base URL")
	user := flag.String("user", envOr("DOCCHAT_USER", ""), "user identity")
	pageSize := flag.Int("page-size", 10, "history page size")
	flag.Parse()

	documentID := flag.Arg(0)
	if documentID == "" || *user == "" {
		log.Fatal("usage: chat -user <user-id> [-api <url>] <document-id>")
	}

	sender := client.NewSender(*apiBase, *user)
	cache := client.NewConversationCache(sender, documentID, *pageSize)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cache.Load(ctx); err != nil {
		log.Fatalf("load conversation: %v", err)
	}

	p := tea.NewProgram(tui.New(sender, cache), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("run chat ui: %v", err)
	}
}

func envOr(k, fallback string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fallback
}
