package main

import (
	"log"
	"net/http"

	"docchat/internal/api"
	"docchat/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	s := api.NewServer(cfg)
	log.Printf("docchat api listening on %s llm_providers=%q embed_providers=%q", cfg.APIAddr, cfg.LLMProviders, cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, s.Routes()); err != nil {
		log.Fatal(err)
	}
}
