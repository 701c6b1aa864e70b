// Command llmtest sends one scripted intake turn to the configured completion
// provider and prints the draft reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/evidens-whatsapp-bot/cmd/mainconfig"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/app/bootstrap"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/completion"
	appconfig "github.com/wolfman30/evidens-whatsapp-bot/internal/config"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/intake"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	message := flag.String("message", "Oi, gostaria de saber como funciona o protocolo de emagrecimento.", "patient message to send")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	client, err := bootstrap.BuildCompletionClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		log.Fatalf("build completion client: %v", err)
	}

	start := time.Now()
	resp, err := client.Complete(ctx, completion.Request{
		System:      []string{intake.SystemPrompt(cfg.OperatorName)},
		Messages:    []completion.Message{{Role: completion.RoleUser, Content: *message}},
		MaxTokens:   int32(cfg.LLMMaxTokens),
		Temperature: float32(cfg.LLMTemperature),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "completion failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("provider: %s (%s)\n", resp.Provider, time.Since(start).Round(time.Millisecond))
	fmt.Printf("tokens:   in=%d out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	fmt.Println()
	fmt.Println(resp.Text)
}
