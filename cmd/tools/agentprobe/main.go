package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/tecnoaigent/backend/internal/config"
	"github.com/zhouzirui/tecnoaigent/backend/internal/model/analytics"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/agent"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/voice"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] .env not loaded, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	mode := flag.String("mode", "", "probe mode: query or transcribe")
	user := flag.String("user", "", "identity email sent as idagente")
	msg := flag.String("msg", "", "query text")
	model := flag.String("model", "", "analytic model id (defaults to the catalog default)")
	audioPath := flag.String("audio", "", "audio file for transcribe mode")
	timeout := flag.Duration("timeout", cfg.Agent.Timeout, "request timeout")
	raw := flag.Bool("raw", false, "print the raw query reply instead of the normalized one")

	flag.Parse()

	if *mode != "query" && *mode != "transcribe" {
		flag.Usage()
		log.Fatal("choose -mode=query or -mode=transcribe")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := agent.NewClient(ctx, cfg.Agent, nil)
	if err != nil {
		log.Fatalf("failed to initialize agent client: %v", err)
	}

	switch *mode {
	case "query":
		runQuery(ctx, client, cfg, *user, *msg, *model, *raw)
	case "transcribe":
		runTranscribe(ctx, client, *audioPath)
	}
}

func runQuery(ctx context.Context, client *agent.Client, cfg *config.Config, user, msg, model string, raw bool) {
	if strings.TrimSpace(user) == "" || strings.TrimSpace(msg) == "" {
		log.Fatal("query mode needs -user and -msg")
	}

	if model == "" {
		store, err := analytics.LoadStore(cfg.Catalog.Path)
		if err != nil {
			log.Fatalf("failed to load model catalog: %v", err)
		}
		model = store.Default().ID
	}

	q := agent.Query{UserID: user, Message: msg, ModelID: model}
	log.Printf("querying %s: user=%s model=%s", cfg.Agent.QueryURL, user, model)

	if raw {
		reply, err := client.Fetch(ctx, q)
		if err != nil {
			log.Fatalf("query failed: %v", err)
		}
		log.Printf("status=%d content-type=%q", reply.Status, reply.ContentType)
		os.Stdout.Write(reply.Body)
		os.Stdout.WriteString("\n")
		return
	}

	start := time.Now()
	reply, err := client.Ask(ctx, q)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
	log.Printf("reply in %s", time.Since(start).Round(time.Millisecond))
	log.Printf("text: %s", reply.Text)
	if reply.ImageURL != "" {
		log.Printf("image: %s", reply.ImageURL)
	}
	if reply.AudioURL != "" {
		log.Printf("audio: %s", reply.AudioURL)
	}
}

func runTranscribe(ctx context.Context, client *agent.Client, audioPath string) {
	if audioPath == "" {
		log.Fatal("transcribe mode needs -audio")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		log.Fatalf("failed to open audio file: %v", err)
	}
	defer file.Close()

	format := voice.InferFormat(audioPath, "")
	req := &agent.TranscriptionRequest{
		SessionID:   "probe",
		Audio:       file,
		Filename:    filepath.Base(audioPath),
		ContentType: voice.Clip{Format: format}.ContentType(),
	}

	log.Printf("transcribing %s (format=%s)", audioPath, format)
	resp, err := client.Transcribe(ctx, req)
	if err != nil {
		log.Fatalf("transcription failed: %v", err)
	}
	log.Printf("transcription: %q", resp.Text)
}
