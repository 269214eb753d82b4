//go:build ignore
// +build ignore

// Provider smoke test - sends a real email through the configured transport.
//
// Reads the same config as the server (config/config.yaml plus environment
// overrides), runs the connection test, and optionally sends one message.
//
// Usage:
//
//	go run scripts/smoke_send.go \
//	  --config=config/config.yaml \
//	  --to=you@example.com \
//	  --send
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/meridian-crm/mailer/internal/config"
	"github.com/meridian-crm/mailer/internal/mail"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	to := flag.String("to", "", "recipient address")
	doSend := flag.Bool("send", false, "actually send a message (default: connection test only)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := mail.NewService(cfg.Email.Credentials())
	if err := svc.Configure(ctx, cfg.Email.Provider, nil); err != nil {
		log.Fatalf("configure %s: %v", cfg.Email.Provider, err)
	}

	test := svc.TestConnection(ctx)
	fmt.Printf("provider:   %s\n", svc.CurrentProvider())
	fmt.Printf("connection: %v (%s)\n", test.Success, test.Message)
	if !test.Success {
		log.Fatal("connection test failed, not sending")
	}

	if !*doSend {
		return
	}
	if *to == "" {
		log.Fatal("--to is required with --send")
	}

	result, err := svc.Send(ctx, &mail.Message{
		To:      *to,
		Subject: "Delivery smoke test",
		HTML:    "<p>Smoke test from <b>" + string(svc.CurrentProvider()) + "</b> at " + time.Now().Format(time.RFC3339) + "</p>",
	})
	if err != nil {
		log.Fatalf("send: %v", err)
	}
	if !result.Success {
		log.Fatalf("send rejected: %v", result.Error)
	}
	fmt.Printf("sent: message_id=%s provider=%s\n", result.MessageID, result.Provider)
}
