// A minimal chat client: connect, subscribe to messages, print inserts as
// they stream in, and send one message through a reducer.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/google/uuid"

	stdb "github.com/mickamy/stdb-go"
	"github.com/mickamy/stdb-go/bsatn"
	"github.com/mickamy/stdb-go/client"
	"github.com/mickamy/stdb-go/creds"
	"github.com/mickamy/stdb-go/httpapi"
)

const database = "chat"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func getHost() string {
	if v := os.Getenv("STDB_HOST"); v != "" {
		return v
	}
	return "localhost:3000"
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	host := getHost()

	// Reuse stored credentials, minting fresh ones on first run.
	stored, err := creds.Load("", database)
	if err != nil {
		api := httpapi.New(host)
		id, err := api.CreateIdentity()
		if err != nil {
			return fmt.Errorf("create identity: %w", err)
		}
		stored = creds.Credentials{Identity: id.Identity, Token: id.Token}
		if err := creds.Store("", database, stored); err != nil {
			return fmt.Errorf("store credentials: %w", err)
		}
	}

	handler := client.Handler{
		OnConnect: func(_ [32]byte, connID uuid.UUID, _ string) {
			fmt.Printf("connected as %s\n", connID)
		},
		OnInsert: func(table string, r bsatn.Product) {
			if table != "messages" {
				return
			}
			text, _ := r.Field("text")
			fmt.Printf("> %s\n", text.(bsatn.String))
		},
		OnDisconnect: func(reason error) {
			fmt.Printf("disconnected: %v\n", reason)
		},
		OnError: func(err error) {
			log.Printf("stream error: %v", err)
		},
	}

	c, err := stdb.Connect(client.Config{
		Host:     host,
		Database: database,
		Token:    stored.Token,
	}, handler)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = c.Close() }()

	if _, err := c.Subscribe([]string{"SELECT * FROM messages"}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if _, err := c.CallReducer("send_message", bsatn.Product{
		{Name: "text", Value: bsatn.String("hello from Go")},
	}); err != nil {
		return fmt.Errorf("send_message: %w", err)
	}

	return c.Run(ctx)
}
