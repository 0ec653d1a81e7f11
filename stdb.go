// Package stdb is a client SDK for a WebAssembly-hosted database that
// streams row-level changes over a binary WebSocket protocol. The root
// package wires the pieces together; the subpackages are usable on their
// own:
//
//   - bsatn: the algebraic type system and binary codec
//   - schema: the parsed schema descriptor
//   - wire: protocol message framing
//   - cache: the client-side row cache with update detection
//   - client: the connection state machine and high-level client
//   - httpapi: the REST collaborator
//   - creds: on-disk credential persistence
//   - codegen: typed accessor generation
package stdb

import (
	"github.com/mickamy/stdb-go/client"
	"github.com/mickamy/stdb-go/httpapi"
)

var version = "dev"

// Version reports the SDK version baked in at build time.
func Version() string { return version }

// Connect fetches the database's schema over REST, dials the subscribe
// endpoint, and returns a client ready to drive with Run or FrameTick.
func Connect(cfg client.Config, h client.Handler) (*client.Client, error) {
	api := httpapi.New(cfg.Host,
		httpapi.WithToken(cfg.Token),
		httpapi.WithLogger(cfg.Logger),
	)
	s, err := api.Schema(cfg.Database)
	if err != nil {
		return nil, err
	}
	c := client.New(s, cfg, h)
	if err := c.Dial(); err != nil {
		return nil, err
	}
	return c, nil
}
