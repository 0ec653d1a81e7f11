package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/mickamy/stdb-go/bsatn"
	"github.com/mickamy/stdb-go/cache"
	"github.com/mickamy/stdb-go/row"
	"github.com/mickamy/stdb-go/schema"
	"github.com/mickamy/stdb-go/wire"
)

// Client orchestrates the connection, the cache, and the application's
// handler. All methods must be called from the single consumer goroutine;
// cross-thread readers snapshot via GetAll or GetTyped.
type Client struct {
	conn    *Conn
	schema  *schema.Schema
	cache   *cache.Cache
	handler Handler
	log     zerolog.Logger

	// subs tracks active subscriptions: query set id -> queries, so a
	// reconnect can resubscribe.
	subs map[uint32][]string
}

// New builds a client over s. The schema may be nil: CallReducer and the
// processing of frames that carry rows then return ErrNoSchema, and cache
// reads return empty results; raw operations still work.
func New(s *schema.Schema, cfg Config, h Handler) *Client {
	c := &Client{
		conn:    NewConn(cfg),
		schema:  s,
		handler: h,
		log:     cfg.Logger,
		subs:    make(map[uint32][]string),
	}
	if s != nil {
		c.cache = cache.New(s)
	}
	return c
}

// Conn exposes the underlying state machine.
func (c *Client) Conn() *Conn { return c.conn }

// Connect attaches an already-open transport.
func (c *Client) Connect(t Transport) {
	c.conn.Attach(t)
}

// Dial opens the configured WebSocket endpoint and attaches it.
func (c *Client) Dial() error {
	c.conn.setState(StateConnecting)
	t, err := DialWebSocket(c.conn.cfg)
	if err != nil {
		c.conn.setState(StateDisconnected)
		return err
	}
	c.conn.Attach(t)
	return nil
}

// Subscribe registers queries as one query set and returns its id.
func (c *Client) Subscribe(queries []string) (uint32, error) {
	reqID := c.conn.NextRequestID()
	qsID := c.conn.NextQuerySetID()
	err := c.conn.Send(&wire.Subscribe{
		RequestID:  reqID,
		QuerySetID: qsID,
		Queries:    queries,
	})
	if err != nil {
		return 0, err
	}
	c.subs[qsID] = queries
	c.log.Debug().Uint32("request_id", reqID).Uint32("query_set_id", qsID).
		Int("queries", len(queries)).Msg("subscribe sent")
	return qsID, nil
}

// Unsubscribe drops a query set and returns the request id of the
// unsubscribe message.
func (c *Client) Unsubscribe(querySetID uint32, sendDroppedRows bool) (uint32, error) {
	reqID := c.conn.NextRequestID()
	err := c.conn.Send(&wire.Unsubscribe{
		RequestID:       reqID,
		QuerySetID:      querySetID,
		SendDroppedRows: sendDroppedRows,
	})
	if err != nil {
		return 0, err
	}
	return reqID, nil
}

// CallReducerRaw invokes a reducer with pre-encoded arguments.
func (c *Client) CallReducerRaw(name string, args []byte) (uint32, error) {
	reqID := c.conn.NextRequestID()
	err := c.conn.Send(&wire.CallReducer{
		RequestID: reqID,
		Reducer:   name,
		Args:      args,
	})
	if err != nil {
		return 0, err
	}
	return reqID, nil
}

// CallReducer encodes fields against the reducer's parameter columns and
// invokes it. An unknown reducer fails synchronously.
func (c *Client) CallReducer(name string, fields bsatn.Product) (uint32, error) {
	if c.schema == nil {
		return 0, ErrNoSchema
	}
	red, ok := c.schema.Reducer(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownReducer, name)
	}
	args, err := row.EncodeReducerArgs(red, fields)
	if err != nil {
		return 0, err
	}
	return c.CallReducerRaw(name, args)
}

// CallProcedure invokes a procedure with pre-encoded arguments.
func (c *Client) CallProcedure(name string, args []byte) (uint32, error) {
	reqID := c.conn.NextRequestID()
	err := c.conn.Send(&wire.CallProcedure{
		RequestID: reqID,
		Procedure: name,
		Args:      args,
	})
	if err != nil {
		return 0, err
	}
	return reqID, nil
}

// OneOffQuery runs a single query outside any subscription.
func (c *Client) OneOffQuery(sql string) (uint32, error) {
	reqID := c.conn.NextRequestID()
	err := c.conn.Send(&wire.OneOffQuery{RequestID: reqID, Query: sql})
	if err != nil {
		return 0, err
	}
	return reqID, nil
}

// GetAll returns a fresh snapshot of every cached row in table.
func (c *Client) GetAll(table string) []bsatn.Product {
	if c.cache == nil {
		return nil
	}
	return c.cache.All(table)
}

// Count returns the number of cached rows in table.
func (c *Client) Count(table string) int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Count(table)
}

// Find returns the cached row with the given primary key.
func (c *Client) Find(table string, pk bsatn.Value) (bsatn.Product, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Find(table, pk)
}

// FindTyped finds a row by primary key and copies it into dest, a pointer
// to a struct whose fields positionally match the table's columns.
func (c *Client) FindTyped(table string, pk bsatn.Value, dest any) (bool, error) {
	r, ok := c.Find(table, pk)
	if !ok {
		return false, nil
	}
	if err := row.RowInto(r, dest); err != nil {
		return false, err
	}
	return true, nil
}

// GetTyped snapshots a whole table into dest, a pointer to a slice of
// structs whose fields positionally match the table's columns.
func (c *Client) GetTyped(table string, dest any) error {
	rows := c.GetAll(table)
	return row.RowsInto(rows, dest)
}

// ProcessFrame drives one server frame through the state machine, the
// cache, and the handler.
func (c *Client) ProcessFrame(frame []byte) error {
	msg, err := c.conn.ProcessFrame(frame)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *wire.InitialConnection:
		c.handler.connect(m.Identity, m.ConnectionID, m.Token)

	case *wire.SubscribeApplied:
		if c.cache == nil {
			return ErrNoSchema
		}
		changes, err := c.cache.ApplySubscribeApplied(m.Rows)
		if err != nil {
			return err
		}
		c.handler.dispatchChanges(changes)
		if c.handler.OnSubscribeApplied != nil {
			for _, tr := range m.Rows {
				c.handler.OnSubscribeApplied(tr.TableName, tr.Rows.Len())
			}
		}

	case *wire.UnsubscribeApplied:
		delete(c.subs, m.QuerySetID)
		if c.handler.OnUnsubscribeApplied != nil {
			var rows []wire.TableRows
			if m.HasRows {
				rows = m.Rows
			}
			c.handler.OnUnsubscribeApplied(m.QuerySetID, rows)
		}

	case *wire.SubscriptionError:
		delete(c.subs, m.QuerySetID)
		c.handler.errorf(fmt.Errorf("client: subscription %d: %s", m.QuerySetID, m.Message))

	case *wire.TransactionUpdate:
		if err := c.applyTransaction(m.Updates); err != nil {
			return err
		}

	case *wire.OneOffQueryResult:
		if c.handler.OnQueryResult != nil {
			c.handler.OnQueryResult(m.RequestID, m.Result)
		}

	case *wire.ReducerResult:
		// Row callbacks of the embedded transaction fire before the
		// reducer-result callback.
		if m.Outcome.Kind == wire.ReducerOK && len(m.Outcome.Transaction) > 0 {
			if err := c.applyTransaction(m.Outcome.Transaction); err != nil {
				return err
			}
		}
		if c.handler.OnReducerResult != nil {
			c.handler.OnReducerResult(m.RequestID, m.Outcome)
		}

	case *wire.ProcedureResult:
		if c.handler.OnProcedureResult != nil {
			c.handler.OnProcedureResult(m.RequestID, m.Status)
		}
	}
	return nil
}

func (c *Client) applyTransaction(updates []wire.QuerySetUpdate) error {
	if c.cache == nil {
		return ErrNoSchema
	}
	changes, err := c.cache.ApplyTransactionUpdate(updates)
	if err != nil {
		return err
	}
	c.handler.dispatchChanges(changes)
	return nil
}

// FrameTick receives and processes one frame. It returns nil on a
// skippable frame or a dropped (malformed) frame, and io.EOF once the
// connection has transitioned to disconnected.
func (c *Client) FrameTick() error {
	frame, err := c.conn.Receive()
	if err != nil {
		if s := c.conn.State(); s == StateClosing || s == StateDisconnected {
			// The receive was ended by a deliberate Close, which emits nothing.
			return io.EOF
		}
		if errors.Is(err, io.EOF) {
			c.conn.RecordDisconnect(nil)
			c.handler.disconnect(nil)
			return io.EOF
		}
		if errors.Is(err, ErrNotConnected) {
			return io.EOF
		}
		c.conn.RecordDisconnect(err)
		c.handler.disconnect(err)
		return io.EOF
	}
	if frame == nil {
		return nil
	}
	if err := c.ProcessFrame(frame); err != nil {
		// Malformed frames and failed applies are reported and dropped;
		// the connection stays authenticated.
		c.log.Error().Err(err).Msg("frame dropped")
		c.handler.errorf(err)
	}
	return nil
}

// Run drives the receive loop until the connection ends or ctx is
// cancelled. When the connection drops and the configuration allows it,
// Run redials with backoff and resubscribes the active query sets.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.FrameTick(); err == nil {
			continue
		}

		// Disconnected. Without a dialable host the application owns
		// reconnection.
		if c.conn.cfg.Host == "" || !c.conn.ShouldReconnect() {
			return nil
		}
		delay := c.conn.ReconnectDelay()
		c.log.Info().Dur("delay", delay).Int("attempt", c.conn.Attempts()).Msg("reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err := c.Dial(); err != nil {
			c.conn.RecordDisconnect(err)
			continue
		}
		// Resubscribe under fresh query set ids.
		old := c.subs
		c.subs = make(map[uint32][]string, len(old))
		for _, queries := range old {
			if _, err := c.Subscribe(queries); err != nil {
				c.handler.errorf(err)
			}
		}
	}
}

// RunThreaded starts Run on a dedicated goroutine and returns a cancel
// func that stops it by closing the connection.
func (c *Client) RunThreaded() context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = c.Run(ctx)
	}()
	return func() {
		cancel()
		_ = c.Close()
	}
}

// Close shuts the connection down deliberately; no further events fire.
func (c *Client) Close() error {
	return c.conn.Close()
}
