package client_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mickamy/stdb-go/bsatn"
	"github.com/mickamy/stdb-go/client"
	"github.com/mickamy/stdb-go/schema"
	"github.com/mickamy/stdb-go/wire"
)

const testSchema = `{
	"tables": [
		{
			"name": "users",
			"columns": [
				{"name": "id", "type": {"kind": "u32"}},
				{"name": "name", "type": {"kind": "string"}}
			],
			"primary_key": [0]
		}
	],
	"reducers": [
		{
			"name": "set_name",
			"params": [
				{"name": "id", "type": {"kind": "u32"}},
				{"name": "name", "type": {"kind": "string"}}
			]
		}
	]
}`

func loadSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	return s
}

// fakeTransport feeds queued frames to the receive loop and records sent
// frames. A nil queued frame models a skippable (non-binary) frame; after
// the queue drains, Receive reports a clean close.
type fakeTransport struct {
	queue  [][]byte
	sent   [][]byte
	closed bool
}

func (t *fakeTransport) push(frame []byte) {
	t.queue = append(t.queue, frame)
}

func (t *fakeTransport) Send(frame []byte) error {
	t.sent = append(t.sent, frame)
	return nil
}

func (t *fakeTransport) Receive() ([]byte, error) {
	if len(t.queue) == 0 {
		return nil, io.EOF
	}
	frame := t.queue[0]
	t.queue = t.queue[1:]
	return frame, nil
}

func (t *fakeTransport) Close() error {
	t.closed = true
	return nil
}

// initialConnectionFrame builds a plausible initial_connection frame.
func initialConnectionFrame(token string) ([]byte, [32]byte, [16]byte) {
	var identity [32]byte
	for i := range identity {
		identity[i] = byte(i + 1)
	}
	var connID [16]byte
	for i := range connID {
		connID[i] = byte(0xA0 + i)
	}
	var e bsatn.Encoder
	e.WriteU8(0x00) // envelope: none
	e.WriteU8(0)    // initial_connection
	e.WriteRaw(identity[:])
	e.WriteRaw(connID[:])
	e.WriteString(token)
	return e.Bytes(), identity, connID
}

func user(id uint32, name string) []byte {
	var e bsatn.Encoder
	e.WriteU32(id)
	e.WriteString(name)
	return e.Bytes()
}

// appendRows writes an offset-framed row_list for the given rows.
func appendRows(e *bsatn.Encoder, rows ...[]byte) {
	e.WriteU8(1)
	e.WriteU32(uint32(len(rows)))
	var data []byte
	for _, r := range rows {
		e.WriteU64(uint64(len(data)))
		data = append(data, r...)
	}
	e.WriteBytes(data)
}

func subscribeAppliedFrame(reqID, qsID uint32, rows ...[]byte) []byte {
	var e bsatn.Encoder
	e.WriteU8(0x00)
	e.WriteU8(1)
	e.WriteU32(reqID)
	e.WriteU32(qsID)
	e.WriteU32(1)
	e.WriteString("users")
	appendRows(&e, rows...)
	return e.Bytes()
}

func transactionFrame(inserts, deletes [][]byte) []byte {
	var e bsatn.Encoder
	e.WriteU8(0x00)
	e.WriteU8(4)
	e.WriteU32(1)
	e.WriteU32(1)
	e.WriteU32(1)
	e.WriteString("users")
	e.WriteU32(1)
	e.WriteU8(0)
	appendRows(&e, inserts...)
	appendRows(&e, deletes...)
	return e.Bytes()
}

func TestConnectAndAuthenticate(t *testing.T) {
	t.Parallel()

	frame, wantIdentity, wantConnID := initialConnectionFrame("tok")
	tr := &fakeTransport{}
	tr.push(frame)

	var gotToken string
	var connects int
	c := client.New(loadSchema(t), client.Config{}, client.Handler{
		OnConnect: func(identity [32]byte, connID uuid.UUID, token string) {
			connects++
			if identity != wantIdentity {
				t.Error("identity mismatch")
			}
			if connID != uuid.UUID(wantConnID) {
				t.Error("connection id mismatch")
			}
			gotToken = token
		},
	})
	c.Connect(tr)

	if got := c.Conn().State(); got != client.StateConnected {
		t.Fatalf("got state %s, want connected", got)
	}
	if err := c.FrameTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := c.Conn().State(); got != client.StateAuthenticated {
		t.Fatalf("got state %s, want authenticated", got)
	}
	if connects != 1 {
		t.Fatalf("got %d OnConnect calls, want 1", connects)
	}
	if gotToken != "tok" || c.Conn().Token() != "tok" {
		t.Fatalf("got token %q / %q, want tok", gotToken, c.Conn().Token())
	}
}

func TestDisconnectOnEOF(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	var disconnects int
	c := client.New(loadSchema(t), client.Config{}, client.Handler{
		OnDisconnect: func(reason error) {
			disconnects++
			if reason != nil {
				t.Errorf("got reason %v, want nil for clean close", reason)
			}
		},
	})
	c.Connect(tr)

	if err := c.FrameTick(); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
	if got := c.Conn().State(); got != client.StateDisconnected {
		t.Fatalf("got state %s, want disconnected", got)
	}
	if disconnects != 1 {
		t.Fatalf("got %d OnDisconnect calls, want 1", disconnects)
	}
}

func TestSkippableFrame(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	tr.push(nil)
	c := client.New(loadSchema(t), client.Config{}, client.Handler{})
	c.Connect(tr)

	if err := c.FrameTick(); err != nil {
		t.Fatalf("tick on skippable frame: %v", err)
	}
}

func TestSubscribeWireAndIDs(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c := client.New(loadSchema(t), client.Config{}, client.Handler{})
	c.Connect(tr)

	qsID, err := c.Subscribe([]string{"SELECT * FROM users"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if qsID != 1 {
		t.Fatalf("got query set id %d, want 1", qsID)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("got %d sent frames, want 1", len(tr.sent))
	}
	want := wire.EncodeClientMessage(&wire.Subscribe{
		RequestID:  1,
		QuerySetID: 1,
		Queries:    []string{"SELECT * FROM users"},
	})
	if string(tr.sent[0]) != string(want) {
		t.Fatalf("sent % X, want % X", tr.sent[0], want)
	}

	// Request ids keep increasing across operation kinds.
	reqID, err := c.OneOffQuery("SELECT 1")
	if err != nil {
		t.Fatalf("one-off: %v", err)
	}
	if reqID != 2 {
		t.Fatalf("got request id %d, want 2", reqID)
	}
	reqID, err = c.Unsubscribe(qsID, false)
	if err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if reqID != 3 {
		t.Fatalf("got request id %d, want 3", reqID)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	t.Parallel()

	c := client.New(loadSchema(t), client.Config{}, client.Handler{})
	if _, err := c.Subscribe([]string{"SELECT * FROM users"}); !errors.Is(err, client.ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}

func TestCallReducerEncodesArgs(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c := client.New(loadSchema(t), client.Config{}, client.Handler{})
	c.Connect(tr)

	if _, err := c.CallReducer("set_name", bsatn.Product{
		{Name: "id", Value: bsatn.U32(1)},
		{Name: "name", Value: bsatn.String("Zoe")},
	}); err != nil {
		t.Fatalf("call: %v", err)
	}

	want := wire.EncodeClientMessage(&wire.CallReducer{
		RequestID: 1,
		Reducer:   "set_name",
		Args:      user(1, "Zoe"),
	})
	if string(tr.sent[0]) != string(want) {
		t.Fatalf("sent % X, want % X", tr.sent[0], want)
	}
}

func TestCallUnknownReducer(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c := client.New(loadSchema(t), client.Config{}, client.Handler{})
	c.Connect(tr)

	if _, err := c.CallReducer("nope", nil); !errors.Is(err, client.ErrUnknownReducer) {
		t.Fatalf("got %v, want ErrUnknownReducer", err)
	}
	if len(tr.sent) != 0 {
		t.Fatal("nothing should have been sent")
	}
}

func TestRowCallbacksAndCache(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	frame, _, _ := initialConnectionFrame("tok")
	tr.push(frame)
	tr.push(subscribeAppliedFrame(1, 1, user(1, "Alice"), user(2, "Bob")))
	tr.push(transactionFrame(
		[][]byte{user(1, "Alicia")},
		[][]byte{user(1, "Alice"), user(2, "Bob")},
	))

	var events []string
	c := client.New(loadSchema(t), client.Config{}, client.Handler{
		OnInsert: func(table string, r bsatn.Product) {
			events = append(events, "insert")
		},
		OnUpdate: func(table string, oldRow, newRow bsatn.Product) {
			events = append(events, "update")
		},
		OnDelete: func(table string, r bsatn.Product) {
			events = append(events, "delete")
		},
		OnSubscribeApplied: func(table string, count int) {
			events = append(events, "applied")
			if table != "users" || count != 2 {
				t.Errorf("got applied(%s, %d), want (users, 2)", table, count)
			}
		},
	})
	c.Connect(tr)

	for i := 0; i < 3; i++ {
		if err := c.FrameTick(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	want := []string{"insert", "insert", "applied", "update", "delete"}
	if len(events) != len(want) {
		t.Fatalf("got events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: got %q, want %q", i, events[i], want[i])
		}
	}

	if c.Count("users") != 1 {
		t.Fatalf("got %d cached rows, want 1", c.Count("users"))
	}
	type userRow struct {
		ID   uint32
		Name string
	}
	var u userRow
	found, err := c.FindTyped("users", bsatn.U32(1), &u)
	if err != nil || !found {
		t.Fatalf("find typed: (%v, %v)", found, err)
	}
	if u.Name != "Alicia" {
		t.Fatalf("got %q, want Alicia", u.Name)
	}

	var all []userRow
	if err := c.GetTyped("users", &all); err != nil {
		t.Fatalf("get typed: %v", err)
	}
	if len(all) != 1 || all[0].ID != 1 {
		t.Fatalf("got %+v", all)
	}
}

func TestReducerResultAfterEmbeddedTransaction(t *testing.T) {
	t.Parallel()

	// reducer_result ok with an embedded transaction inserting one row.
	var e bsatn.Encoder
	e.WriteU8(0x00)
	e.WriteU8(6)
	e.WriteU32(5)
	e.WriteI64(1234)
	e.WriteU8(0)      // ok
	e.WriteBytes(nil) // empty return value
	e.WriteU32(1)     // one query set update
	e.WriteU32(1)     // query_set_id
	e.WriteU32(1)     // one table
	e.WriteString("users")
	e.WriteU32(1)
	e.WriteU8(0) // persistent
	appendRows(&e, user(3, "Cara"))
	appendRows(&e) // no deletes

	tr := &fakeTransport{}
	tr.push(e.Bytes())

	var order []string
	c := client.New(loadSchema(t), client.Config{}, client.Handler{
		OnInsert: func(table string, r bsatn.Product) {
			order = append(order, "insert")
		},
		OnReducerResult: func(requestID uint32, outcome wire.ReducerOutcome) {
			order = append(order, "result")
			if requestID != 5 || outcome.Kind != wire.ReducerOK {
				t.Errorf("got (%d, %s)", requestID, outcome.Kind)
			}
		},
	})
	c.Connect(tr)

	if err := c.FrameTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(order) != 2 || order[0] != "insert" || order[1] != "result" {
		t.Fatalf("got order %v, want [insert result]", order)
	}
	if c.Count("users") != 1 {
		t.Fatal("embedded transaction not applied")
	}
}

func TestMalformedFrameIsDroppedNotFatal(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	frame, _, _ := initialConnectionFrame("tok")
	tr.push(frame)
	tr.push([]byte{0x00, 0x63}) // unknown message tag

	var errs int
	c := client.New(loadSchema(t), client.Config{}, client.Handler{
		OnError: func(err error) { errs++ },
	})
	c.Connect(tr)

	if err := c.FrameTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if err := c.FrameTick(); err != nil {
		t.Fatalf("malformed frame should not end the loop: %v", err)
	}
	if errs != 1 {
		t.Fatalf("got %d OnError calls, want 1", errs)
	}
	if got := c.Conn().State(); got != client.StateAuthenticated {
		t.Fatalf("got state %s, want authenticated", got)
	}
}

func TestSubscriptionErrorViaHandler(t *testing.T) {
	t.Parallel()

	var e bsatn.Encoder
	e.WriteU8(0x00)
	e.WriteU8(3)
	e.WriteU8(1) // no request id
	e.WriteU32(4)
	e.WriteString("table dropped")

	tr := &fakeTransport{}
	tr.push(e.Bytes())

	var got string
	c := client.New(loadSchema(t), client.Config{}, client.Handler{
		OnError: func(err error) { got = err.Error() },
	})
	c.Connect(tr)

	if err := c.FrameTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got == "" {
		t.Fatal("subscription error not delivered")
	}
}

func TestCloseEmitsNothing(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	var disconnects int
	c := client.New(loadSchema(t), client.Config{}, client.Handler{
		OnDisconnect: func(error) { disconnects++ },
	})
	c.Connect(tr)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !tr.closed {
		t.Fatal("transport not closed")
	}
	if got := c.Conn().State(); got != client.StateDisconnected {
		t.Fatalf("got state %s, want disconnected", got)
	}
	if disconnects != 0 {
		t.Fatalf("got %d OnDisconnect calls, want 0", disconnects)
	}
}

func TestBackoffSequence(t *testing.T) {
	t.Parallel()

	b := client.Backoff{Base: time.Second, Max: 5 * time.Second}
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		3 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for n, w := range want {
		if got := b.Delay(n); got != w {
			t.Fatalf("attempt %d: got %s, want %s", n, got, w)
		}
	}
}

func TestReconnectCounter(t *testing.T) {
	t.Parallel()

	conn := client.NewConn(client.Config{MaxReconnectAttempts: 2})
	conn.Attach(&fakeTransport{})
	if conn.ShouldReconnect() {
		t.Fatal("no disconnect yet")
	}

	conn.RecordDisconnect(io.EOF)
	if !conn.ShouldReconnect() {
		t.Fatal("first disconnect should allow reconnect")
	}
	if got := conn.ReconnectDelay(); got != client.DefaultBackoff.Base {
		t.Fatalf("got delay %s, want %s", got, client.DefaultBackoff.Base)
	}

	conn.RecordDisconnect(io.EOF)
	if !conn.ShouldReconnect() {
		t.Fatal("second disconnect should allow reconnect")
	}
	conn.RecordDisconnect(io.EOF)
	if conn.ShouldReconnect() {
		t.Fatal("attempt cap exceeded")
	}

	// A successful connect resets the counter.
	conn.Attach(&fakeTransport{})
	if conn.Attempts() != 0 {
		t.Fatalf("got %d attempts after connect, want 0", conn.Attempts())
	}
}

func TestConnURL(t *testing.T) {
	t.Parallel()

	conn := client.NewConn(client.Config{
		Host:        "localhost:3000",
		Database:    "chat",
		Compression: wire.CompressionGzip,
	})
	want := "ws://localhost:3000/v1/database/chat/subscribe?compression=Gzip"
	if got := conn.URL(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
