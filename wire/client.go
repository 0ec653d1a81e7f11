// Package wire defines the client and server message families of the
// subscription protocol: BSATN-encoded bodies behind a one-byte message
// tag, with server frames additionally wrapped in a one-byte compression
// envelope.
package wire

import "github.com/mickamy/stdb-go/bsatn"

// Client message tags.
const (
	clientTagSubscribe     = 0
	clientTagUnsubscribe   = 1
	clientTagOneOffQuery   = 2
	clientTagCallReducer   = 3
	clientTagCallProcedure = 4
)

// unsubscribeFlagSendDroppedRows asks the server to include the rows the
// dropped queries were contributing.
const unsubscribeFlagSendDroppedRows = 0x01

// ClientMessage is a message the client sends to the server. Client frames
// carry no compression envelope.
type ClientMessage interface {
	appendTo(e *bsatn.Encoder)
}

// Subscribe registers a query set: a group of SQL queries addressed
// together by QuerySetID.
type Subscribe struct {
	RequestID  uint32
	QuerySetID uint32
	Queries    []string
}

func (m *Subscribe) appendTo(e *bsatn.Encoder) {
	e.WriteU8(clientTagSubscribe)
	e.WriteU32(m.RequestID)
	e.WriteU32(m.QuerySetID)
	e.WriteU32(uint32(len(m.Queries)))
	for _, q := range m.Queries {
		e.WriteString(q)
	}
}

// Unsubscribe drops a query set.
type Unsubscribe struct {
	RequestID       uint32
	QuerySetID      uint32
	SendDroppedRows bool
}

func (m *Unsubscribe) appendTo(e *bsatn.Encoder) {
	e.WriteU8(clientTagUnsubscribe)
	e.WriteU32(m.RequestID)
	e.WriteU32(m.QuerySetID)
	var flags uint8
	if m.SendDroppedRows {
		flags |= unsubscribeFlagSendDroppedRows
	}
	e.WriteU8(flags)
}

// OneOffQuery runs a single query outside any subscription.
type OneOffQuery struct {
	RequestID uint32
	Query     string
}

func (m *OneOffQuery) appendTo(e *bsatn.Encoder) {
	e.WriteU8(clientTagOneOffQuery)
	e.WriteU32(m.RequestID)
	e.WriteString(m.Query)
}

// CallReducer invokes a named reducer with a BSATN-encoded argument tuple.
type CallReducer struct {
	RequestID uint32
	Reducer   string
	Args      []byte
}

func (m *CallReducer) appendTo(e *bsatn.Encoder) {
	e.WriteU8(clientTagCallReducer)
	e.WriteU32(m.RequestID)
	e.WriteU8(0) // flags, fixed to zero
	e.WriteString(m.Reducer)
	e.WriteBytes(m.Args)
}

// CallProcedure invokes a named procedure with a BSATN-encoded argument
// tuple.
type CallProcedure struct {
	RequestID uint32
	Procedure string
	Args      []byte
}

func (m *CallProcedure) appendTo(e *bsatn.Encoder) {
	e.WriteU8(clientTagCallProcedure)
	e.WriteU32(m.RequestID)
	e.WriteU8(0) // flags, fixed to zero
	e.WriteString(m.Procedure)
	e.WriteBytes(m.Args)
}

// EncodeClientMessage serializes m into a fresh frame ready for the
// transport.
func EncodeClientMessage(m ClientMessage) []byte {
	var e bsatn.Encoder
	m.appendTo(&e)
	return e.Bytes()
}
