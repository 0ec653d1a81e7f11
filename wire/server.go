package wire

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mickamy/stdb-go/bsatn"
)

// Server message tags (after the compression envelope is stripped).
const (
	serverTagInitialConnection  = 0
	serverTagSubscribeApplied   = 1
	serverTagUnsubscribeApplied = 2
	serverTagSubscriptionError  = 3
	serverTagTransactionUpdate  = 4
	serverTagOneOffQueryResult  = 5
	serverTagReducerResult      = 6
	serverTagProcedureResult    = 7
)

// ServerMessage is a decoded server frame. RowList data and []byte leaves
// may alias the frame buffer passed to DecodeServerMessage; callers that
// retain them past the next receive must copy (the cache does).
type ServerMessage interface {
	serverMessage()
}

// TableRows pairs a table name with one row list, the element of the
// protocol's query_rows.
type TableRows struct {
	TableName string
	Rows      RowList
}

// TableUpdateRows is one block of row changes for a table: either
// persistent rows to apply to the cache, or transient event rows that
// bypass it.
type TableUpdateRows struct {
	Transient bool
	Inserts   RowList // persistent only
	Deletes   RowList // persistent only
	Events    RowList // transient only
}

// TableUpdate carries all row change blocks for one table.
type TableUpdate struct {
	TableName string
	Rows      []TableUpdateRows
}

// QuerySetUpdate carries the table updates one transaction produced for
// one query set.
type QuerySetUpdate struct {
	QuerySetID uint32
	Tables     []TableUpdate
}

// InitialConnection is the first frame after the transport opens; it
// carries the credentials the server issued for this connection.
type InitialConnection struct {
	Identity     [32]byte
	ConnectionID uuid.UUID
	Token        string
}

// SubscribeApplied confirms a subscribe and carries the initial rows of
// the new query set.
type SubscribeApplied struct {
	RequestID  uint32
	QuerySetID uint32
	Rows       []TableRows
}

// UnsubscribeApplied confirms an unsubscribe. Rows is non-nil only when
// the client asked for the dropped rows.
type UnsubscribeApplied struct {
	RequestID  uint32
	QuerySetID uint32
	Rows       []TableRows
	HasRows    bool
}

// SubscriptionError reports a failed or broken subscription. RequestID is
// nil when the error is not tied to a specific request.
type SubscriptionError struct {
	RequestID  *uint32
	QuerySetID uint32
	Message    string
}

// TransactionUpdate carries the full row-change set of one server-side
// transaction.
type TransactionUpdate struct {
	Updates []QuerySetUpdate
}

// OneOffResult is the result half of a one-off query reply.
type OneOffResult struct {
	OK   bool
	Rows []TableRows // when OK
	Err  string      // when !OK
}

// OneOffQueryResult answers a OneOffQuery.
type OneOffQueryResult struct {
	RequestID uint32
	Result    OneOffResult
}

// ReducerOutcomeKind enumerates the reducer_outcome variants.
type ReducerOutcomeKind int

const (
	ReducerOK ReducerOutcomeKind = iota
	ReducerOKEmpty
	ReducerErr
	ReducerInternalError
)

func (k ReducerOutcomeKind) String() string {
	switch k {
	case ReducerOK:
		return "ok"
	case ReducerOKEmpty:
		return "ok_empty"
	case ReducerErr:
		return "err"
	case ReducerInternalError:
		return "internal_error"
	}
	return fmt.Sprintf("UnknownOutcome(%d)", int(k))
}

// ReducerOutcome is the tagged result of a reducer call. For ReducerOK the
// embedded Transaction is applied to the cache exactly as a standalone
// TransactionUpdate would be.
type ReducerOutcome struct {
	Kind        ReducerOutcomeKind
	ReturnValue []byte           // ReducerOK
	Transaction []QuerySetUpdate // ReducerOK
	ErrValue    []byte           // ReducerErr
	Message     string           // ReducerInternalError
}

// ReducerResult answers a CallReducer.
type ReducerResult struct {
	RequestID uint32
	Timestamp int64
	Outcome   ReducerOutcome
}

// ProcedureStatusKind enumerates the procedure_status variants.
type ProcedureStatusKind int

const (
	ProcedureOK ProcedureStatusKind = iota
	ProcedureErr
	ProcedureInternalError
)

// ProcedureStatus is the tagged result of a procedure call.
type ProcedureStatus struct {
	Kind        ProcedureStatusKind
	ReturnValue []byte // ProcedureOK
	ErrValue    []byte // ProcedureErr
	Message     string // ProcedureInternalError
}

// ProcedureResult answers a CallProcedure.
type ProcedureResult struct {
	Status       ProcedureStatus
	Timestamp    int64
	HostDuration int64
	RequestID    uint32
}

func (*InitialConnection) serverMessage()  {}
func (*SubscribeApplied) serverMessage()   {}
func (*UnsubscribeApplied) serverMessage() {}
func (*SubscriptionError) serverMessage()  {}
func (*TransactionUpdate) serverMessage()  {}
func (*OneOffQueryResult) serverMessage()  {}
func (*ReducerResult) serverMessage()      {}
func (*ProcedureResult) serverMessage()    {}

// DecodeServerMessage strips the compression envelope from frame, decodes
// the inner message, and requires the frame to be consumed exactly.
func DecodeServerMessage(frame []byte) (ServerMessage, error) {
	payload, err := stripEnvelope(frame)
	if err != nil {
		return nil, err
	}
	d := bsatn.NewDecoder(payload)
	tag, err := d.ReadU8()
	if err != nil {
		return nil, ErrEmptyFrame
	}
	var msg ServerMessage
	switch tag {
	case serverTagInitialConnection:
		msg, err = decodeInitialConnection(d)
	case serverTagSubscribeApplied:
		msg, err = decodeSubscribeApplied(d)
	case serverTagUnsubscribeApplied:
		msg, err = decodeUnsubscribeApplied(d)
	case serverTagSubscriptionError:
		msg, err = decodeSubscriptionError(d)
	case serverTagTransactionUpdate:
		msg, err = decodeTransactionUpdate(d)
	case serverTagOneOffQueryResult:
		msg, err = decodeOneOffQueryResult(d)
	case serverTagReducerResult:
		msg, err = decodeReducerResult(d)
	case serverTagProcedureResult:
		msg, err = decodeProcedureResult(d)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageTag, tag)
	}
	if err != nil {
		return nil, err
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("wire: %d trailing bytes after message tag %d", d.Remaining(), tag)
	}
	return msg, nil
}

func decodeInitialConnection(d *bsatn.Decoder) (*InitialConnection, error) {
	m := &InitialConnection{}
	identity, err := d.ReadRaw(32)
	if err != nil {
		return nil, err
	}
	copy(m.Identity[:], identity)
	connID, err := d.ReadRaw(16)
	if err != nil {
		return nil, err
	}
	copy(m.ConnectionID[:], connID)
	if m.Token, err = d.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeQueryRows(d *bsatn.Decoder) ([]TableRows, error) {
	n, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]TableRows, 0, min(int(n), d.Remaining()))
	for i := uint32(0); i < n; i++ {
		var tr TableRows
		if tr.TableName, err = d.ReadString(); err != nil {
			return nil, err
		}
		if tr.Rows, err = decodeRowList(d); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

func decodeSubscribeApplied(d *bsatn.Decoder) (*SubscribeApplied, error) {
	m := &SubscribeApplied{}
	var err error
	if m.RequestID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.QuerySetID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.Rows, err = decodeQueryRows(d); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeUnsubscribeApplied(d *bsatn.Decoder) (*UnsubscribeApplied, error) {
	m := &UnsubscribeApplied{}
	var err error
	if m.RequestID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.QuerySetID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	tag, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		m.HasRows = true
		if m.Rows, err = decodeQueryRows(d); err != nil {
			return nil, err
		}
	case 1:
	default:
		return nil, bsatn.ErrInvalidOptionTag
	}
	return m, nil
}

func decodeSubscriptionError(d *bsatn.Decoder) (*SubscriptionError, error) {
	m := &SubscriptionError{}
	tag, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		id, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		m.RequestID = &id
	case 1:
	default:
		return nil, bsatn.ErrInvalidOptionTag
	}
	if m.QuerySetID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.Message, err = d.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeTableUpdateRows(d *bsatn.Decoder) (TableUpdateRows, error) {
	tag, err := d.ReadU8()
	if err != nil {
		return TableUpdateRows{}, err
	}
	var tur TableUpdateRows
	switch tag {
	case 0: // persistent
		if tur.Inserts, err = decodeRowList(d); err != nil {
			return TableUpdateRows{}, err
		}
		if tur.Deletes, err = decodeRowList(d); err != nil {
			return TableUpdateRows{}, err
		}
	case 1: // event
		tur.Transient = true
		if tur.Events, err = decodeRowList(d); err != nil {
			return TableUpdateRows{}, err
		}
	default:
		return TableUpdateRows{}, fmt.Errorf("%w: %d", ErrUnknownTableUpdateTag, tag)
	}
	return tur, nil
}

func decodeQuerySetUpdates(d *bsatn.Decoder) ([]QuerySetUpdate, error) {
	n, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	updates := make([]QuerySetUpdate, 0, min(int(n), d.Remaining()))
	for i := uint32(0); i < n; i++ {
		var qsu QuerySetUpdate
		if qsu.QuerySetID, err = d.ReadU32(); err != nil {
			return nil, err
		}
		tn, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		qsu.Tables = make([]TableUpdate, 0, min(int(tn), d.Remaining()))
		for j := uint32(0); j < tn; j++ {
			var tu TableUpdate
			if tu.TableName, err = d.ReadString(); err != nil {
				return nil, err
			}
			rn, err := d.ReadU32()
			if err != nil {
				return nil, err
			}
			tu.Rows = make([]TableUpdateRows, 0, min(int(rn), d.Remaining()))
			for k := uint32(0); k < rn; k++ {
				tur, err := decodeTableUpdateRows(d)
				if err != nil {
					return nil, err
				}
				tu.Rows = append(tu.Rows, tur)
			}
			qsu.Tables = append(qsu.Tables, tu)
		}
		updates = append(updates, qsu)
	}
	return updates, nil
}

func decodeTransactionUpdate(d *bsatn.Decoder) (*TransactionUpdate, error) {
	updates, err := decodeQuerySetUpdates(d)
	if err != nil {
		return nil, err
	}
	return &TransactionUpdate{Updates: updates}, nil
}

func decodeOneOffQueryResult(d *bsatn.Decoder) (*OneOffQueryResult, error) {
	m := &OneOffQueryResult{}
	var err error
	if m.RequestID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	tag, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		m.Result.OK = true
		if m.Result.Rows, err = decodeQueryRows(d); err != nil {
			return nil, err
		}
	case 1:
		if m.Result.Err, err = d.ReadString(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownOneOffResult, tag)
	}
	return m, nil
}

func decodeReducerResult(d *bsatn.Decoder) (*ReducerResult, error) {
	m := &ReducerResult{}
	var err error
	if m.RequestID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	if m.Timestamp, err = d.ReadI64(); err != nil {
		return nil, err
	}
	tag, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		m.Outcome.Kind = ReducerOK
		if m.Outcome.ReturnValue, err = d.ReadBytes(); err != nil {
			return nil, err
		}
		if m.Outcome.Transaction, err = decodeQuerySetUpdates(d); err != nil {
			return nil, err
		}
	case 1:
		m.Outcome.Kind = ReducerOKEmpty
	case 2:
		m.Outcome.Kind = ReducerErr
		if m.Outcome.ErrValue, err = d.ReadBytes(); err != nil {
			return nil, err
		}
	case 3:
		m.Outcome.Kind = ReducerInternalError
		if m.Outcome.Message, err = d.ReadString(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownReducerOutcome, tag)
	}
	return m, nil
}

func decodeProcedureResult(d *bsatn.Decoder) (*ProcedureResult, error) {
	m := &ProcedureResult{}
	tag, err := d.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		m.Status.Kind = ProcedureOK
		if m.Status.ReturnValue, err = d.ReadBytes(); err != nil {
			return nil, err
		}
	case 1:
		m.Status.Kind = ProcedureErr
		if m.Status.ErrValue, err = d.ReadBytes(); err != nil {
			return nil, err
		}
	case 2:
		m.Status.Kind = ProcedureInternalError
		if m.Status.Message, err = d.ReadString(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownProcedureStatus, tag)
	}
	if m.Timestamp, err = d.ReadI64(); err != nil {
		return nil, err
	}
	if m.HostDuration, err = d.ReadI64(); err != nil {
		return nil, err
	}
	if m.RequestID, err = d.ReadU32(); err != nil {
		return nil, err
	}
	return m, nil
}
