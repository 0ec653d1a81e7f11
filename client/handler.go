package client

import (
	"github.com/google/uuid"

	"github.com/mickamy/stdb-go/bsatn"
	"github.com/mickamy/stdb-go/cache"
	"github.com/mickamy/stdb-go/wire"
)

// Handler is the capability set the application provides. Every callback
// is optional; a nil func is skipped. Callbacks run on the consumer
// goroutine, in the deterministic order the cache emitted the changes,
// and all row callbacks of a transaction fire before the reducer-result
// callback that embedded it.
type Handler struct {
	// OnConnect fires once per connection, when the server's
	// initial_connection frame is processed.
	OnConnect func(identity [32]byte, connectionID uuid.UUID, token string)
	// OnDisconnect fires when the transport closes or fails. A nil reason
	// is a clean close.
	OnDisconnect func(reason error)
	// OnSubscribeApplied fires per table after a subscription's initial
	// rows are in the cache.
	OnSubscribeApplied func(table string, count int)
	// OnUnsubscribeApplied fires when a query set is dropped. rows is
	// non-nil only when the unsubscribe asked for the dropped rows.
	OnUnsubscribeApplied func(querySetID uint32, rows []wire.TableRows)
	// OnInsert fires for each row added to the cache.
	OnInsert func(table string, r bsatn.Product)
	// OnDelete fires for each row removed from the cache.
	OnDelete func(table string, r bsatn.Product)
	// OnUpdate fires when a delete and insert at the same primary key
	// collapse into one update.
	OnUpdate func(table string, oldRow, newRow bsatn.Product)
	// OnReducerResult fires for each reducer reply, after any embedded
	// transaction's row callbacks.
	OnReducerResult func(requestID uint32, outcome wire.ReducerOutcome)
	// OnProcedureResult fires for each procedure reply.
	OnProcedureResult func(requestID uint32, status wire.ProcedureStatus)
	// OnQueryResult fires for each one-off query reply.
	OnQueryResult func(requestID uint32, result wire.OneOffResult)
	// OnError fires for non-fatal errors: malformed frames, failed cache
	// applies, and server-reported subscription errors. The connection
	// stays up.
	OnError func(err error)
}

func (h Handler) connect(identity [32]byte, id uuid.UUID, token string) {
	if h.OnConnect != nil {
		h.OnConnect(identity, id, token)
	}
}

func (h Handler) disconnect(reason error) {
	if h.OnDisconnect != nil {
		h.OnDisconnect(reason)
	}
}

func (h Handler) errorf(err error) {
	if h.OnError != nil && err != nil {
		h.OnError(err)
	}
}

// dispatchChanges fans a cache change list out to the row callbacks in
// emission order.
func (h Handler) dispatchChanges(changes []cache.Change) {
	for _, ch := range changes {
		switch ch.Kind {
		case cache.Insert:
			if h.OnInsert != nil {
				h.OnInsert(ch.Table, ch.Row)
			}
		case cache.Delete:
			if h.OnDelete != nil {
				h.OnDelete(ch.Table, ch.OldRow)
			}
		case cache.Update:
			if h.OnUpdate != nil {
				h.OnUpdate(ch.Table, ch.OldRow, ch.Row)
			}
		}
	}
}
