//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"courier/domain"
	"courier/domain/event"
)

type WorkerName string

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker lifecycle
// events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one live connection. Consume must
// never block: a full connection buffer means the event is dropped and
// the client reconciles through the store on its next read.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the process-wide map of live connections. It is the
// single source of truth for "is this user currently reachable".
type IRegistry interface {
	Register(userID string, h Handle) (prev *Handle, wasOnline bool)
	Unregister(userID string, h Handle) bool
	Lookup(userID string) (Handle, bool)
	Snapshot() map[string]domain.Status
	Sinks() []EventSink
}

// Handle identifies one live connection of a user. ConnID disambiguates
// reconnects: a stale disconnect must not evict a newer connection.
type Handle struct {
	ConnID string
	Sink   EventSink
}

// IRouter delivers point-to-point events to the recipient's live
// connection, or reports that no delivery happened.
type IRouter interface {
	RouteMessage(ctx context.Context, recipient string, e event.MessageDelivered) bool
	RouteTyping(ctx context.Context, recipient string, e event.TypingChanged) bool
}
