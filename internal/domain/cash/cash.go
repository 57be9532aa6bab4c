// Package cash manages cash register sessions: one open session per store,
// cash in/out movements, and the payments recorded against a session.
package cash

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a session.
type Status string

// Session states.
const (
	StatusOpen   Status = "abierta"
	StatusClosed Status = "cerrada"
)

// MovementKind is the direction of a cash movement.
type MovementKind string

// Cash movement kinds.
const (
	MovementEntrada MovementKind = "entrada"
	MovementSalida  MovementKind = "salida"
)

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	return k == MovementEntrada || k == MovementSalida
}

var (
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("cash session not found")
	// ErrNoOpenSession is returned when a store has no open session.
	ErrNoOpenSession = errors.New("no open cash session")
	// ErrSessionAlreadyOpen is returned when opening a second session for a store.
	ErrSessionAlreadyOpen = errors.New("cash session already open for store")
	// ErrSessionClosed is returned when mutating a closed session.
	ErrSessionClosed = errors.New("cash session is closed")
	// ErrInsufficientCash is returned when a salida exceeds the cash in the drawer.
	ErrInsufficientCash = errors.New("insufficient cash in session")
	// ErrPendingOrders is returned when closing a session that still has draft orders.
	ErrPendingOrders = errors.New("cash session has pending orders")
	// ErrInvalid is wrapped by every *ValidationError.
	ErrInvalid = errors.New("invalid cash request")
)

// ValidationError describes a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// InvalidField returns the offending field.
func (e *ValidationError) InvalidField() string { return e.Field }

// Session is a cash register accounting period for a store.
type Session struct {
	ID      string
	StoreID string
	Number  string
	Status  Status

	OpeningCash decimal.Decimal
	ClosingCash decimal.NullDecimal
	Difference  decimal.NullDecimal
	OpeningNote string
	ClosingNote string
	OpenedBy    string
	ClosedBy    string
	OpenedAt    time.Time
	ClosedAt    *time.Time

	TotalSales    decimal.Decimal
	TotalCash     decimal.Decimal
	TotalCard     decimal.Decimal
	TotalTransfer decimal.Decimal
	CashIn        decimal.Decimal
	CashOut       decimal.Decimal
}

// Open reports whether the session accepts movements and payments.
func (s *Session) Open() bool {
	return s.Status == StatusOpen
}

// ExpectedCash is the cash that should be in the drawer.
func (s *Session) ExpectedCash() decimal.Decimal {
	return s.OpeningCash.Add(s.TotalCash).Add(s.CashIn).Sub(s.CashOut)
}

// Movement is a cash entry or withdrawal unrelated to orders. Movements are
// append-only.
type Movement struct {
	ID        string
	SessionID string
	Kind      MovementKind
	Amount    decimal.Decimal
	Reason    string
	User      string
	CreatedAt time.Time
}

// Receipt is a paid order as seen by the cash register.
type Receipt struct {
	Total    decimal.Decimal
	Cash     decimal.Decimal
	Card     decimal.Decimal
	Transfer decimal.Decimal
}

// Filter narrows a session listing. Zero fields match everything.
type Filter struct {
	StoreID string
	Status  Status
	From    time.Time
	To      time.Time
}

// Repository is session storage as seen from inside a unit of work.
type Repository interface {
	// LockSession returns the session locked for the rest of the unit of work.
	LockSession(ctx context.Context, id string) (*Session, error)
	// LockActive returns the open session of a store, locked, or
	// ErrNoOpenSession.
	LockActive(ctx context.Context, storeID string) (*Session, error)
	// NextNumber returns the next session sequence number for a store.
	NextNumber(ctx context.Context, storeID string) (int, error)
	// CreateSession stores a new open session. It returns
	// ErrSessionAlreadyOpen if the store already has one.
	CreateSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
	AppendMovement(ctx context.Context, m *Movement) error
	// PendingOrders counts the draft orders of a session.
	PendingOrders(ctx context.Context, sessionID string) (int, error)
}

// Reader reads sessions outside of a unit of work.
type Reader interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	ActiveSession(ctx context.Context, storeID string) (*Session, error)
	ListSessions(ctx context.Context, f Filter) ([]Session, error)
	ListMovements(ctx context.Context, sessionID string) ([]Movement, error)
}

// Store gives the manager transactional access to its storage.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
