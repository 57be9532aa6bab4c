package cash

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/caja/internal/domain/catalog"
)

// OpenRequest opens a session.
type OpenRequest struct {
	StoreID     string
	OpeningCash decimal.Decimal
	Note        string
	User        string
}

// CloseRequest closes a session with the counted cash.
type CloseRequest struct {
	SessionID   string
	ClosingCash decimal.Decimal
	Note        string
	User        string
}

// MovementRequest registers a cash movement.
type MovementRequest struct {
	SessionID string
	Kind      MovementKind
	Amount    decimal.Decimal
	Reason    string
	User      string
}

// Manager owns the session lifecycle.
type Manager struct {
	store  Store
	stores catalog.StoreResolver
	now    func() time.Time
}

// NewManager creates a Manager.
func NewManager(store Store, stores catalog.StoreResolver) *Manager {
	return &Manager{store: store, stores: stores, now: time.Now}
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Open opens a session for a store. It fails with ErrSessionAlreadyOpen if
// the store already has an open session.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if strings.TrimSpace(req.StoreID) == "" {
		return nil, &ValidationError{Field: "tienda_id", Reason: "required"}
	}
	if req.OpeningCash.IsNegative() {
		return nil, &ValidationError{Field: "efectivo_apertura", Reason: "must not be negative"}
	}
	store, err := m.stores.GetStore(ctx, req.StoreID)
	if err != nil {
		return nil, errors.Wrapf(err, "get store %s", req.StoreID)
	}

	var s *Session
	if err := m.store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		switch _, err := repo.LockActive(ctx, store.ID); {
		case err == nil:
			return ErrSessionAlreadyOpen
		case !errors.Is(err, ErrNoOpenSession):
			return errors.Wrap(err, "lock active session")
		}

		n, err := repo.NextNumber(ctx, store.ID)
		if err != nil {
			return errors.Wrap(err, "next session number")
		}
		s = &Session{
			ID:          uuid.NewString(),
			StoreID:     store.ID,
			Number:      sessionNumber(store, n),
			Status:      StatusOpen,
			OpeningCash: req.OpeningCash,
			OpeningNote: strings.TrimSpace(req.Note),
			OpenedBy:    req.User,
			OpenedAt:    m.now(),
		}
		return repo.CreateSession(ctx, s)
	}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Cash session opened",
		zap.String("session_id", s.ID),
		zap.String("number", s.Number),
		zap.String("store_id", s.StoreID),
		zap.String("opening_cash", s.OpeningCash.StringFixed(2)),
	)
	return s, nil
}

func sessionNumber(store *catalog.Store, n int) string {
	code := store.Code
	if code == "" {
		code = store.ID
	}
	return fmt.Sprintf("CAJA-%s-%06d", code, n)
}

// Close closes an open session. The session must have no draft orders.
func (m *Manager) Close(ctx context.Context, req CloseRequest) (*Session, error) {
	if req.ClosingCash.IsNegative() {
		return nil, &ValidationError{Field: "efectivo_cierre", Reason: "must not be negative"}
	}

	var s *Session
	if err := m.store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		if s, err = m.lockOpen(ctx, repo, req.SessionID); err != nil {
			return err
		}
		pending, err := repo.PendingOrders(ctx, s.ID)
		if err != nil {
			return errors.Wrap(err, "count pending orders")
		}
		if pending > 0 {
			return errors.Wrapf(ErrPendingOrders, "%d draft orders", pending)
		}

		now := m.now()
		s.Status = StatusClosed
		s.ClosingCash = decimal.NewNullDecimal(req.ClosingCash)
		s.Difference = decimal.NewNullDecimal(req.ClosingCash.Sub(s.ExpectedCash()))
		s.ClosingNote = strings.TrimSpace(req.Note)
		s.ClosedBy = req.User
		s.ClosedAt = &now
		return repo.UpdateSession(ctx, s)
	}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Cash session closed",
		zap.String("session_id", s.ID),
		zap.String("expected_cash", s.ExpectedCash().StringFixed(2)),
		zap.String("closing_cash", s.ClosingCash.Decimal.StringFixed(2)),
		zap.String("difference", s.Difference.Decimal.StringFixed(2)),
	)
	return s, nil
}

// RegisterMovement records cash put into or taken out of the drawer.
func (m *Manager) RegisterMovement(ctx context.Context, req MovementRequest) (*Movement, error) {
	if !req.Kind.Valid() {
		return nil, &ValidationError{Field: "tipo", Reason: "must be entrada or salida"}
	}
	if !req.Amount.IsPositive() {
		return nil, &ValidationError{Field: "monto", Reason: "must be greater than 0"}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, &ValidationError{Field: "motivo", Reason: "required"}
	}

	mv := &Movement{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Kind:      req.Kind,
		Amount:    req.Amount,
		Reason:    reason,
		User:      req.User,
	}
	if err := m.store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		s, err := m.lockOpen(ctx, repo, req.SessionID)
		if err != nil {
			return err
		}
		switch req.Kind {
		case MovementEntrada:
			s.CashIn = s.CashIn.Add(req.Amount)
		case MovementSalida:
			if req.Amount.GreaterThan(s.ExpectedCash()) {
				return errors.Wrapf(ErrInsufficientCash, "expected %s, requested %s",
					s.ExpectedCash().StringFixed(2), req.Amount.StringFixed(2))
			}
			s.CashOut = s.CashOut.Add(req.Amount)
		}
		mv.CreatedAt = m.now()
		if err := repo.AppendMovement(ctx, mv); err != nil {
			return errors.Wrap(err, "append movement")
		}
		return repo.UpdateSession(ctx, s)
	}); err != nil {
		return nil, err
	}
	return mv, nil
}

// RequireOpen locks a session inside a caller owned unit of work and checks
// that it is open.
func (m *Manager) RequireOpen(ctx context.Context, repo Repository, sessionID string) (*Session, error) {
	return m.lockOpen(ctx, repo, sessionID)
}

// RecordPayment adds a paid order to an open session inside a caller owned
// unit of work.
func (m *Manager) RecordPayment(ctx context.Context, repo Repository, sessionID string, r Receipt) (*Session, error) {
	s, err := m.lockOpen(ctx, repo, sessionID)
	if err != nil {
		return nil, err
	}
	s.TotalSales = s.TotalSales.Add(r.Total)
	s.TotalCash = s.TotalCash.Add(r.Cash)
	s.TotalCard = s.TotalCard.Add(r.Card)
	s.TotalTransfer = s.TotalTransfer.Add(r.Transfer)
	if err := repo.UpdateSession(ctx, s); err != nil {
		return nil, errors.Wrap(err, "update session")
	}
	return s, nil
}

func (m *Manager) lockOpen(ctx context.Context, repo Repository, id string) (*Session, error) {
	s, err := repo.LockSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Open() {
		return nil, ErrSessionClosed
	}
	return s, nil
}

// Get returns a session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.GetSession(ctx, id)
}

// Active returns the open session of a store or ErrNoOpenSession.
func (m *Manager) Active(ctx context.Context, storeID string) (*Session, error) {
	return m.store.ActiveSession(ctx, storeID)
}

// List lists sessions, newest first.
func (m *Manager) List(ctx context.Context, f Filter) ([]Session, error) {
	return m.store.ListSessions(ctx, f)
}

// Movements lists the cash movements of a session in the order they were
// registered.
func (m *Manager) Movements(ctx context.Context, sessionID string) ([]Movement, error) {
	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return m.store.ListMovements(ctx, sessionID)
}
