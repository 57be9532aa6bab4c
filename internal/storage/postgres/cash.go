package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/caja/internal/domain/cash"
)

const sessionColumns = `id, store_id, number, status, opening_cash, closing_cash, difference,
	opening_note, closing_note, opened_by, closed_by, opened_at, closed_at,
	total_sales, total_cash, total_card, total_transfer, cash_in, cash_out`

const (
	getSessionSQL    = `SELECT ` + sessionColumns + ` FROM cash_sessions WHERE id = $1`
	lockSessionSQL   = getSessionSQL + ` FOR UPDATE`
	activeSessionSQL = `SELECT ` + sessionColumns + ` FROM cash_sessions WHERE store_id = $1 AND status = 'abierta'`
	lockActiveSQL    = activeSessionSQL + ` FOR UPDATE`

	listSessionsSQL = `SELECT ` + sessionColumns + ` FROM cash_sessions
		WHERE ($1::text = '' OR store_id = $1)
		  AND ($2::text = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR opened_at >= $3)
		  AND ($4::timestamptz IS NULL OR opened_at <= $4)
		ORDER BY opened_at DESC`

	createSessionSQL = `INSERT INTO cash_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	updateSessionSQL = `UPDATE cash_sessions SET
			status = $2, closing_cash = $3, difference = $4, closing_note = $5, closed_by = $6, closed_at = $7,
			total_sales = $8, total_cash = $9, total_card = $10, total_transfer = $11, cash_in = $12, cash_out = $13
		WHERE id = $1`

	appendCashMovementSQL = `INSERT INTO cash_movements (id, session_id, kind, amount, reason, user_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	listCashMovementsSQL = `SELECT id, session_id, kind, amount, reason, user_name, created_at
		FROM cash_movements WHERE session_id = $1 ORDER BY created_at, id`

	pendingOrdersSQL = `SELECT count(*) FROM orders WHERE session_id = $1 AND status = 'pendiente'`
)

const openSessionConstraint = "cash_sessions_open_store_idx"

type cashStore struct{ s *Store }

type cashTx struct{ tx pgx.Tx }

var (
	_ cash.Store      = cashStore{}
	_ cash.Repository = cashTx{}
)

func (s cashStore) InTx(ctx context.Context, fn func(ctx context.Context, repo cash.Repository) error) error {
	return s.s.inTx(ctx, func(tx pgx.Tx) error { return fn(ctx, cashTx{tx}) })
}

func (s cashStore) GetSession(ctx context.Context, id string) (*cash.Session, error) {
	return selectSession(ctx, s.s.pool, getSessionSQL, id, cash.ErrSessionNotFound)
}

func (s cashStore) ActiveSession(ctx context.Context, storeID string) (*cash.Session, error) {
	return selectSession(ctx, s.s.pool, activeSessionSQL, storeID, cash.ErrNoOpenSession)
}

func (s cashStore) ListSessions(ctx context.Context, f cash.Filter) ([]cash.Session, error) {
	rows, err := s.s.pool.Query(ctx, listSessionsSQL, f.StoreID, string(f.Status), nullTime(f.From), nullTime(f.To))
	if err != nil {
		return nil, fmt.Errorf("listing cash sessions: %w", err)
	}
	return pgx.CollectRows(rows, scanSession)
}

func (s cashStore) ListMovements(ctx context.Context, sessionID string) ([]cash.Movement, error) {
	rows, err := s.s.pool.Query(ctx, listCashMovementsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing cash movements: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cash.Movement, error) {
		var (
			m    cash.Movement
			kind string
		)
		err := row.Scan(&m.ID, &m.SessionID, &kind, &m.Amount, &m.Reason, &m.User, &m.CreatedAt)
		m.Kind = cash.MovementKind(kind)
		return m, err
	})
}

func (t cashTx) LockSession(ctx context.Context, id string) (*cash.Session, error) {
	return selectSession(ctx, t.tx, lockSessionSQL, id, cash.ErrSessionNotFound)
}

func (t cashTx) LockActive(ctx context.Context, storeID string) (*cash.Session, error) {
	return selectSession(ctx, t.tx, lockActiveSQL, storeID, cash.ErrNoOpenSession)
}

func (t cashTx) NextNumber(ctx context.Context, storeID string) (int, error) {
	return nextSequence(ctx, t.tx, "cash_session", storeID)
}

func (t cashTx) CreateSession(ctx context.Context, s *cash.Session) error {
	_, err := t.tx.Exec(ctx, createSessionSQL,
		s.ID, s.StoreID, s.Number, string(s.Status), s.OpeningCash, s.ClosingCash, s.Difference,
		s.OpeningNote, s.ClosingNote, s.OpenedBy, s.ClosedBy, s.OpenedAt, s.ClosedAt,
		s.TotalSales, s.TotalCash, s.TotalCard, s.TotalTransfer, s.CashIn, s.CashOut,
	)
	if err != nil {
		if isUniqueViolation(err, openSessionConstraint) {
			return cash.ErrSessionAlreadyOpen
		}
		return fmt.Errorf("creating cash session: %w", err)
	}
	return nil
}

func (t cashTx) UpdateSession(ctx context.Context, s *cash.Session) error {
	tag, err := t.tx.Exec(ctx, updateSessionSQL,
		s.ID, string(s.Status), s.ClosingCash, s.Difference, s.ClosingNote, s.ClosedBy, s.ClosedAt,
		s.TotalSales, s.TotalCash, s.TotalCard, s.TotalTransfer, s.CashIn, s.CashOut,
	)
	if err != nil {
		return fmt.Errorf("updating cash session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cash.ErrSessionNotFound
	}
	return nil
}

func (t cashTx) AppendMovement(ctx context.Context, m *cash.Movement) error {
	_, err := t.tx.Exec(ctx, appendCashMovementSQL,
		m.ID, m.SessionID, string(m.Kind), m.Amount, m.Reason, m.User, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending cash movement: %w", err)
	}
	return nil
}

func (t cashTx) PendingOrders(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, pendingOrdersSQL, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending orders: %w", err)
	}
	return n, nil
}

func selectSession(ctx context.Context, q querier, sql, arg string, notFound error) (*cash.Session, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting cash session: %w", err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("getting cash session: %w", err)
	}
	return &s, nil
}

func scanSession(row pgx.CollectableRow) (cash.Session, error) {
	var (
		s      cash.Session
		status string
	)
	err := row.Scan(
		&s.ID, &s.StoreID, &s.Number, &status, &s.OpeningCash, &s.ClosingCash, &s.Difference,
		&s.OpeningNote, &s.ClosingNote, &s.OpenedBy, &s.ClosedBy, &s.OpenedAt, &s.ClosedAt,
		&s.TotalSales, &s.TotalCash, &s.TotalCard, &s.TotalTransfer, &s.CashIn, &s.CashOut,
	)
	s.Status = cash.Status(status)
	return s, err
}
