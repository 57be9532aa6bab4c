package memory

import (
	"context"

	"github.com/xenking/caja/internal/domain/cash"
	"github.com/xenking/caja/internal/domain/order"
)

type cashStore struct{ st *Store }

// cashTx is used with the store lock held.
type cashTx struct{ st *Store }

var (
	_ cash.Store      = cashStore{}
	_ cash.Repository = cashTx{}
)

func (s cashStore) InTx(ctx context.Context, fn func(ctx context.Context, repo cash.Repository) error) error {
	return s.st.inTx(func() error { return fn(ctx, cashTx(s)) })
}

func (s cashStore) GetSession(_ context.Context, id string) (*cash.Session, error) {
	var (
		sess cash.Session
		ok   bool
	)
	s.st.locked(func() { sess, ok = s.st.s.sessions[id] })
	if !ok {
		return nil, cash.ErrSessionNotFound
	}
	return &sess, nil
}

func (s cashStore) ActiveSession(_ context.Context, storeID string) (sess *cash.Session, err error) {
	s.st.locked(func() { sess, err = active(s.st, storeID) })
	return sess, err
}

func active(st *Store, storeID string) (*cash.Session, error) {
	for _, sess := range st.s.sessions {
		if sess.StoreID == storeID && sess.Open() {
			return &sess, nil
		}
	}
	return nil, cash.ErrNoOpenSession
}

func (s cashStore) ListSessions(_ context.Context, f cash.Filter) (out []cash.Session, _ error) {
	s.st.locked(func() {
		for _, sess := range sortedValues(s.st.s.sessions, func(a, b cash.Session) bool {
			return a.OpenedAt.After(b.OpenedAt)
		}) {
			switch {
			case f.StoreID != "" && sess.StoreID != f.StoreID:
			case f.Status != "" && sess.Status != f.Status:
			case !f.From.IsZero() && sess.OpenedAt.Before(f.From):
			case !f.To.IsZero() && sess.OpenedAt.After(f.To):
			default:
				out = append(out, sess)
			}
		}
	})
	return out, nil
}

func (s cashStore) ListMovements(_ context.Context, sessionID string) (out []cash.Movement, _ error) {
	s.st.locked(func() {
		for _, m := range s.st.s.cashMoves {
			if m.SessionID == sessionID {
				out = append(out, m)
			}
		}
	})
	return out, nil
}

func (t cashTx) LockSession(_ context.Context, id string) (*cash.Session, error) {
	sess, ok := t.st.s.sessions[id]
	if !ok {
		return nil, cash.ErrSessionNotFound
	}
	return &sess, nil
}

func (t cashTx) LockActive(_ context.Context, storeID string) (*cash.Session, error) {
	return active(t.st, storeID)
}

func (t cashTx) NextNumber(_ context.Context, storeID string) (int, error) {
	t.st.s.sessionSeq[storeID]++
	return t.st.s.sessionSeq[storeID], nil
}

func (t cashTx) CreateSession(_ context.Context, s *cash.Session) error {
	if _, err := active(t.st, s.StoreID); err == nil {
		return cash.ErrSessionAlreadyOpen
	}
	t.st.s.sessions[s.ID] = *s
	return nil
}

func (t cashTx) UpdateSession(_ context.Context, s *cash.Session) error {
	if _, ok := t.st.s.sessions[s.ID]; !ok {
		return cash.ErrSessionNotFound
	}
	t.st.s.sessions[s.ID] = *s
	return nil
}

func (t cashTx) AppendMovement(_ context.Context, m *cash.Movement) error {
	t.st.s.cashMoves = append(t.st.s.cashMoves, *m)
	return nil
}

func (t cashTx) PendingOrders(_ context.Context, sessionID string) (n int, _ error) {
	for _, o := range t.st.s.orders {
		if o.SessionID == sessionID && o.Status == order.StatusDraft {
			n++
		}
	}
	return n, nil
}
