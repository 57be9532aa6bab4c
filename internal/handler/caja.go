package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/command"
	"github.com/xenking/caja/internal/domain/auth"
	"github.com/xenking/caja/internal/domain/cash"
)

type openSessionRequest struct {
	StoreID     string           `json:"tienda_id" validate:"required"`
	OpeningCash *decimal.Decimal `json:"efectivo_apertura" validate:"required"`
	Note        string           `json:"nota_apertura" validate:"max=500"`
}

type closeSessionRequest struct {
	ClosingCash *decimal.Decimal `json:"efectivo_cierre" validate:"required"`
	Note        string           `json:"nota_cierre" validate:"max=500"`
}

type cashMovementRequest struct {
	Kind   string           `json:"tipo" validate:"required,oneof=entrada salida"`
	Amount *decimal.Decimal `json:"monto" validate:"required"`
	Reason string           `json:"motivo" validate:"required,max=500"`
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := command.Run(r.Context(), h.runner, "open_session", func(ctx context.Context) (*cash.Session, error) {
		return h.sessions.Open(ctx, cash.OpenRequest{
			StoreID:     req.StoreID,
			OpeningCash: *req.OpeningCash,
			Note:        req.Note,
			User:        auth.User(ctx),
		})
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeSession(e, s, nil) })
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	var req closeSessionRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := command.Run(r.Context(), h.runner, "close_session", func(ctx context.Context) (*cash.Session, error) {
		return h.sessions.Close(ctx, cash.CloseRequest{
			SessionID:   chi.URLParam(r, "id"),
			ClosingCash: *req.ClosingCash,
			Note:        req.Note,
			User:        auth.User(ctx),
		})
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, s, nil) })
}

// sessionView is a session with its cash movements.
type sessionView struct {
	session   *cash.Session
	movements []cash.Movement
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	v, err := command.Run(r.Context(), h.runner, "get_session", func(ctx context.Context) (sessionView, error) {
		return h.sessionView(ctx, func(ctx context.Context) (*cash.Session, error) {
			return h.sessions.Get(ctx, chi.URLParam(r, "id"))
		})
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, v.session, v.movements) })
}

func (h *Handler) activeSession(w http.ResponseWriter, r *http.Request) {
	v, err := command.Run(r.Context(), h.runner, "active_session", func(ctx context.Context) (sessionView, error) {
		return h.sessionView(ctx, func(ctx context.Context) (*cash.Session, error) {
			return h.sessions.Active(ctx, chi.URLParam(r, "storeID"))
		})
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, v.session, v.movements) })
}

func (h *Handler) sessionView(ctx context.Context, get func(ctx context.Context) (*cash.Session, error)) (sessionView, error) {
	s, err := get(ctx)
	if err != nil {
		return sessionView{}, err
	}
	moves, err := h.sessions.Movements(ctx, s.ID)
	if err != nil {
		return sessionView{}, err
	}
	if moves == nil {
		moves = []cash.Movement{}
	}
	return sessionView{session: s, movements: moves}, nil
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "fecha_desde", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryTime(r, "fecha_hasta", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := cash.Filter{
		StoreID: query(r, "tienda_id"),
		Status:  cash.Status(query(r, "estado")),
		From:    from,
		To:      to,
	}
	sessions, err := command.Run(r.Context(), h.runner, "list_sessions", func(ctx context.Context) ([]cash.Session, error) {
		return h.sessions.List(ctx, f)
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		list(e, sessions, func(e *jx.Encoder, s *cash.Session) { encodeSession(e, s, nil) })
	})
}

func (h *Handler) registerCashMovement(w http.ResponseWriter, r *http.Request) {
	var req cashMovementRequest
	if !decode(w, r, &req) {
		return
	}
	mv, err := command.Run(r.Context(), h.runner, "register_cash_movement", func(ctx context.Context) (*cash.Movement, error) {
		return h.sessions.RegisterMovement(ctx, cash.MovementRequest{
			SessionID: chi.URLParam(r, "id"),
			Kind:      cash.MovementKind(req.Kind),
			Amount:    *req.Amount,
			Reason:    req.Reason,
			User:      auth.User(ctx),
		})
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeCashMovement(e, mv) })
}

func (h *Handler) listCashMovements(w http.ResponseWriter, r *http.Request) {
	moves, err := command.Run(r.Context(), h.runner, "list_cash_movements", func(ctx context.Context) ([]cash.Movement, error) {
		return h.sessions.Movements(ctx, chi.URLParam(r, "id"))
	})
	if err != nil {
		fail(w, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { list(e, moves, encodeCashMovement) })
}

func encodeSession(e *jx.Encoder, s *cash.Session, moves []cash.Movement) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", s.ID)
		strField(e, "tienda_id", s.StoreID)
		strField(e, "numero_sesion", s.Number)
		strField(e, "estado", string(s.Status))
		timeField(e, "fecha_apertura", s.OpenedAt)
		e.Field("fecha_cierre", func(e *jx.Encoder) { optTime(e, s.ClosedAt) })
		moneyField(e, "efectivo_apertura", s.OpeningCash)
		e.Field("efectivo_cierre", func(e *jx.Encoder) { optMoney(e, s.ClosingCash) })
		e.Field("diferencia", func(e *jx.Encoder) { optMoney(e, s.Difference) })
		optStrField(e, "nota_apertura", s.OpeningNote)
		optStrField(e, "nota_cierre", s.ClosingNote)
		strField(e, "usuario_apertura", s.OpenedBy)
		optStrField(e, "usuario_cierre", s.ClosedBy)
		moneyField(e, "total_ventas", s.TotalSales)
		moneyField(e, "total_efectivo", s.TotalCash)
		moneyField(e, "total_tarjeta", s.TotalCard)
		moneyField(e, "total_transferencia", s.TotalTransfer)
		moneyField(e, "entradas_efectivo", s.CashIn)
		moneyField(e, "salidas_efectivo", s.CashOut)
		moneyField(e, "efectivo_esperado", s.ExpectedCash())
		if moves != nil {
			e.Field("movimientos_efectivo", func(e *jx.Encoder) { list(e, moves, encodeCashMovement) })
		}
	})
}

func encodeCashMovement(e *jx.Encoder, m *cash.Movement) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", m.ID)
		strField(e, "sesion_caja_id", m.SessionID)
		strField(e, "tipo", string(m.Kind))
		moneyField(e, "monto", m.Amount)
		strField(e, "motivo", m.Reason)
		timeField(e, "fecha", m.CreatedAt)
		optStrField(e, "usuario", m.User)
	})
}
