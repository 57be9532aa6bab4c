package handler

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja/internal/command"
	"github.com/xenking/caja/pkg/httpmiddleware"
)

// maxBody limits request bodies.
const maxBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// statusOf maps a command class to an HTTP status.
func statusOf(c command.Class) int {
	switch c {
	case command.ClassValidation:
		return http.StatusUnprocessableEntity
	case command.ClassConflict:
		return http.StatusConflict
	case command.ClassNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	httpmiddleware.WriteError(w, status, msg)
}

// fail writes the error body for a failed command.
func fail(w http.ResponseWriter, err error) {
	cmdErr := command.As(err)
	writeError(w, statusOf(cmdErr.Class), cmdErr.Message)
}

// writeData writes {"data": ...} with the value written by fn.
func writeData(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("data", fn)
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the error response and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fieldPath(fe) + ": " + ruleMessage(fe)
	}
	return strings.Join(msgs, "; ")
}

// fieldPath returns the JSON path of fe without the request struct name.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " elements"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "invalid value"
	}
}

// query returns the trimmed query parameter.
func query(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// queryTime parses an RFC 3339 timestamp or a YYYY-MM-DD date. For dates,
// end selects the last instant of the day.
func queryTime(r *http.Request, name string, end bool) (time.Time, error) {
	v := query(r, name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errors.Errorf("%s: must be a date or RFC 3339 timestamp", name)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// --- jx helpers ---

func money(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func quantity(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func optTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	timestamp(e, *t)
}

func optStr(e *jx.Encoder, s string) {
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}

func optMoney(e *jx.Encoder, d decimal.NullDecimal) {
	if !d.Valid {
		e.Null()
		return
	}
	money(e, d.Decimal)
}

func strField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func optStrField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { optStr(e, v) })
}

func moneyField(e *jx.Encoder, name string, d decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { money(e, d) })
}

func quantityField(e *jx.Encoder, name string, d decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { quantity(e, d) })
}

func timeField(e *jx.Encoder, name string, t time.Time) {
	e.Field(name, func(e *jx.Encoder) { timestamp(e, t) })
}

func list[T any](e *jx.Encoder, items []T, fn func(e *jx.Encoder, v *T)) {
	e.Arr(func(e *jx.Encoder) {
		for i := range items {
			fn(e, &items[i])
		}
	})
}
