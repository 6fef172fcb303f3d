package validation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/usercore/apiserver/internal/apperr"
)

// MaxBodyBytes bounds the size of a JSON request body.
const MaxBodyBytes = 1 << 20

// ErrorFunc renders a rejected request.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

type valueKey[T any] struct{}

// From returns the validated value of schema T stored by Body, Query or Params.
func From[T any](ctx context.Context) (T, bool) {
	v, ok := ctx.Value(valueKey[T]{}).(T)
	return v, ok
}

// WithValue stores v as the validated value of its schema type.
func WithValue[T any](ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, valueKey[T]{}, v)
}

// Body validates the JSON request body against T.
func Body[T any](onError ErrorFunc) func(http.Handler) http.Handler {
	return middleware[T](onError, false, func(r *http.Request) (map[string]any, error) {
		return readBody(r)
	})
}

// Query validates the query string against T. Only the first value of a
// repeated key is used.
func Query[T any](onError ErrorFunc) func(http.Handler) http.Handler {
	return middleware[T](onError, true, func(r *http.Request) (map[string]any, error) {
		raw := map[string]any{}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				raw[key] = values[0]
			}
		}
		return raw, nil
	})
}

// Params validates the route's URL parameters against T.
func Params[T any](onError ErrorFunc) func(http.Handler) http.Handler {
	return middleware[T](onError, true, func(r *http.Request) (map[string]any, error) {
		raw := map[string]any{}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if key == "*" || i >= len(rctx.URLParams.Values) {
					continue
				}
				raw[key] = rctx.URLParams.Values[i]
			}
		}
		return raw, nil
	})
}

func middleware[T any](onError ErrorFunc, weak bool, extract func(*http.Request) (map[string]any, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := extract(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			value, err := Decode[T](raw, weak)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithValue(r.Context(), value)))
		})
	}
}

func readBody(r *http.Request) (map[string]any, error) {
	raw := map[string]any{}
	if r.Body == nil {
		return raw, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation(Message, apperr.FieldError{Field: "body", Message: "body is too large"})
		}
		return nil, apperr.Validation(Message, apperr.FieldError{Field: "body", Message: "body could not be read"})
	}
	if len(data) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Validation(Message, apperr.FieldError{Field: "body", Message: "body must be a valid JSON object"})
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}
