// Provides middleware for standardizing HTTP handlers.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/bauset/marcador/internal/models"
)

// maxRequestBodyBytes caps request bodies. Screenshot data URLs for large
// displays run to several megabytes of base64.
const maxRequestBodyBytes = 32 << 20

// Validatable is implemented by all request types.
type Validatable interface {
	Validate() error
}

// envelope is the uniform response shape: success plus data, or an error.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *respError `json:"error,omitempty"`
}

type respError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Wrap adapts a typed handler function into an http.Handler.
// The function must have signature: func(context.Context, *In) (Out, error)
// where In can be unmarshalled from JSON.
// Path parameters are extracted into struct fields tagged `path:"name"`,
// query parameters into fields tagged `query:"name"`.
// *In must implement Validatable.
func Wrap[In any, PtrIn interface {
	*In
	Validatable
}, Out any](fn func(context.Context, PtrIn) (Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input) {
			return
		}
		if err := populateParams(r, input); err != nil {
			writeError(w, models.WrapError(models.KindValidationFailure, "invalid request parameter", err))
			return
		}
		if err := PtrIn(input).Validate(); err != nil {
			writeError(w, models.WrapError(models.KindValidationFailure, "invalid request", err))
			return
		}

		output, err := fn(ctx, PtrIn(input))
		if err != nil {
			slog.ErrorContext(ctx, "server: handler error", "method", r.Method, "path", r.URL.Path, "err", err)
			writeError(w, err)
			return
		}
		writeData(w, output)
	})
}

// readAndDecodeBody reads the request body with a size limit and decodes JSON
// into input. Returns false if an error was already written to the response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, models.Errorf(models.KindValidationFailure, "request body exceeds %d bytes", maxBytesErr.Limit))
			return false
		}
		slog.ErrorContext(ctx, "server: failed to read request body", "err", err)
		writeError(w, models.WrapError(models.KindIOFailure, "failed to read request body", err))
		return false
	}
	if len(body) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			writeError(w, models.WrapError(models.KindDecodeFailure, "invalid request body", err))
			return false
		}
	}
	return true
}

// populateParams fills struct fields tagged `path:"name"` from route values
// and `query:"name"` from the URL query string.
func populateParams(r *http.Request, input any) error {
	v := reflect.ValueOf(input).Elem()
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if name := field.Tag.Get("path"); name != "" {
			if raw := r.PathValue(name); raw != "" {
				if err := setParam(v.Field(i), raw); err != nil {
					return err
				}
			}
		}
		if name := field.Tag.Get("query"); name != "" {
			if raw := r.URL.Query().Get(name); raw != "" {
				if err := setParam(v.Field(i), raw); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func setParam(field reflect.Value, raw string) error {
	if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText([]byte(raw))
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}
	return nil
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		slog.Error("server: failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(models.StatusCode(err))
	resp := envelope{Success: false, Error: &respError{
		Code:    string(models.KindOf(err)),
		Message: err.Error(),
	}}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("server: failed to encode error response", "err", err)
	}
}
