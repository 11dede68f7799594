package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/willemschots/volunteerhub/internal/errorz"
)

// maxBodyBytes limits the size of decoded request bodies.
const maxBodyBytes = 1 << 20

// pathWildcards are the ServeMux wildcards that are decoded into inputs.
var pathWildcards = []string{
	"token",
	"tenant_id",
	"member_id",
	"group_id",
	"opportunity_id",
	"signup_id",
	"poll_id",
}

// mapper is a generic HTTP handler that maps requests to target
// function calls and writes the output to the response.
type mapper[IN, OUT any] struct {
	s      *Server
	req    func(*http.Request) (IN, error)
	target func(context.Context, IN) (OUT, error)
	res    func(result[IN, OUT]) error
}

// result is the result of a succesful request.
// it contains all relevant data because we can't know
// in advance what we will need to construct a response.
type result[IN, OUT any] struct {
	s   *Server
	r   *http.Request
	w   http.ResponseWriter
	in  IN
	out OUT
}

// mapBoth creates a HTTP Handler that:
// 1. Maps the request to a value of input type IN.
// 2. Calls the target func with that value.
// 3. Writes the output of type OUT to the response with status 200.
//
// Errors are written using the server error handler.
func mapBoth[IN, OUT any](s *Server, targetFunc func(context.Context, IN) (OUT, error)) *mapper[IN, OUT] {
	return &mapper[IN, OUT]{
		s: s,
		req: func(r *http.Request) (IN, error) {
			return defaultRequest[IN](s, r)
		},
		target: targetFunc,
		res: func(r result[IN, OUT]) error {
			return writeJSON(r.w, http.StatusOK, r.out)
		},
	}
}

// mapRequest creates a HTTP Handler that:
// 1. Maps the request to a value of type IN.
// 2. Calls the target func with that value.
// 3. Writes a status 204 response to the client if target func was successful.
//
// Errors are written using the server error handler.
func mapRequest[IN any](s *Server, targetFunc func(context.Context, IN) error) *mapper[IN, struct{}] {
	return &mapper[IN, struct{}]{
		s: s,
		req: func(r *http.Request) (IN, error) {
			return defaultRequest[IN](s, r)
		},
		target: func(ctx context.Context, in IN) (struct{}, error) {
			err := targetFunc(ctx, in)
			if err != nil {
				return struct{}{}, err
			}

			return struct{}{}, nil
		},
		res: func(r result[IN, struct{}]) error {
			r.w.WriteHeader(http.StatusNoContent)
			return nil
		},
	}
}

// mapResponse creates a HTTP Handler that:
// 1. Calls the target func.
// 2. Maps the returned value of type OUT to the response with a status 200.
//
// Errors are written using the server error handler.
func mapResponse[OUT any](s *Server, targetFunc func(context.Context) (OUT, error)) *mapper[struct{}, OUT] {
	return &mapper[struct{}, OUT]{
		s: s,
		req: func(r *http.Request) (struct{}, error) {
			return struct{}{}, nil
		},
		target: func(ctx context.Context, _ struct{}) (OUT, error) {
			out, err := targetFunc(ctx)
			if err != nil {
				return out, err
			}

			return out, nil
		},
		res: func(r result[struct{}, OUT]) error {
			return writeJSON(r.w, http.StatusOK, r.out)
		},
	}
}

// request overwrites the function that maps the request to the input type.
func (e *mapper[IN, OUT]) request(fn func(r *http.Request) (IN, error)) *mapper[IN, OUT] {
	e.req = fn
	return e
}

// response overwrites the function that writes the output to the response.
func (e *mapper[IN, OUT]) response(fn func(result[IN, OUT]) error) *mapper[IN, OUT] {
	e.res = fn
	return e
}

// status writes the output as JSON with the given status code.
func (e *mapper[IN, OUT]) status(code int) *mapper[IN, OUT] {
	return e.response(func(r result[IN, OUT]) error {
		return writeJSON(r.w, code, r.out)
	})
}

// accepted writes the same body for every successful request, so the
// response can't be used to learn anything about the input.
func (e *mapper[IN, OUT]) accepted() *mapper[IN, OUT] {
	return e.response(func(r result[IN, OUT]) error {
		return writeJSON(r.w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})
}

// page renders the named page for browsers and JSON for other clients.
func (e *mapper[IN, OUT]) page(name string) *mapper[IN, OUT] {
	return e.response(func(r result[IN, OUT]) error {
		if !acceptsHTML(r.r) {
			return writeJSON(r.w, http.StatusOK, r.out)
		}

		return r.s.writePage(r.w, r.r, http.StatusOK, name, r.out)
	})
}

// done shows a message page to browsers. Other clients get the output
// as JSON, or an empty response if there is no output.
func (e *mapper[IN, OUT]) done(msg string) *mapper[IN, OUT] {
	return e.response(func(r result[IN, OUT]) error {
		if acceptsHTML(r.r) {
			return r.s.writeMessage(r.w, http.StatusOK, msg)
		}

		if _, ok := any(r.out).(struct{}); ok {
			r.w.WriteHeader(http.StatusNoContent)
			return nil
		}

		return writeJSON(r.w, http.StatusOK, r.out)
	})
}

func (e *mapper[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in, err := e.req(r)
	if err != nil {
		e.s.handleError(w, r, err)
		return
	}

	out, err := e.target(r.Context(), in)
	if err != nil {
		e.s.handleError(w, r, err)
		return
	}

	result := result[IN, OUT]{
		s:   e.s,
		r:   r,
		w:   w,
		in:  in,
		out: out,
	}

	err = e.res(result)
	if err != nil {
		e.s.handleError(w, r, err)
		return
	}
}

// defaultRequest is the default way to map a request to a struct.
// JSON bodies are decoded first, then path wildcards, query parameters
// and form values are decoded using the schema decoder.
func defaultRequest[IN any](s *Server, r *http.Request) (IN, error) {
	var in IN

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var values url.Values
	switch mediaType {
	case "application/json":
		err := decodeJSON(r, &in)
		if err != nil {
			return in, err
		}
		values = r.URL.Query()
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		err := r.ParseForm()
		if err != nil {
			return in, bodyError(err)
		}
		values = r.Form
	default:
		values = r.URL.Query()
	}

	for _, name := range pathWildcards {
		if v := r.PathValue(name); v != "" {
			values.Set(name, v)
		}
	}

	err := s.decoder.Decode(&in, values)
	return in, decodeError(err)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		// An empty body is fine, the input will be validated by the target.
		return nil
	}

	return bodyError(err)
}

func bodyError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}

	return errorz.InvalidInput{errorz.Keyed{Key: "body", Err: err}}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
