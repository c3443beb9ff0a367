package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
)

// Request is one GraphQL operation as sent by a client.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// requestError rejects an HTTP request before any operation runs.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message}
}

// readRequests decodes a GET query string or a POST JSON body. A POST body
// holding an array is a batch; batched reports whether that was the case.
func readRequests(w http.ResponseWriter, r *http.Request, maxBody int64) (reqs []Request, batched bool, err error) {
	if r.Method == http.MethodGet {
		req, err := readQueryString(r)
		if err != nil {
			return nil, false, err
		}
		return []Request{req}, false, nil
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt != "application/json" {
			return nil, false, &requestError{status: http.StatusUnsupportedMediaType, message: "unsupported Content-Type " + ct}
		}
	}
	body := r.Body
	if maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBody)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, false, &requestError{status: http.StatusRequestEntityTooLarge, message: "body too large"}
		}
		return nil, false, badRequest("failed to read body")
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		if err := decodeJSON(data, &reqs); err != nil {
			return nil, true, badRequest("invalid JSON")
		}
		if len(reqs) == 0 {
			return nil, true, badRequest("empty batch")
		}
		return reqs, true, nil
	}
	var req Request
	if err := decodeJSON(data, &req); err != nil {
		return nil, false, badRequest("invalid JSON")
	}
	if req.Query == "" {
		return nil, false, badRequest("missing 'query'")
	}
	return []Request{req}, false, nil
}

func readQueryString(r *http.Request) (Request, error) {
	q := r.URL.Query()
	req := Request{Query: q.Get("query"), OperationName: q.Get("operationName")}
	if req.Query == "" {
		return req, badRequest("missing 'query'")
	}
	if v := q.Get("variables"); v != "" {
		if err := decodeJSON([]byte(v), &req.Variables); err != nil {
			return req, badRequest("invalid 'variables' JSON")
		}
	}
	if v := q.Get("extensions"); v != "" {
		if err := decodeJSON([]byte(v), &req.Extensions); err != nil {
			return req, badRequest("invalid 'extensions' JSON")
		}
	}
	return req, nil
}

// decodeJSON keeps numbers as json.Number so large integers in variables
// reach the remote services unchanged.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
