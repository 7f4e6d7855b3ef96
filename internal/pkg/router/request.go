package router

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

const maxBodyBytes = 16 * 1024

// Request wraps http.Request with helpers for inbound handlers.
type Request struct {
	// Request is the underlying http.Request.
	*http.Request
}

// GetParam reads a path parameter from the request context (as stored by httprouter).
func (r *Request) GetParam(key string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(key)
}

func (r *Request) GetQuery(key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// GetQueryInt reads an optional integer query value; empty yields zero.
func (r *Request) GetQueryInt(key string) (int, error) {
	queryValue := r.GetQuery(key)
	if queryValue == "" {
		return 0, nil
	}

	value, err := strconv.Atoi(queryValue)
	if err != nil {
		return 0, goerror.NewInvalidFormat("Invalid query " + key)
	}

	return value, nil
}

// ClientIP returns the address resolved by the IP middleware.
func (r *Request) ClientIP() string {
	return r.RemoteAddr
}

// BearerToken returns the credential of an "Authorization: Bearer" header.
func (r *Request) BearerToken() string {
	return bearerToken(r.Request)
}

// DecodeBody decodes the JSON body into dst, rejecting unknown fields and trailing data.
func (r *Request) DecodeBody(dst any) error {
	if r == nil || r.Body == nil {
		return goerror.NewInvalidFormat()
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return goerror.NewInvalidFormat()
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return goerror.NewInvalidFormat()
	}

	return nil
}

func bearerToken(r *http.Request) string {
	p := strings.Fields(r.Header.Get("Authorization"))
	if len(p) != 2 || !strings.EqualFold(p[0], "Bearer") {
		return ""
	}
	return p[1]
}
