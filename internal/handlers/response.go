// Package handlers adapts API Gateway proxy events to the showroom
// operations. Every function shares the same envelope: CORS headers on each
// response, OPTIONS answered directly and {statusCode, error} bodies.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
)

type Request = events.APIGatewayProxyRequest
type Response = events.APIGatewayProxyResponse

// Func is the shape every function binary hands to lambda.Start.
type Func func(ctx context.Context, req Request) (Response, error)

type CORS struct {
	AllowOrigin  string
	AllowHeaders string
}

func (c CORS) headers(methods []string) map[string]string {
	origin := c.AllowOrigin
	if origin == "" {
		origin = "*"
	}
	allowHeaders := c.AllowHeaders
	if allowHeaders == "" {
		allowHeaders = "Content-Type, Authorization"
	}
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  origin,
		"Access-Control-Allow-Headers": allowHeaders,
		"Access-Control-Allow-Methods": strings.Join(append(append([]string{}, methods...), http.MethodOptions), ", "),
	}
}

// Base carries what every handler needs besides its own collaborators.
type Base struct {
	Name string
	Log  *logger.Logger
	CORS CORS
}

type endpoint func(ctx context.Context, req Request) (int, any, error)

// serve runs fn for the allowed methods and turns its result into a proxy
// response. Errors are mapped through their code.
func (b Base) serve(methods []string, fn endpoint) Func {
	log := b.Log
	if log == nil {
		log = logger.Nop()
	}
	return func(ctx context.Context, req Request) (Response, error) {
		headers := b.CORS.headers(methods)
		method := strings.ToUpper(req.HTTPMethod)
		if method == http.MethodOptions {
			return Response{StatusCode: http.StatusOK, Headers: headers}, nil
		}

		ctx = log.WithFields(ctx, map[string]any{
			"function":   b.Name,
			"method":     method,
			"request_id": requestID(req),
		})

		allowed := false
		for _, m := range methods {
			if m == method {
				allowed = true
				break
			}
		}
		if !allowed {
			return errResp(ctx, log, headers, pkgerrors.New(pkgerrors.CodeMethodNotAllowed, "Method Not Allowed"))
		}

		status, body, err := fn(ctx, req)
		if err != nil {
			return errResp(ctx, log, headers, err)
		}
		return jsonResp(headers, status, body)
	}
}

func requestID(req Request) string {
	if id := strings.TrimSpace(req.RequestContext.RequestID); id != "" {
		return id
	}
	if id := header(req, "X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func jsonResp(headers map[string]string, status int, v any) (Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Response{}, err
	}
	return Response{
		StatusCode: status,
		Headers:    headers,
		Body:       string(b),
	}, nil
}

type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
}

func errResp(ctx context.Context, log *logger.Logger, headers map[string]string, err error) (Response, error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	if typed := pkgerrors.As(err); typed != nil {
		status = pkgerrors.MetadataFor(typed.Code()).HTTPStatus
		msg = typed.Detail()
	}
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", err)
	} else {
		log.Info(log.WithField(ctx, "status", status), "request rejected: "+msg)
	}
	return jsonResp(headers, status, errorBody{StatusCode: status, Error: msg})
}

// header looks a header up case-insensitively; proxies disagree on casing.
func header(req Request, name string) string {
	if v, ok := req.Headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	for k, vs := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
	}
	return ""
}

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func rawBody(req Request) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid base64 body")
	}
	return b, nil
}

// decodeBody parses a JSON body into dst. An empty body leaves dst zero.
func decodeBody(req Request, dst any) error {
	b, err := rawBody(req)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid JSON body")
	}
	return nil
}

func query(req Request, name string) string {
	if v := strings.TrimSpace(req.QueryStringParameters[name]); v != "" {
		return v
	}
	if vs := req.MultiValueQueryStringParameters[name]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}
