package handlers

import (
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
)

const maxLocalBody = 1 << 20

// HTTP serves fn over net/http by translating to and from proxy events. It
// backs the local development server.
func HTTP(fn Func) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxLocalBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		req := Request{
			HTTPMethod:                      r.Method,
			Path:                            r.URL.Path,
			Headers:                         map[string]string{},
			MultiValueHeaders:               map[string][]string{},
			QueryStringParameters:           map[string]string{},
			MultiValueQueryStringParameters: map[string][]string{},
			RequestContext:                  events.APIGatewayProxyRequestContext{RequestID: uuid.NewString()},
		}
		for k, vs := range r.Header {
			req.MultiValueHeaders[k] = vs
			if len(vs) > 0 {
				req.Headers[k] = vs[0]
			}
		}
		for k, vs := range r.URL.Query() {
			req.MultiValueQueryStringParameters[k] = vs
			if len(vs) > 0 {
				req.QueryStringParameters[k] = vs[0]
			}
		}
		if utf8.Valid(body) {
			req.Body = string(body)
		} else {
			req.Body = base64Encode(body)
			req.IsBase64Encoded = true
		}

		resp, err := fn(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.WriteString(w, resp.Body)
	}
}
