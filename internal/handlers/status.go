package handlers

import (
	"context"
	"net/http"
	"strings"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

const maxStatusEmails = 100

type statusRequest struct {
	Emails     []string `json:"emails"`
	ShowroomID string   `json:"showroomId"`
}

type statusResponse struct {
	Results map[string]showroom.StatusRecord `json:"results"`
}

// NewStatusReader reports the effective membership status for a batch of
// emails. One failed email never fails the batch.
func NewStatusReader(b Base, reader ShowroomReader) Func {
	return b.serve([]string{http.MethodPost}, func(ctx context.Context, req Request) (int, any, error) {
		var in statusRequest
		if err := decodeBody(req, &in); err != nil {
			return 0, nil, err
		}
		if len(in.Emails) == 0 {
			return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "emails array required")
		}
		if len(in.Emails) > maxStatusEmails {
			return 0, nil, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d emails per request", maxStatusEmails)
		}
		results := reader.GetStatusForEmails(ctx, in.Emails, strings.TrimSpace(in.ShowroomID))
		return http.StatusOK, statusResponse{Results: results}, nil
	})
}
