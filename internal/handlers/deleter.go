package handlers

import (
	"context"
	"net/http"
	"strings"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

type ShowroomDeleter interface {
	DeleteOwnedShowroom(ctx context.Context, email string) (*showroom.DeleteResult, error)
}

type deleteResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	DeletedMetafields *int   `json:"deletedMetafields,omitempty"`
	FailedMetafields  int    `json:"failedMetafields,omitempty"`
}

// NewShowroomDeleter removes the bride's showroom metafields and tag.
func NewShowroomDeleter(b Base, deleter ShowroomDeleter) Func {
	return b.serve([]string{http.MethodPost}, func(ctx context.Context, req Request) (int, any, error) {
		var in struct {
			Email string `json:"email"`
		}
		if err := decodeBody(req, &in); err != nil {
			return 0, nil, err
		}
		if strings.TrimSpace(in.Email) == "" {
			return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "Email is required")
		}

		res, err := deleter.DeleteOwnedShowroom(ctx, in.Email)
		if err != nil {
			return 0, nil, err
		}
		if !res.CustomerFound {
			return http.StatusOK, deleteResponse{Success: true, Message: "Customer not found - nothing to delete"}, nil
		}
		deleted := res.Deleted
		out := deleteResponse{
			Success:           true,
			Message:           "Showroom data deleted successfully",
			DeletedMetafields: &deleted,
			FailedMetafields:  res.Failed,
		}
		if deleted == 0 {
			out.Message = "No showroom data found - nothing to delete"
		}
		return http.StatusOK, out, nil
	})
}
