package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

type MembershipWriter interface {
	UpsertMembership(ctx context.Context, req showroom.UpsertRequest) (*showroom.UpsertResult, error)
}

// syncDefaults is the customer created for a bride who has no account yet.
var syncDefaults = showroom.NewCustomer{
	FirstName: "Bridal",
	LastName:  "Party",
	Note:      "Created via bridal showroom",
}

type syncRequest struct {
	Email      string                     `json:"email"`
	Metafields map[string]json.RawMessage `json:"metafields"`
}

type syncWriteResponse struct {
	Success    bool                  `json:"success"`
	Message    string                `json:"message"`
	CustomerID int64                 `json:"customerId"`
	Failed     []showroom.FieldError `json:"failedMetafields,omitempty"`
}

type syncReadResponse struct {
	Success      bool           `json:"success"`
	ShowroomData map[string]any `json:"showroomData"`
}

// NewShowroomSync reads (GET) or writes (POST) the bride's owned showroom
// metafields.
func NewShowroomSync(b Base, writer MembershipWriter, reader ShowroomReader, policy showroom.CustomerPolicy) Func {
	return b.serve([]string{http.MethodGet, http.MethodPost}, func(ctx context.Context, req Request) (int, any, error) {
		if strings.EqualFold(req.HTTPMethod, http.MethodGet) {
			data, err := reader.GetOwnedShowroomData(ctx, query(req, "email"))
			if err != nil {
				return 0, nil, err
			}
			return http.StatusOK, syncReadResponse{Success: true, ShowroomData: data}, nil
		}

		var in syncRequest
		if err := decodeBody(req, &in); err != nil {
			return 0, nil, err
		}
		if strings.TrimSpace(in.Email) == "" || in.Metafields == nil {
			return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "Email and metafields are required")
		}

		res, err := writer.UpsertMembership(ctx, showroom.UpsertRequest{
			Email:       in.Email,
			Namespace:   showroom.NamespaceOwner,
			Fields:      syncFields(in.Metafields),
			Policy:      policy,
			NewCustomer: syncDefaults,
		})
		if err != nil {
			return 0, nil, err
		}

		msg := "Customer metafields updated"
		if res.Created {
			msg = "Customer created and metafields set"
		}
		return http.StatusOK, syncWriteResponse{
			Success:    true,
			Message:    msg,
			CustomerID: res.Customer.ID,
			Failed:     res.Failed,
		}, nil
	})
}

// syncFields keeps JSON strings as their text and stores anything else as
// its JSON encoding. Null values are skipped.
func syncFields(raw map[string]json.RawMessage) map[string]string {
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		k = strings.TrimSpace(k)
		if k == "" || strings.TrimSpace(string(v)) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			fields[k] = s
			continue
		}
		fields[k] = string(v)
	}
	return fields
}
