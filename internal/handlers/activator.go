package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

type Inviter interface {
	Invite(ctx context.Context, req showroom.InviteRequest) (*showroom.InviteResult, error)
}

type inviteBody struct {
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	ShowroomID   string `json:"showroomId"`
	BrideName    string `json:"brideName"`
	WeddingDate  string `json:"weddingDate"`
	Roles        roles  `json:"roles"`
	CustomerNote string `json:"customerNote"`
}

// roles accepts either a JSON array or a comma separated string.
type roles []string

func (r *roles) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*r = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = nil
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*r = append(*r, part)
		}
	}
	return nil
}

type inviteResponse struct {
	Success    bool                  `json:"success"`
	Customer   *showroom.Customer    `json:"customer"`
	EmailSent  bool                  `json:"emailSent"`
	Created    bool                  `json:"created"`
	Membership showroom.Membership   `json:"membership"`
	Failed     []showroom.FieldError `json:"failedMetafields,omitempty"`
}

// NewCustomerActivator creates or reuses the invitee's customer, records the
// invitation and sends the activation email.
func NewCustomerActivator(b Base, inviter Inviter) Func {
	return b.serve([]string{http.MethodPost}, func(ctx context.Context, req Request) (int, any, error) {
		var in inviteBody
		if err := decodeBody(req, &in); err != nil {
			return 0, nil, err
		}
		res, err := inviter.Invite(ctx, showroom.InviteRequest{
			Email:        in.Email,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			ShowroomID:   in.ShowroomID,
			BrideName:    in.BrideName,
			WeddingDate:  in.WeddingDate,
			Roles:        in.Roles,
			CustomerNote: in.CustomerNote,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, inviteResponse{
			Success:    true,
			Customer:   res.Customer,
			EmailSent:  res.EmailSent,
			Created:    res.Created,
			Membership: res.Membership,
			Failed:     res.Failed,
		}, nil
	})
}
