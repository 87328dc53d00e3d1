package handlers

import (
	"context"
	"net/http"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

// ShowroomReader is the read side of the showroom, implemented by
// *showroom.Query.
type ShowroomReader interface {
	ListShowroomsForEmail(ctx context.Context, email string) (*showroom.ShowroomList, error)
	GetStatusForEmails(ctx context.Context, emails []string, showroomID string) map[string]showroom.StatusRecord
	GetOwnedShowroomData(ctx context.Context, email string) (map[string]any, error)
}

func NewShowroomLister(b Base, reader ShowroomReader) Func {
	return b.serve([]string{http.MethodGet}, func(ctx context.Context, req Request) (int, any, error) {
		list, err := reader.ListShowroomsForEmail(ctx, query(req, "email"))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, list, nil
	})
}
