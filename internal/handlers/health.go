package handlers

import (
	"context"
	"net/http"
)

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
}

func NewHealth(b Base, service string) Func {
	return b.serve([]string{http.MethodGet}, func(context.Context, Request) (int, any, error) {
		return http.StatusOK, HealthResponse{OK: true, Service: service}, nil
	})
}
