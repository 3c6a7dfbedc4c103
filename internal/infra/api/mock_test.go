//go:build !integration

package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-access-bot/internal/config"
	"course-access-bot/internal/domain/model"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type mockRedemptionUC struct {
	RedeemFunc func(ctx context.Context, code, deviceID string) (*model.Activation, error)
}

func (m *mockRedemptionUC) Redeem(ctx context.Context, code, deviceID string) (*model.Activation, error) {
	return m.RedeemFunc(ctx, code, deviceID)
}

type mockEntitlementUC struct {
	ListActiveFunc func(ctx context.Context, deviceID string) ([]model.Entitlement, error)
}

func (m *mockEntitlementUC) ListActive(ctx context.Context, deviceID string) ([]model.Entitlement, error) {
	return m.ListActiveFunc(ctx, deviceID)
}

type mockCodeAdminUC struct {
	LookupFunc func(ctx context.Context, code string) (*model.RedeemableCode, error)
	ExtendFunc func(ctx context.Context, code string, days int) (*model.RedeemableCode, error)
}

func (m *mockCodeAdminUC) Lookup(ctx context.Context, code string) (*model.RedeemableCode, error) {
	return m.LookupFunc(ctx, code)
}

func (m *mockCodeAdminUC) Extend(ctx context.Context, code string, days int) (*model.RedeemableCode, error) {
	return m.ExtendFunc(ctx, code, days)
}

type serverDeps struct {
	redemption  *mockRedemptionUC
	entitlement *mockEntitlementUC
	codeAdmin   *mockCodeAdminUC
	auth        *AuthManager
}

func newTestServer(d serverDeps) *Server {
	if d.redemption == nil {
		d.redemption = &mockRedemptionUC{}
	}
	if d.entitlement == nil {
		d.entitlement = &mockEntitlementUC{}
	}
	if d.codeAdmin == nil {
		d.codeAdmin = &mockCodeAdminUC{}
	}
	cfg := config.APIConfig{Port: 0, RequestTimeout: 5 * time.Second}
	return NewServer(d.redemption, d.entitlement, d.codeAdmin, d.auth, cfg, true, newTestLogger())
}
