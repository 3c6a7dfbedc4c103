//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/usecase"
)

// TestPurchaseToActivationFlow walks one course from purchase to expiry
// across the bot-side and API-side use cases sharing one store.
func TestPurchaseToActivationFlow(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)
	logger := newTestLogger()
	redemption := usecase.NewRedemptionUseCase(f.codes, logger, false)
	redemption.SetClock(f.clock.Now)
	entitlements := usecase.NewEntitlementUseCase(f.codes, logger)
	entitlements.SetClock(f.clock.Now)

	course, ok := newTestCatalogue().Lookup(mathKey)
	if !ok || course.Name != mathName || course.Price != 499 {
		t.Fatalf("unexpected catalogue entry %+v", course)
	}

	// Purchase and proof.
	req, err := f.uc.CreateRequest(ctx, buyerID, "@anna", mathKey)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := f.uc.AttachProof(ctx, req.ID, buyerID, "receipt-photo"); err != nil {
		t.Fatalf("AttachProof: %v", err)
	}
	if len(f.bot.Photos) != 1 || f.bot.Photos[0].ChatID != approverID {
		t.Fatalf("approver was not notified: %+v", f.bot.Photos)
	}

	// Approval.
	d, err := f.uc.Decide(ctx, req.ID, approver, model.OutcomeApprove)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	code := d.Code.Code
	if f.requests.Len() != 0 {
		t.Error("request must be gone after approval")
	}
	msgs := f.bot.MessagesTo(buyerID)
	if len(msgs) != 1 || !strings.Contains(msgs[0], code) || !strings.Contains(msgs[0], mathName) {
		t.Fatalf("buyer did not receive the code: %v", msgs)
	}

	// A second purchase of the same course shows the existing code.
	_, err = f.uc.CreateRequest(ctx, buyerID, "@anna", mathKey)
	var ent *domain.AlreadyEntitledError
	if !errors.As(err, &ent) || ent.Code != code {
		t.Fatalf("expected AlreadyEntitledError with the code, got %v", err)
	}

	// Redemption on device X.
	act, err := redemption.Redeem(ctx, code, "device-X")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if act.Course != mathName || !act.ExpiresAt.Equal(f.clock.Now().Add(30*24*time.Hour)) {
		t.Errorf("unexpected activation %+v", act)
	}
	active, err := entitlements.ListActive(ctx, "device-X")
	if err != nil || len(active) != 1 || active[0].Course != mathName {
		t.Fatalf("expected one active course, got %+v %v", active, err)
	}

	// Sharing with device Y is refused and changes nothing.
	if _, err := redemption.Redeem(ctx, code, "device-Y"); !errors.Is(err, domain.ErrDeviceMismatch) {
		t.Errorf("expected ErrDeviceMismatch, got %v", err)
	}
	if got, _ := entitlements.ListActive(ctx, "device-Y"); len(got) != 0 {
		t.Errorf("device Y must hold nothing, got %+v", got)
	}
	if got, _ := entitlements.ListActive(ctx, "device-X"); len(got) != 1 {
		t.Errorf("device X must keep its access, got %+v", got)
	}

	// After expiry the course disappears and can be bought again.
	f.clock.Advance(31 * 24 * time.Hour)
	active, err = entitlements.ListActive(ctx, "device-X")
	if err != nil || len(active) != 0 {
		t.Errorf("expected no active courses after expiry, got %+v %v", active, err)
	}
	if _, err := f.uc.CreateRequest(ctx, buyerID, "@anna", mathKey); err != nil {
		t.Errorf("expected a new purchase to be allowed, got %v", err)
	}
}
