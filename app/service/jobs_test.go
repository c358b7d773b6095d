package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-course-purchases/app/entity"
)

func backdatePurchase(store *memStore, id uint64, by time.Duration) {
	store.mu.Lock()
	defer store.mu.Unlock()
	item := store.purchases[id]
	item.CreatedAt = item.CreatedAt.Add(-by)
	item.UpdatedAt = item.UpdatedAt.Add(-by)
}

func TestRunReconcileBatchCompletesPaidStalePurchases(t *testing.T) {
	f := newServiceFixture(t, defaultTestConfig())
	ctx := context.Background()

	paid, _ := f.svc.StartCheckout(ctx, "user-1", 7)
	unpaid, _ := f.svc.StartCheckout(ctx, "user-2", 7)
	f.provider.markPaid(*paid.ProviderSessionID, 100000)
	backdatePurchase(f.store, paid.ID, time.Hour)
	backdatePurchase(f.store, unpaid.ID, time.Hour)

	if err := f.svc.RunReconcileBatch(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if f.store.purchase(paid.ID).Status != entity.PurchaseStatusCompleted {
		t.Fatal("expected paid purchase completed")
	}
	if f.store.purchase(unpaid.ID).Status != entity.PurchaseStatusPending {
		t.Fatal("expected unpaid purchase pending")
	}
	if !containsString(f.store.eventTypes(paid.ID), "purchase_reconciled") {
		t.Fatalf("expected purchase_reconciled event, got %v", f.store.eventTypes(paid.ID))
	}
	if f.provider.getCalls != 2 {
		t.Fatalf("expected 2 provider lookups, got %d", f.provider.getCalls)
	}
}

func TestRunReconcileBatchSkipsFreshAndExpiredPurchases(t *testing.T) {
	f := newServiceFixture(t, defaultTestConfig())
	ctx := context.Background()

	fresh, _ := f.svc.StartCheckout(ctx, "user-1", 7)
	expired, _ := f.svc.StartCheckout(ctx, "user-2", 7)
	f.provider.markPaid(*fresh.ProviderSessionID, 100000)
	f.provider.markPaid(*expired.ProviderSessionID, 100000)
	backdatePurchase(f.store, expired.ID, 48*time.Hour)

	if err := f.svc.RunReconcileBatch(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.provider.getCalls != 0 {
		t.Fatalf("expected no provider lookups, got %d", f.provider.getCalls)
	}
	if f.store.purchase(fresh.ID).Status != entity.PurchaseStatusPending {
		t.Fatal("expected fresh purchase untouched")
	}
}

func TestRunReconcileBatchReportsProviderErrors(t *testing.T) {
	f := newServiceFixture(t, defaultTestConfig())
	ctx := context.Background()

	first, _ := f.svc.StartCheckout(ctx, "user-1", 7)
	second, _ := f.svc.StartCheckout(ctx, "user-2", 7)
	backdatePurchase(f.store, first.ID, time.Hour)
	backdatePurchase(f.store, second.ID, time.Hour)
	f.provider.getErr = errors.New("stripe unavailable")

	if err := f.svc.RunReconcileBatch(ctx); err == nil {
		t.Fatal("expected provider error")
	}
	if f.provider.getCalls != 2 {
		t.Fatalf("expected every purchase to be tried, got %d lookups", f.provider.getCalls)
	}
	if f.store.purchase(first.ID).Status != entity.PurchaseStatusPending {
		t.Fatal("expected purchase pending")
	}
}

func TestRunReconcileBatchRespectsBatchSize(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.JobBatchSize = 1
	f := newServiceFixture(t, cfg)
	ctx := context.Background()

	for _, user := range []string{"user-1", "user-2", "user-3"} {
		p, _ := f.svc.StartCheckout(ctx, user, 7)
		backdatePurchase(f.store, p.ID, time.Hour)
	}

	if err := f.svc.RunReconcileBatch(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.provider.getCalls != 1 {
		t.Fatalf("expected 1 provider lookup, got %d", f.provider.getCalls)
	}
}
