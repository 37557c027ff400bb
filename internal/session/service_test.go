package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/config"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := config.AuthConfig{SessionTTL: 24 * time.Hour}
	return NewService(NewStore(client), cfg), mr
}

func TestIssueAndValidate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token, sess, err := svc.Issue(ctx, 7, "admin", "device-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char hex token, got %d chars", len(token))
	}
	if sess.AccountID != 7 || sess.Username != "admin" || sess.DeviceID != "device-1" {
		t.Errorf("session fields wrong: %+v", sess)
	}

	got, err := svc.Validate(ctx, token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.AccountID != 7 {
		t.Errorf("validated session has wrong account: %+v", got)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Validate(context.Background(), "deadbeef")
	if !apperror.IsType(err, apperror.TypeTokenUnknown) {
		t.Errorf("expected token_unknown, got %v", err)
	}

	_, err = svc.Validate(context.Background(), "")
	if !apperror.IsType(err, apperror.TypeTokenUnknown) {
		t.Errorf("expected token_unknown for empty token, got %v", err)
	}
}

func TestValidateRevokedToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token, _, err := svc.Issue(ctx, 7, "admin", "device-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	_, err = svc.Validate(ctx, token)
	if !apperror.IsType(err, apperror.TypeTokenRevoked) {
		t.Errorf("expected token_revoked, got %v", err)
	}

	// Idempotent.
	if err := svc.Revoke(ctx, token); err != nil {
		t.Errorf("second revoke should be a no-op, got %v", err)
	}
}

func TestRevokeKeepsRecordExpiry(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	token, _, err := svc.Issue(ctx, 7, "admin", "device-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// The revoked marker must decay on the original schedule, never
	// become a permanent key.
	ttl := mr.TTL("session:" + token)
	if ttl <= 0 || ttl > 24*time.Hour {
		t.Errorf("revoked record lost its expiry, ttl %v", ttl)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token, _, err := svc.Issue(ctx, 7, "admin", "device-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Move the service clock past the expiry while the record still
	// exists in Redis.
	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	_, err = svc.Validate(ctx, token)
	if !apperror.IsType(err, apperror.TypeTokenExpired) {
		t.Errorf("expected token_expired, got %v", err)
	}
}

func TestRevokedRecordDecaysToUnknown(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	token, _, err := svc.Issue(ctx, 7, "admin", "device-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// The revoked marker keeps the original TTL and then the record
	// disappears entirely.
	mr.FastForward(25 * time.Hour)

	_, err = svc.Validate(ctx, token)
	if !apperror.IsType(err, apperror.TypeTokenUnknown) {
		t.Errorf("expected token_unknown after ttl, got %v", err)
	}
}

func TestRevokeDevice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t1, _, _ := svc.Issue(ctx, 7, "admin", "device-1")
	t2, _, _ := svc.Issue(ctx, 7, "admin", "device-1")
	t3, _, _ := svc.Issue(ctx, 7, "admin", "device-2")

	if err := svc.RevokeDevice(ctx, "device-1"); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}

	for _, token := range []string{t1, t2} {
		if _, err := svc.Validate(ctx, token); !apperror.IsType(err, apperror.TypeTokenRevoked) {
			t.Errorf("device-1 token should be revoked, got %v", err)
		}
	}
	if _, err := svc.Validate(ctx, t3); err != nil {
		t.Errorf("device-2 token should survive, got %v", err)
	}
}

func TestRevokeAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t1, _, _ := svc.Issue(ctx, 7, "admin", "device-1")
	t2, _, _ := svc.Issue(ctx, 7, "admin", "device-2")
	other, _, _ := svc.Issue(ctx, 8, "other", "device-3")

	if err := svc.RevokeAccount(ctx, 7); err != nil {
		t.Fatalf("RevokeAccount: %v", err)
	}

	for _, token := range []string{t1, t2} {
		if _, err := svc.Validate(ctx, token); !apperror.IsType(err, apperror.TypeTokenRevoked) {
			t.Errorf("account token should be revoked, got %v", err)
		}
	}
	if _, err := svc.Validate(ctx, other); err != nil {
		t.Errorf("other account's token should survive, got %v", err)
	}
}
