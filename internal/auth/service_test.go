package auth

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aguardi/storefront-backend/internal/users"
	"github.com/aguardi/storefront-backend/pkg/config"
	"github.com/aguardi/storefront-backend/pkg/db/models"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		UserRepo: users.NewRepository(db),
		TxRunner: gormTxRunner{db: db},
		JWTConfig: config.JWTConfig{
			Secret:            "test-secret",
			Issuer:            "storefront",
			ExpirationMinutes: 30,
		},
		PasswordConfig: config.PasswordConfig{
			ArgonMemoryKB:    8192,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{
		FirstName: "Ana",
		LastName:  "Guardi",
		Email:     "Ana@Example.COM",
		Password:  "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}

	resp, err := svc.Login(ctx, LoginRequest{
		Email:    "ana@example.com",
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected access token")
	}
	if resp.User.LastLoginAt == nil {
		var reloaded models.User
		if err := db.First(&reloaded, "id = ?", user.ID).Error; err != nil {
			t.Fatalf("reload user: %v", err)
		}
		if reloaded.LastLoginAt == nil {
			t.Fatal("expected last_login_at to be recorded")
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	req := RegisterRequest{
		FirstName: "Ana",
		LastName:  "Guardi",
		Email:     "ana@example.com",
		Password:  "correct-horse-battery",
	}
	if _, err := svc.Register(ctx, req); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err := svc.Register(ctx, req)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{
		FirstName: "Ana",
		LastName:  "Guardi",
		Email:     "ana@example.com",
		Password:  "correct-horse-battery",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []LoginRequest{
		{Email: "ana@example.com", Password: "wrong"},
		{Email: "missing@example.com", Password: "correct-horse-battery"},
		{Email: "", Password: ""},
	}
	for _, req := range cases {
		_, err := svc.Login(ctx, req)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
			t.Fatalf("expected UNAUTHORIZED for %+v, got %v", req, err)
		}
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{
		FirstName: "Ana",
		LastName:  "Guardi",
		Email:     "ana@example.com",
		Password:  "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("is_active", false).Error; err != nil {
		t.Fatalf("deactivate user: %v", err)
	}

	_, err = svc.Login(ctx, LoginRequest{Email: "ana@example.com", Password: "correct-horse-battery"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}
