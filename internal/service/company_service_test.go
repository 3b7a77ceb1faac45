package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/adapter"
	"github.com/rolewatch/rolewatch-api/internal/repository"
)

func newTestCompanies(t *testing.T) (*CompanyService, *repository.Repositories) {
	t.Helper()
	db := setupTestDB(t)
	repos := repository.NewRepositories(db)
	registry := adapter.NewRegistry(10*time.Second, time.Millisecond)
	return NewCompanyService(repos, registry, testLogger()), repos
}

func TestCompanyService_ListUnconfigured(t *testing.T) {
	svc, _ := newTestCompanies(t)

	out, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(out) == 0 {
		t.Fatal("List() returned no companies")
	}
	for _, overview := range out {
		if overview.Configured || overview.Enabled {
			t.Errorf("%s should be unconfigured and disabled, got %+v", overview.Company, overview)
		}
		if overview.IncludeFilters == nil || overview.ExcludeFilters == nil {
			t.Errorf("%s filters should be empty slices, not nil", overview.Company)
		}
	}
}

func TestCompanyService_UpsertAndList(t *testing.T) {
	svc, _ := newTestCompanies(t)
	ctx := context.Background()

	setting, err := svc.Upsert(ctx, "user-1", "anthropic", true, []string{"engineer"}, []string{"intern"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !setting.Enabled {
		t.Error("setting should be enabled")
	}

	out, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var found bool
	for _, overview := range out {
		if overview.Company != "anthropic" {
			continue
		}
		found = true
		if !overview.Configured || !overview.Enabled {
			t.Errorf("anthropic overview = %+v, want configured and enabled", overview)
		}
		if len(overview.IncludeFilters) != 1 || overview.IncludeFilters[0] != "engineer" {
			t.Errorf("IncludeFilters = %v", overview.IncludeFilters)
		}
		if len(overview.ExcludeFilters) != 1 || overview.ExcludeFilters[0] != "intern" {
			t.Errorf("ExcludeFilters = %v", overview.ExcludeFilters)
		}
	}
	if !found {
		t.Fatal("anthropic missing from List()")
	}
}

func TestCompanyService_UpsertReplaces(t *testing.T) {
	svc, repos := newTestCompanies(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "user-1", "plaid", true, []string{"backend"}, nil); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	if _, err := svc.Upsert(ctx, "user-1", "plaid", false, nil, nil); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	setting, err := repos.CompanySettings.GetByUserAndCompany(ctx, "user-1", "plaid")
	if err != nil {
		t.Fatalf("GetByUserAndCompany() error = %v", err)
	}
	if setting.Enabled {
		t.Error("setting should be disabled after replacement")
	}
	if len(setting.IncludeFilters) != 0 {
		t.Errorf("IncludeFilters = %v, want empty", setting.IncludeFilters)
	}
}

func TestCompanyService_UpsertUnsupported(t *testing.T) {
	svc, _ := newTestCompanies(t)

	_, err := svc.Upsert(context.Background(), "user-1", "initech", true, nil, nil)
	if !errors.Is(err, ErrUnsupportedCompany) {
		t.Fatalf("Upsert() error = %v, want ErrUnsupportedCompany", err)
	}
}

func TestCompanyService_Delete(t *testing.T) {
	svc, _ := newTestCompanies(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "user-1", "ramp", true, nil, nil); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	deleted, err := svc.Delete(ctx, "user-1", "ramp")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() = false, want true")
	}

	deleted, err = svc.Delete(ctx, "user-1", "ramp")
	if err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if deleted {
		t.Error("second Delete() = true, want false")
	}
}
