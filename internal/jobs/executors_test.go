package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/streamvault/streamvault/internal/accounts"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/panel"
	internalsettings "github.com/streamvault/streamvault/internal/settings"
	"gorm.io/gorm"
)

func configurePanelSettings(t *testing.T, db *gorm.DB, panelURL string) {
	t.Helper()
	ctx := context.Background()
	for key, value := range map[string]string{
		internalsettings.PanelBaseURLKey:  panelURL + "/api.php",
		internalsettings.PanelAPIKeyKey:   "secret",
		internalsettings.StreamBaseURLKey: "http://stream.example.com",
	} {
		if errSet := internalsettings.Set(ctx, db, key, value); errSet != nil {
			t.Fatalf("set setting: %v", errSet)
		}
	}
}

func TestSyncExecutorMirrorsRemoteState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]any{"status": "success"}
		if r.URL.Query().Get("username") != "" {
			response["user_info"] = map[string]any{"status": "Disabled", "exp_date": "1798761600"}
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	db := openTestDB(t)
	configurePanelSettings(t, db, server.URL)
	ctx := context.Background()

	accountService := accounts.NewService(db)
	account, errAccount := accountService.GetOrCreate(ctx, "user-1", "alice@example.com", "")
	if errAccount != nil {
		t.Fatalf("get or create: %v", errAccount)
	}
	if errProvision := accountService.ApplyProvisionResult(ctx, account, nil, nil, nil, "http://stream.example.com"); errProvision != nil {
		t.Fatalf("apply provision: %v", errProvision)
	}

	executors := NewExecutors(db, accountService, panel.NewClient())
	worker := NewWorker(db, executors, time.Second)
	if _, errEnqueue := Enqueue(ctx, db, models.JobTypeSync, "user-1", nil, 0, time.Time{}); errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if errRun := worker.RunOnce(ctx); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}

	refreshed, errGet := accountService.Get(ctx, "user-1")
	if errGet != nil {
		t.Fatalf("get account: %v", errGet)
	}
	if refreshed.Status != models.AccountStatusSuspended {
		t.Fatalf("status = %q, want suspended mirrored from the panel", refreshed.Status)
	}
	wantExpiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if refreshed.ExpiresAt == nil || !refreshed.ExpiresAt.UTC().Equal(wantExpiry) {
		t.Fatalf("expires_at = %v, want %v", refreshed.ExpiresAt, wantExpiry)
	}
}

func TestChangePlanExecutorAppliesPlanBouquets(t *testing.T) {
	var lastBouquet string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sub") == "edit" {
			lastBouquet = r.URL.Query().Get("bouquet")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))
	defer server.Close()

	db := openTestDB(t)
	configurePanelSettings(t, db, server.URL)
	ctx := context.Background()

	plan := models.Plan{Name: "Sports", DurationDays: 30, BouquetIDs: accounts.EncodeBouquets([]string{"30", "40"})}
	if errCreate := db.Create(&plan).Error; errCreate != nil {
		t.Fatalf("create plan: %v", errCreate)
	}

	accountService := accounts.NewService(db)
	if _, errAccount := accountService.GetOrCreate(ctx, "user-1", "alice@example.com", ""); errAccount != nil {
		t.Fatalf("get or create: %v", errAccount)
	}

	executors := NewExecutors(db, accountService, panel.NewClient())
	worker := NewWorker(db, executors, time.Second)
	if _, errEnqueue := Enqueue(ctx, db, models.JobTypeChangePlan, "user-1", ChangePlanPayload{PlanID: plan.ID}, 0, time.Time{}); errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if errRun := worker.RunOnce(ctx); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}

	refreshed, errGet := accountService.Get(ctx, "user-1")
	if errGet != nil {
		t.Fatalf("get account: %v", errGet)
	}
	if refreshed.PlanID == nil || *refreshed.PlanID != plan.ID {
		t.Fatalf("plan not recorded locally")
	}
	if got := accounts.DecodeBouquets(refreshed.BouquetIDs); len(got) != 2 || got[0] != "30" {
		t.Fatalf("bouquets = %v, want the plan's", got)
	}
	if lastBouquet != `["30","40"]` {
		t.Fatalf("panel bouquet param = %q, want the plan's encoded list", lastBouquet)
	}
}

func TestChangePasswordExecutorUpdatesPlaylist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))
	defer server.Close()

	db := openTestDB(t)
	configurePanelSettings(t, db, server.URL)
	ctx := context.Background()

	accountService := accounts.NewService(db)
	account, errAccount := accountService.GetOrCreate(ctx, "user-1", "alice@example.com", "")
	if errAccount != nil {
		t.Fatalf("get or create: %v", errAccount)
	}

	executors := NewExecutors(db, accountService, panel.NewClient())
	worker := NewWorker(db, executors, time.Second)
	if _, errEnqueue := Enqueue(ctx, db, models.JobTypeChangePassword, "user-1", ChangePasswordPayload{NewPassword: "brandnewpass1"}, 0, time.Time{}); errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if errRun := worker.RunOnce(ctx); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}

	refreshed, errGet := accountService.Get(ctx, "user-1")
	if errGet != nil {
		t.Fatalf("get account: %v", errGet)
	}
	if refreshed.Password != "brandnewpass1" {
		t.Fatalf("password not rotated")
	}
	if refreshed.M3UURL != accounts.BuildM3U("http://stream.example.com", account.Username, "brandnewpass1") {
		t.Fatalf("playlist url not recomputed: %q", refreshed.M3UURL)
	}
}
