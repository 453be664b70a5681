package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/streamvault/streamvault/internal/accounts"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/panel"
	internalsettings "github.com/streamvault/streamvault/internal/settings"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.Plan{}, &models.Account{}, &models.Job{}, &models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func newTestWorker(db *gorm.DB, executors map[string]ExecutorFunc, now func() time.Time) *Worker {
	if now == nil {
		now = time.Now
	}
	return &Worker{db: db, executors: executors, interval: time.Second, now: now}
}

func loadJob(t *testing.T, db *gorm.DB, id uint64) *models.Job {
	t.Helper()
	var job models.Job
	if errFind := db.First(&job, id).Error; errFind != nil {
		t.Fatalf("load job: %v", errFind)
	}
	return &job
}

func TestEnqueueDefaultsMaxAttempts(t *testing.T) {
	db := openTestDB(t)

	job, errEnqueue := Enqueue(context.Background(), db, models.JobTypeSync, "user-1", nil, 0, time.Time{})
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if job.MaxAttempts != models.DefaultJobMaxAttempts {
		t.Fatalf("max attempts = %d, want %d", job.MaxAttempts, models.DefaultJobMaxAttempts)
	}
	if job.Status != models.JobStatusPending || job.Attempts != 0 {
		t.Fatalf("new job must be pending with zero attempts")
	}

	if errSet := internalsettings.Set(context.Background(), db, internalsettings.JobMaxAttemptsKey, "3"); errSet != nil {
		t.Fatalf("set setting: %v", errSet)
	}
	job, errEnqueue = Enqueue(context.Background(), db, models.JobTypeSync, "user-1", nil, 0, time.Time{})
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if job.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want configured 3", job.MaxAttempts)
	}
}

func TestRunOnceMarksSuccess(t *testing.T) {
	db := openTestDB(t)
	calls := 0
	worker := newTestWorker(db, map[string]ExecutorFunc{
		models.JobTypeSync: func(ctx context.Context, job *models.Job) error {
			calls++
			return nil
		},
	}, nil)

	job, errEnqueue := Enqueue(context.Background(), db, models.JobTypeSync, "user-1", nil, 0, time.Time{})
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if errRun := worker.RunOnce(context.Background()); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}

	stored := loadJob(t, db, job.ID)
	if stored.Status != models.JobStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", stored.Status)
	}
	if stored.Attempts != 1 || calls != 1 {
		t.Fatalf("attempts = %d calls = %d, want 1/1", stored.Attempts, calls)
	}
}

func TestRunOnceRetriesWithBackoff(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	worker := newTestWorker(db, map[string]ExecutorFunc{
		models.JobTypeProvision: func(ctx context.Context, job *models.Job) error {
			return errors.New("panel unreachable")
		},
	}, func() time.Time { return now })

	job, errEnqueue := Enqueue(context.Background(), db, models.JobTypeProvision, "user-1", nil, 5, now)
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}

	if errRun := worker.RunOnce(context.Background()); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}
	stored := loadJob(t, db, job.ID)
	if stored.Status != models.JobStatusPending {
		t.Fatalf("status = %q, want pending for retry", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", stored.Attempts)
	}
	if stored.LastError == "" {
		t.Fatalf("last_error must record the failure")
	}
	wantNext := now.Add(30 * time.Second)
	if !stored.NextRunAt.UTC().Equal(wantNext) {
		t.Fatalf("next_run_at = %v, want %v", stored.NextRunAt.UTC(), wantNext)
	}

	// Not yet due: a pass now must leave the job untouched.
	if errRun := worker.RunOnce(context.Background()); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}
	if stored = loadJob(t, db, job.ID); stored.Attempts != 1 {
		t.Fatalf("job ran before its next_run_at")
	}

	// Advance past the delay: attempt two, backoff doubles.
	now = now.Add(31 * time.Second)
	if errRun := worker.RunOnce(context.Background()); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}
	stored = loadJob(t, db, job.ID)
	if stored.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", stored.Attempts)
	}
	wantNext = now.Add(60 * time.Second)
	if !stored.NextRunAt.UTC().Equal(wantNext) {
		t.Fatalf("next_run_at = %v, want doubled delay %v", stored.NextRunAt.UTC(), wantNext)
	}
}

func TestRunOnceExhaustsAttemptBudget(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	worker := newTestWorker(db, map[string]ExecutorFunc{
		models.JobTypeSuspend: func(ctx context.Context, job *models.Job) error {
			return errors.New("still broken")
		},
	}, func() time.Time { return now })

	job, errEnqueue := Enqueue(context.Background(), db, models.JobTypeSuspend, "user-1", nil, 2, now)
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}

	for i := 0; i < 2; i++ {
		if errRun := worker.RunOnce(context.Background()); errRun != nil {
			t.Fatalf("run once: %v", errRun)
		}
		now = now.Add(time.Hour)
	}

	stored := loadJob(t, db, job.ID)
	if stored.Status != models.JobStatusFailed {
		t.Fatalf("status = %q, want failed after budget exhaustion", stored.Status)
	}
	if stored.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", stored.Attempts)
	}
	if stored.LastError == "" {
		t.Fatalf("terminal failure must keep last_error")
	}
}

func TestUnknownJobTypeFailsTerminally(t *testing.T) {
	db := openTestDB(t)
	worker := newTestWorker(db, map[string]ExecutorFunc{}, nil)

	job, errEnqueue := Enqueue(context.Background(), db, "resync_epg", "user-1", nil, 0, time.Time{})
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if errRun := worker.RunOnce(context.Background()); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}

	stored := loadJob(t, db, job.ID)
	if stored.Status != models.JobStatusFailed {
		t.Fatalf("status = %q, want failed for unknown type", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("unknown type must not be retried, attempts = %d", stored.Attempts)
	}
}

func TestBackoffFor(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{6, 16 * time.Minute},
		{8, time.Hour},
		{20, time.Hour},
	}
	for _, tc := range cases {
		if got := backoffFor(tc.attempts); got != tc.want {
			t.Fatalf("backoffFor(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}

func TestProvisionJobEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))
	defer server.Close()

	db := openTestDB(t)
	ctx := context.Background()
	for key, value := range map[string]string{
		internalsettings.PanelBaseURLKey:  server.URL + "/api.php",
		internalsettings.PanelAPIKeyKey:   "secret",
		internalsettings.StreamBaseURLKey: "http://stream.example.com",
	} {
		if errSet := internalsettings.Set(ctx, db, key, value); errSet != nil {
			t.Fatalf("set setting: %v", errSet)
		}
	}

	plan := models.Plan{Name: "Gold", DurationDays: 30, BouquetIDs: accounts.EncodeBouquets([]string{"10", "20"})}
	if errCreate := db.Create(&plan).Error; errCreate != nil {
		t.Fatalf("create plan: %v", errCreate)
	}

	accountService := accounts.NewService(db)
	account, errAccount := accountService.GetOrCreate(ctx, "user-1", "alice@example.com", "")
	if errAccount != nil {
		t.Fatalf("get or create: %v", errAccount)
	}

	executors := NewExecutors(db, accountService, panel.NewClient())
	worker := NewWorker(db, executors, time.Second)

	if _, errEnqueue := Enqueue(ctx, db, models.JobTypeProvision, "user-1", ProvisionPayload{PlanID: &plan.ID}, 0, time.Time{}); errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if errRun := worker.RunOnce(ctx); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}

	refreshed, errGet := accountService.Get(ctx, "user-1")
	if errGet != nil {
		t.Fatalf("get account: %v", errGet)
	}
	if refreshed.Status != models.AccountStatusActive {
		t.Fatalf("status = %q, want active after provisioning", refreshed.Status)
	}
	if refreshed.PlanID == nil || *refreshed.PlanID != plan.ID {
		t.Fatalf("plan not assigned")
	}
	if refreshed.M3UURL != accounts.BuildM3U("http://stream.example.com", account.Username, refreshed.Password) {
		t.Fatalf("m3u url not built from stream base, got %q", refreshed.M3UURL)
	}
	if refreshed.ExpiresAt == nil {
		t.Fatalf("expiry must derive from the plan duration")
	}
}

func TestMissingPanelConfigIsRetryable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	accountService := accounts.NewService(db)
	if _, errAccount := accountService.GetOrCreate(ctx, "user-1", "alice@example.com", ""); errAccount != nil {
		t.Fatalf("get or create: %v", errAccount)
	}

	executors := NewExecutors(db, accountService, panel.NewClient())
	worker := NewWorker(db, executors, time.Second)

	job, errEnqueue := Enqueue(ctx, db, models.JobTypeProvision, "user-1", ProvisionPayload{}, 0, time.Time{})
	if errEnqueue != nil {
		t.Fatalf("enqueue: %v", errEnqueue)
	}
	if errRun := worker.RunOnce(ctx); errRun != nil {
		t.Fatalf("run once: %v", errRun)
	}

	stored := loadJob(t, db, job.ID)
	if stored.Status != models.JobStatusPending {
		t.Fatalf("status = %q, want pending: missing settings must be retryable", stored.Status)
	}
	if stored.LastError == "" {
		t.Fatalf("last_error must name the missing settings")
	}
}
