package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/streamvault/streamvault/internal/accounts"
	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

func newPlanRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler := NewPlanHandler(db, accounts.NewService(db))
	engine.POST("/v0/plans", handler.Create)
	engine.GET("/v0/plans", handler.List)
	engine.PUT("/v0/plans/:id", handler.Update)
	engine.DELETE("/v0/plans/:id", handler.Delete)
	return engine
}

func TestCreateAndListPlans(t *testing.T) {
	db := openTestDB(t)
	router := newPlanRouter(db)

	body := `{"name":"Gold","bouquet_ids":["10","20"],"duration_days":30,"price_ref":"price_gold_monthly"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v0/plans", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v0/plans", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var resp struct {
		Plans []struct {
			Name       string   `json:"name"`
			BouquetIDs []string `json:"bouquet_ids"`
		} `json:"plans"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if len(resp.Plans) != 1 || resp.Plans[0].Name != "Gold" {
		t.Fatalf("unexpected plans: %+v", resp.Plans)
	}
	if len(resp.Plans[0].BouquetIDs) != 2 {
		t.Fatalf("bouquet ids = %v, want 2 entries", resp.Plans[0].BouquetIDs)
	}
}

func TestCreatePlanRequiresName(t *testing.T) {
	router := newPlanRouter(openTestDB(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v0/plans", strings.NewReader(`{"duration_days":30}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without a name", rec.Code)
	}
}

func TestDeletePlanInUseConflicts(t *testing.T) {
	db := openTestDB(t)
	router := newPlanRouter(db)

	plan := models.Plan{Name: "Gold", DurationDays: 30}
	if errCreate := db.Create(&plan).Error; errCreate != nil {
		t.Fatalf("create plan: %v", errCreate)
	}
	accountService := accounts.NewService(db)
	account, errAccount := accountService.GetOrCreate(context.Background(), "user-1", "alice@example.com", "")
	if errAccount != nil {
		t.Fatalf("get or create: %v", errAccount)
	}
	if errAssign := accountService.ApplyPlanChange(context.Background(), account, plan.ID, nil); errAssign != nil {
		t.Fatalf("apply plan change: %v", errAssign)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/v0/plans/%d", plan.ID), nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 while referenced", rec.Code)
	}

	if errUnassign := db.Model(&models.Account{}).Where("id = ?", account.ID).
		Update("plan_id", nil).Error; errUnassign != nil {
		t.Fatalf("unassign plan: %v", errUnassign)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/v0/plans/%d", plan.ID), nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 once unreferenced", rec.Code)
	}
}
