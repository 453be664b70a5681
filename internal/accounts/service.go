package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/streamvault/streamvault/internal/db"
	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MinPasswordLength is the shortest panel password accepted.
const MinPasswordLength = 8

// Sentinel errors returned by the account store.
var (
	// ErrAccountNotFound indicates no account exists for the user.
	ErrAccountNotFound = errors.New("accounts: account not found")
	// ErrPlanNotFound indicates the referenced plan does not exist.
	ErrPlanNotFound = errors.New("accounts: plan not found")
	// ErrPlanInUse indicates a plan is still referenced by accounts.
	ErrPlanInUse = errors.New("accounts: plan is referenced by existing accounts")
	// ErrNoUsableUsername indicates neither a username nor an email to
	// derive one from is available.
	ErrNoUsableUsername = errors.New("accounts: no username requested and no email to derive one from")
	// ErrPasswordTooShort indicates the requested password fails validation.
	ErrPasswordTooShort = fmt.Errorf("accounts: password must be at least %d characters", MinPasswordLength)
)

// Service enforces account and plan invariants over the database.
type Service struct {
	db *gorm.DB // Database handle for account records.
}

// NewService constructs an account service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetOrCreate returns the user's account, creating a pending one with a
// generated password when absent. It never contacts the panel.
func (s *Service) GetOrCreate(ctx context.Context, userID, email, desiredUsername string) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("accounts: not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("accounts: empty user id")
	}

	var existing models.Account
	errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	if errFind == nil {
		return &existing, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("accounts: load account: %w", errFind)
	}

	username := strings.TrimSpace(desiredUsername)
	if username == "" {
		username = DeriveUsername(email)
	}
	if username == "" {
		return nil, ErrNoUsableUsername
	}

	now := time.Now().UTC()
	account := models.Account{
		UserID:     userID,
		Email:      strings.TrimSpace(email),
		Provider:   models.ProviderXtremeUI,
		Username:   username,
		Password:   GeneratePassword(),
		BouquetIDs: datatypes.JSON([]byte("[]")),
		Status:     models.AccountStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&account).Error; errCreate != nil {
		return nil, fmt.Errorf("accounts: create account: %w", errCreate)
	}
	return &account, nil
}

// Get returns the user's account with its plan resolved, or
// ErrAccountNotFound.
func (s *Service) Get(ctx context.Context, userID string) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("accounts: not initialized")
	}
	var account models.Account
	errFind := s.db.WithContext(ctx).Preload("Plan").Where("user_id = ?", strings.TrimSpace(userID)).First(&account).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("accounts: load account: %w", errFind)
	}
	return &account, nil
}

// EnsurePassword guarantees the account has a non-empty password,
// generating and persisting one before any panel call that needs it.
func (s *Service) EnsurePassword(ctx context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("accounts: nil account")
	}
	if strings.TrimSpace(account.Password) != "" {
		return nil
	}
	account.Password = GeneratePassword()
	if errUpdate := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).
		Updates(map[string]any{"password": account.Password, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		return fmt.Errorf("accounts: persist password: %w", errUpdate)
	}
	return nil
}

// ApplyProvisionResult marks the account active and records plan, bouquet,
// and expiry assignments. Called only after the panel call succeeded.
func (s *Service) ApplyProvisionResult(ctx context.Context, account *models.Account, planID *uint64, bouquetIDs []string, expiresAt *time.Time, streamBase string) error {
	if account == nil {
		return fmt.Errorf("accounts: nil account")
	}

	updates := map[string]any{
		"status":     models.AccountStatusActive,
		"m3u_url":    BuildM3U(streamBase, account.Username, account.Password),
		"updated_at": time.Now().UTC(),
	}
	if planID != nil {
		updates["plan_id"] = *planID
	}
	if bouquetIDs != nil {
		updates["bouquet_ids"] = EncodeBouquets(bouquetIDs)
	}
	if expiresAt != nil {
		updates["expires_at"] = expiresAt.UTC()
	}

	if errUpdate := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("accounts: apply provision: %w", errUpdate)
	}

	account.Status = models.AccountStatusActive
	account.M3UURL = updates["m3u_url"].(string)
	if planID != nil {
		account.PlanID = planID
	}
	if bouquetIDs != nil {
		account.BouquetIDs = EncodeBouquets(bouquetIDs)
	}
	if expiresAt != nil {
		expiry := expiresAt.UTC()
		account.ExpiresAt = &expiry
	}
	return nil
}

// ApplySuspend marks the account suspended. Idempotent.
func (s *Service) ApplySuspend(ctx context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("accounts: nil account")
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).
		Updates(map[string]any{"status": models.AccountStatusSuspended, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		return fmt.Errorf("accounts: apply suspend: %w", errUpdate)
	}
	account.Status = models.AccountStatusSuspended
	return nil
}

// ApplyRenew records a renewed expiry and reactivates the account.
func (s *Service) ApplyRenew(ctx context.Context, account *models.Account, expiresAt *time.Time) error {
	if account == nil {
		return fmt.Errorf("accounts: nil account")
	}
	updates := map[string]any{
		"status":     models.AccountStatusActive,
		"updated_at": time.Now().UTC(),
	}
	if expiresAt != nil {
		updates["expires_at"] = expiresAt.UTC()
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("accounts: apply renew: %w", errUpdate)
	}
	account.Status = models.AccountStatusActive
	if expiresAt != nil {
		expiry := expiresAt.UTC()
		account.ExpiresAt = &expiry
	}
	return nil
}

// ApplyPasswordChange stores the new password and recomputes the playlist
// URL. Called only after the panel accepted the change.
func (s *Service) ApplyPasswordChange(ctx context.Context, account *models.Account, newPassword, streamBase string) error {
	if account == nil {
		return fmt.Errorf("accounts: nil account")
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	m3u := BuildM3U(streamBase, account.Username, newPassword)
	if errUpdate := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).
		Updates(map[string]any{"password": newPassword, "m3u_url": m3u, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		return fmt.Errorf("accounts: apply password change: %w", errUpdate)
	}
	account.Password = newPassword
	account.M3UURL = m3u
	return nil
}

// ApplyPlanChange records the new plan and bouquet assignment.
func (s *Service) ApplyPlanChange(ctx context.Context, account *models.Account, planID uint64, bouquetIDs []string) error {
	if account == nil {
		return fmt.Errorf("accounts: nil account")
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).
		Updates(map[string]any{
			"plan_id":     planID,
			"bouquet_ids": EncodeBouquets(bouquetIDs),
			"updated_at":  time.Now().UTC(),
		}).Error; errUpdate != nil {
		return fmt.Errorf("accounts: apply plan change: %w", errUpdate)
	}
	account.PlanID = &planID
	account.BouquetIDs = EncodeBouquets(bouquetIDs)
	return nil
}

// RefreshM3U recomputes and persists the playlist URL from current
// credentials and the authoritative stream base.
func (s *Service) RefreshM3U(ctx context.Context, account *models.Account, streamBase string) error {
	if account == nil {
		return fmt.Errorf("accounts: nil account")
	}
	m3u := BuildM3U(streamBase, account.Username, account.Password)
	if m3u == account.M3UURL {
		return nil
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).
		Updates(map[string]any{"m3u_url": m3u, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		return fmt.Errorf("accounts: refresh m3u: %w", errUpdate)
	}
	account.M3UURL = m3u
	return nil
}

// MirrorRemoteStatus applies a recognizable panel-reported status. Strings
// other than active/suspended synonyms are dropped; the caller decides
// whether to log them.
func (s *Service) MirrorRemoteStatus(ctx context.Context, account *models.Account, remoteStatus string, expiresAt *time.Time) (bool, error) {
	if account == nil {
		return false, fmt.Errorf("accounts: nil account")
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	applied := false

	switch strings.ToLower(strings.TrimSpace(remoteStatus)) {
	case "active", "enabled", "ok":
		updates["status"] = models.AccountStatusActive
		applied = true
	case "suspended", "disabled", "banned", "expired":
		updates["status"] = models.AccountStatusSuspended
		applied = true
	}
	if expiresAt != nil {
		updates["expires_at"] = expiresAt.UTC()
		applied = true
	}
	if !applied {
		return false, nil
	}

	if errUpdate := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; errUpdate != nil {
		return false, fmt.Errorf("accounts: mirror remote status: %w", errUpdate)
	}
	if status, ok := updates["status"].(string); ok {
		account.Status = status
	}
	if expiresAt != nil {
		expiry := expiresAt.UTC()
		account.ExpiresAt = &expiry
	}
	return true, nil
}

// SearchAccounts returns accounts matching an optional case-insensitive
// username/email fragment and an optional status, newest first.
func (s *Service) SearchAccounts(ctx context.Context, search, status string, limit int) ([]models.Account, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("accounts: not initialized")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Model(&models.Account{}).Preload("Plan")
	if search = strings.TrimSpace(search); search != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+search+"%")
		q = q.Where(
			s.db.Where(db.CaseInsensitiveLikeExpr(s.db, "username"), pattern).
				Or(db.CaseInsensitiveLikeExpr(s.db, "email"), pattern),
		)
	}
	if status = strings.TrimSpace(status); status != "" {
		q = q.Where("status = ?", status)
	}

	var rows []models.Account
	if errFind := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("accounts: search: %w", errFind)
	}
	return rows, nil
}

// PlansWithBouquet returns plans whose bouquet list contains the given ID.
func (s *Service) PlansWithBouquet(ctx context.Context, bouquetID string) ([]models.Plan, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("accounts: not initialized")
	}
	bouquetID = strings.TrimSpace(bouquetID)
	if bouquetID == "" {
		return nil, fmt.Errorf("accounts: empty bouquet id")
	}

	arg := any(bouquetID)
	if !db.IsSQLite(s.db) {
		encoded, errMarshal := json.Marshal([]string{bouquetID})
		if errMarshal != nil {
			return nil, fmt.Errorf("accounts: encode bouquet filter: %w", errMarshal)
		}
		arg = datatypes.JSON(encoded)
	}

	var rows []models.Plan
	if errFind := s.db.WithContext(ctx).
		Where(db.JSONArrayContainsExpr(s.db, "bouquet_ids"), arg).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("accounts: plans by bouquet: %w", errFind)
	}
	return rows, nil
}

// GetPlan loads a plan by ID or returns ErrPlanNotFound.
func (s *Service) GetPlan(ctx context.Context, planID uint64) (*models.Plan, error) {
	var plan models.Plan
	errFind := s.db.WithContext(ctx).First(&plan, planID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("accounts: load plan: %w", errFind)
	}
	return &plan, nil
}

// DeletePlan removes a plan unless any account still references it.
func (s *Service) DeletePlan(ctx context.Context, planID uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("accounts: not initialized")
	}

	var referencing int64
	if errCount := s.db.WithContext(ctx).Model(&models.Account{}).Where("plan_id = ?", planID).Count(&referencing).Error; errCount != nil {
		return fmt.Errorf("accounts: count plan references: %w", errCount)
	}
	if referencing > 0 {
		return ErrPlanInUse
	}

	res := s.db.WithContext(ctx).Delete(&models.Plan{}, planID)
	if res.Error != nil {
		return fmt.Errorf("accounts: delete plan: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// DeriveUsername builds a panel username from an email's local part.
func DeriveUsername(email string) string {
	local := strings.TrimSpace(email)
	if at := strings.IndexByte(local, '@'); at > 0 {
		local = local[:at]
	} else if at == 0 {
		return ""
	}
	local = strings.ToLower(local)

	var cleaned strings.Builder
	for _, ch := range local {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '.' || ch == '-' {
			cleaned.WriteRune(ch)
		}
	}
	return cleaned.String()
}

// GeneratePassword returns a fresh random panel password.
func GeneratePassword() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:12]
}

// EncodeBouquets serializes a bouquet ID list for storage.
func EncodeBouquets(ids []string) datatypes.JSON {
	if ids == nil {
		ids = []string{}
	}
	data, errMarshal := json.Marshal(ids)
	if errMarshal != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}

// DecodeBouquets deserializes a stored bouquet ID list.
func DecodeBouquets(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if errUnmarshal := json.Unmarshal(raw, &ids); errUnmarshal != nil {
		return nil
	}
	return ids
}
