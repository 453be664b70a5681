package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/streamvault/streamvault/internal/accounts"
	"github.com/streamvault/streamvault/internal/jobs"
	"github.com/streamvault/streamvault/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Reactor translates payment status transitions into lifecycle jobs. It
// never calls the panel itself; entitlement changes always go through the
// job queue so a flapping payment provider cannot hammer the panel.
type Reactor struct {
	db       *gorm.DB
	accounts *accounts.Service
}

// NewReactor constructs a payment-status reactor.
func NewReactor(db *gorm.DB, accountService *accounts.Service) *Reactor {
	return &Reactor{db: db, accounts: accountService}
}

// entitledStatuses are the payment states that grant service.
var entitledStatuses = map[string]bool{
	"active":   true,
	"trialing": true,
	"free":     true,
}

// revokedStatuses are the payment states that withdraw service. Only
// terminal non-payment counts; past-due and other grace-period states are
// ignored here so a late invoice never suspends a subscriber.
var revokedStatuses = map[string]bool{
	"canceled":           true,
	"cancelled":          true,
	"unpaid":             true,
	"incomplete_expired": true,
}

// OnPaymentStatusChanged reacts to one payment status transition for a user.
// Entitled states ensure an account exists and enqueue provisioning (plus a
// renew when the paid period end is known); revoked states enqueue a suspend
// for existing accounts. Anything else is a no-op.
func (r *Reactor) OnPaymentStatusChanged(ctx context.Context, userID, email, status string, periodEnd *time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("billing: reactor not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("billing: empty user id")
	}
	status = strings.ToLower(strings.TrimSpace(status))

	switch {
	case entitledStatuses[status]:
		return r.grant(ctx, userID, email, periodEnd)
	case revokedStatuses[status]:
		return r.revoke(ctx, userID)
	default:
		log.Debugf("billing: ignoring payment status %q for %s", status, userID)
		return nil
	}
}

// grant ensures the user has an account and queues provisioning work.
func (r *Reactor) grant(ctx context.Context, userID, email string, periodEnd *time.Time) error {
	account, errAccount := r.accounts.GetOrCreate(ctx, userID, email, "")
	if errAccount != nil {
		if errors.Is(errAccount, accounts.ErrNoUsableUsername) {
			// No email to derive a username from yet. Provisioning is
			// deferred until the user record carries one.
			log.Warnf("billing: deferring provisioning for %s: no usable username", userID)
			return nil
		}
		return errAccount
	}

	payload := jobs.ProvisionPayload{}
	if account.PlanID != nil {
		payload.PlanID = account.PlanID
	}
	if periodEnd != nil {
		epoch := periodEnd.Unix()
		payload.ExpiresAt = &epoch
	}
	if _, errEnqueue := jobs.Enqueue(ctx, r.db, models.JobTypeProvision, userID, payload, 0, time.Time{}); errEnqueue != nil {
		return errEnqueue
	}

	if periodEnd != nil {
		renew := jobs.RenewPayload{ExpiresAt: periodEnd.Unix()}
		if _, errEnqueue := jobs.Enqueue(ctx, r.db, models.JobTypeRenew, userID, renew, 0, time.Time{}); errEnqueue != nil {
			return errEnqueue
		}
	}
	return nil
}

// revoke queues a suspend for users that already have an account. Users
// without one have nothing to suspend.
func (r *Reactor) revoke(ctx context.Context, userID string) error {
	_, errAccount := r.accounts.Get(ctx, userID)
	if errAccount != nil {
		if errors.Is(errAccount, accounts.ErrAccountNotFound) {
			return nil
		}
		return errAccount
	}
	_, errEnqueue := jobs.Enqueue(ctx, r.db, models.JobTypeSuspend, userID, nil, 0, time.Time{})
	return errEnqueue
}
