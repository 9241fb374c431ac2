package models

import (
	"context"
	"strings"

	"github.com/mmdatafocus/kiosk_backend/utils"
)

// Tenant is the isolation boundary passed explicitly into every ledger call.
// BusinessId appears in every predicate; UserId is only recorded for audit.
type Tenant struct {
	BusinessId string
	UserId     int
}

func (t Tenant) Validate() error {
	if strings.TrimSpace(t.BusinessId) == "" {
		return ErrTenantRequired
	}
	return nil
}

// Context stamps the tenant on ctx so the gorm tenant guard sees it.
func (t Tenant) Context(ctx context.Context) context.Context {
	ctx = utils.SetBusinessIdInContext(ctx, t.BusinessId)
	if t.UserId > 0 {
		ctx = utils.SetUserIdInContext(ctx, t.UserId)
	}
	return ctx
}

// TenantFromContext reads the tenant that the auth collaborator put on ctx.
func TenantFromContext(ctx context.Context) (Tenant, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return Tenant{}, ErrTenantRequired
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	return Tenant{BusinessId: businessId, UserId: userId}, nil
}
