package auth

import "context"

// Permission names seeded into the permissions table.
const (
	PermAdmin            = "admin"
	PermCreateRequest    = "create_credit_request"
	PermClinicDecision   = "clinic_decide_credit"
	PermAdminDecision    = "admin_decide_credit"
	PermSubmitOffers     = "submit_offers"
	PermVerifyDocuments  = "verify_documents"
	PermDispatchPayments = "dispatch_payments"
)

type PermissionChecker interface {
	HasPermission(ctx context.Context, userPermissions []string, permission string) (bool, error)
	IsAdminCtx(ctx context.Context, userPermissions []string) (bool, error)
}

type DefaultPermissionChecker struct{}

func NewPermissionChecker() *DefaultPermissionChecker {
	return &DefaultPermissionChecker{}
}

// HasPermission grants everything to holders of the admin permission.
func (c *DefaultPermissionChecker) HasPermission(ctx context.Context, userPermissions []string, permission string) (bool, error) {
	return c.HasAnyPermission(userPermissions, []string{permission, PermAdmin}), nil
}

func (c *DefaultPermissionChecker) IsAdminCtx(ctx context.Context, userPermissions []string) (bool, error) {
	return c.HasAnyPermission(userPermissions, []string{PermAdmin}), nil
}

func (c *DefaultPermissionChecker) HasAnyPermission(userPermissions []string, requiredPermissions []string) bool {
	for _, userPerm := range userPermissions {
		for _, requiredPerm := range requiredPermissions {
			if userPerm == requiredPerm {
				return true
			}
		}
	}
	return false
}
