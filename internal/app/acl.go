package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/utsikt/internal/domain"
)

// ACL wraps one authorization scope around permission checks. Denial is
// domain.ErrPermissionDenied; success has no observable effect.
type ACL struct {
	authz Authorizer
	scope string
}

// NewACL binds an authorizer to one explicit scope.
func NewACL(authz Authorizer, scope string) ACL {
	return ACL{authz: authz, scope: strings.TrimSpace(scope)}
}

// Scope returns the scope this gate checks against.
func (a ACL) Scope() string {
	return a.scope
}

// CheckPermission verifies the acting principal holds the permission in
// this gate's scope.
func (a ACL) CheckPermission(ctx context.Context, principal string, p domain.Permission) error {
	principal = domain.NormalizePrincipal(principal)
	if principal == "" {
		return fmt.Errorf("%w: missing principal", domain.ErrPermissionDenied)
	}
	p = domain.NormalizePermission(p)
	if !domain.IsValidPermission(p) {
		return domain.ErrInvalidPermission
	}
	if a.authz == nil {
		return fmt.Errorf("%w: no authorizer configured", domain.ErrPermissionDenied)
	}
	allowed, err := a.authz.Check(ctx, principal, p, a.scope)
	if err != nil {
		return fmt.Errorf("authorization check: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s lacks %s in scope %s", domain.ErrPermissionDenied, principal, p, a.scope)
	}
	return nil
}

// aclForView resolves the permission gate for one view: the view's
// dedicated scope when set, else the injected process-wide default.
func (s *Service) aclForView(view domain.View) ACL {
	scope := strings.TrimSpace(view.AuthScope)
	if scope == "" {
		scope = s.defaultScope
	}
	return NewACL(s.authz, scope)
}
