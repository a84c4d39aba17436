package authkit

import (
	"context"
	"errors"
	"time"
)

// AssignRole grants a role to a user. Granting a role the user already holds
// is a no-op. assignedBy records the acting administrator and may be nil.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleCode string, assignedBy *int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	role, err := s.roles.GetByCode(ctx, roleCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrRoleNotFound
		}
		return err
	}

	if user.HasRole(role.Code) {
		return nil
	}

	if err := s.userRoles.Assign(ctx, &UserRole{
		UserID:     userID,
		RoleID:     role.ID,
		AssignedBy: assignedBy,
		AssignedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	s.metrics.Inc(MetricRoleAssigned)
	s.emitAudit(ctx, ActionRoleAssigned, &userID, "user_role", role.Code, map[string]string{
		"role": role.Code,
	}, AuditStatusSuccess)
	return nil
}

// RemoveRole takes a role away. A user always keeps at least one role;
// stripping the last one returns [ErrLastRole] so no account ends up
// permissionless by accident.
func (s *Service) RemoveRole(ctx context.Context, userID int64, roleCode string) error {
	role, err := s.roles.GetByCode(ctx, roleCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrRoleNotFound
		}
		return err
	}

	held, err := s.userRoles.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	holds := false
	for _, r := range held {
		if r.ID == role.ID {
			holds = true
			break
		}
	}
	if !holds {
		return ErrRoleNotFound
	}
	if len(held) <= 1 {
		return ErrLastRole
	}

	if err := s.userRoles.Remove(ctx, userID, role.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrRoleNotFound
		}
		return err
	}

	s.metrics.Inc(MetricRoleRemoved)
	s.emitAudit(ctx, ActionRoleRemoved, &userID, "user_role", role.Code, map[string]string{
		"role": role.Code,
	}, AuditStatusSuccess)
	return nil
}

// Roles lists the seeded role catalogue.
func (s *Service) Roles(ctx context.Context) ([]Role, error) {
	return s.roles.List(ctx)
}

// UserRoles lists the roles a user currently holds.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.userRoles.ListByUser(ctx, userID)
}

// AuditEvents queries the persisted audit trail. It requires an audit store;
// deployments that ship events to an external sink get an empty result.
func (s *Service) AuditEvents(ctx context.Context, q AuditQuery) ([]AuditEvent, error) {
	if s.auditStore == nil {
		return nil, nil
	}
	return s.auditStore.List(ctx, q)
}
