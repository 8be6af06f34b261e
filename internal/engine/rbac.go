package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetline/internal/engine/auth"
	"fleetline/internal/events"
)

// WhoAmIResult describes an actor's grants within one fleet.
type WhoAmIResult struct {
	ActorID     string
	Roles       []string
	Permissions []string
}

func (e Engine) WhoAmI(ctx context.Context, fleetID, actorID string) (WhoAmIResult, error) {
	roles, err := e.Repo.ActorRoles(ctx, fleetID, actorID)
	if err != nil {
		return WhoAmIResult{}, err
	}
	seen := map[string]bool{}
	var perms []string
	for _, role := range roles {
		rp, err := e.Repo.RolePermissions(ctx, role)
		if err != nil {
			return WhoAmIResult{}, err
		}
		for _, p := range rp {
			if !seen[p] {
				seen[p] = true
				perms = append(perms, p)
			}
		}
	}
	return WhoAmIResult{ActorID: actorID, Roles: roles, Permissions: perms}, nil
}

// GrantRole assigns a role to an actor within a fleet. The granter needs
// fleet.admin.
func (e Engine) GrantRole(ctx context.Context, fleetID, granterID, actorID, roleID string) error {
	if actorID == "" || roleID == "" {
		return errors.New("actor_id and role_id are required")
	}
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	if _, ok := e.Config.RBAC.Roles[roleID]; !ok {
		return fmt.Errorf("unknown role %s", roleID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, fleetID, granterID, "fleet.admin")
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: "fleet.admin"}
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, fleetID, actorID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.role.granted", fleetID, "rbac", actorID, granterID, events.EventPayload{
		"actor_id": actorID, "role_id": roleID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeRole removes a role grant. The revoker needs fleet.admin.
func (e Engine) RevokeRole(ctx context.Context, fleetID, revokerID, actorID, roleID string) error {
	if actorID == "" || roleID == "" {
		return errors.New("actor_id and role_id are required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, fleetID, revokerID, "fleet.admin")
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: "fleet.admin"}
	}
	if err := e.Repo.RevokeRole(ctx, tx, fleetID, actorID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.role.revoked", fleetID, "rbac", actorID, revokerID, events.EventPayload{
		"actor_id": actorID, "role_id": roleID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
