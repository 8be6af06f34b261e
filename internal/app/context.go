package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fleetline/internal/config"
	"fleetline/internal/domain"
	"fleetline/internal/repo"
)

// ResolveFleetAndConfig picks the active fleet and ensures a fleet + config
// exist in DB, seeding defaults if missing. It prefers overrides, then
// single-fleet DB. If the fleet does not exist, it is created on the fly.
func ResolveFleetAndConfig(ctx context.Context, workspace, fleetOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	fleetID := fleetOverride
	if fleetID == "" {
		if f, err := r.SingleFleet(ctx); err == nil {
			fleetID = f.ID
		} else {
			return "", nil, fmt.Errorf("fleet not specified; use --fleet")
		}
	}
	seedCfg := config.Default(fleetID)

	if _, err := r.GetFleet(ctx, fleetID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createFleet(ctx, r, fleetID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetFleetConfig(ctx, fleetID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertFleetConfig(ctx, fleetID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed fleet config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Fleet.ID = fleetID
	return fleetID, cfg, nil
}

// createFleet inserts a minimal fleet/rbac footprint using the seed config.
func createFleet(ctx context.Context, r repo.Repo, fleetID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(fleetID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	f := domain.Fleet{
		ID:        fleetID,
		Name:      seedCfg.Fleet.Name,
		Status:    "active",
		CreatedAt: now,
	}
	if f.Name == "" {
		f.Name = fleetID
	}
	if err := r.InsertFleet(ctx, tx, f); err != nil {
		return fmt.Errorf("insert fleet: %w", err)
	}
	if err := r.UpsertFleetConfigTx(ctx, tx, fleetID, seedCfg); err != nil {
		return fmt.Errorf("insert fleet config: %w", err)
	}
	if err := SeedRBAC(ctx, r, tx, seedCfg); err != nil {
		return fmt.Errorf("seed rbac: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := r.EnsureActor(ctx, tx, actorID, now); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	if err := r.AssignRole(ctx, tx, fleetID, actorID, "manager"); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return tx.Commit()
}

// SeedRBAC inserts roles, permissions and role grants from config.
func SeedRBAC(ctx context.Context, r repo.Repo, tx *sql.Tx, cfg *config.Config) error {
	for roleID, role := range cfg.RBAC.Roles {
		if err := r.InsertRole(ctx, tx, roleID, role.Description); err != nil {
			return err
		}
		for _, perm := range role.Permissions {
			if err := r.InsertPermission(ctx, tx, perm); err != nil {
				return err
			}
			if err := r.AddRolePermission(ctx, tx, roleID, perm); err != nil {
				return err
			}
		}
	}
	return nil
}
