package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SiteRepository resolves sites, their organizations and site-level access.
type SiteRepository interface {
	// GetByID returns the site or (nil, nil) when it does not exist.
	GetByID(ctx context.Context, siteID string) (*model.Site, error)
	GetOrganization(ctx context.Context, organizationID string) (*model.Organization, error)
	// HasAdminAccess reports whether the user holds an admin or owner role
	// on the site's organization.
	HasAdminAccess(ctx context.Context, userID, siteID string) (bool, error)
}

type siteRepo struct {
	pool *pgxpool.Pool
}

// NewSiteRepo creates a new SiteRepository.
func NewSiteRepo(pool *pgxpool.Pool) SiteRepository {
	return &siteRepo{pool: pool}
}

func (r *siteRepo) GetByID(ctx context.Context, siteID string) (*model.Site, error) {
	const q = `SELECT id, organization_id, domain, created_at FROM sites WHERE id = $1`
	var s model.Site
	err := r.pool.QueryRow(ctx, q, siteID).Scan(&s.ID, &s.OrganizationID, &s.Domain, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching site %s: %w", siteID, err)
	}
	return &s, nil
}

func (r *siteRepo) GetOrganization(ctx context.Context, organizationID string) (*model.Organization, error) {
	const q = `SELECT id, name, plan_id, created_at FROM organizations WHERE id = $1`
	var o model.Organization
	err := r.pool.QueryRow(ctx, q, organizationID).Scan(&o.ID, &o.Name, &o.PlanID, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching organization %s: %w", organizationID, err)
	}
	return &o, nil
}

func (r *siteRepo) HasAdminAccess(ctx context.Context, userID, siteID string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1
			FROM organization_members m
			JOIN sites s ON s.organization_id = m.organization_id
			WHERE s.id = $1
			  AND m.user_id = $2
			  AND m.role IN ('admin', 'owner')
		)
	`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, siteID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking admin access of user %s on site %s: %w", userID, siteID, err)
	}
	return ok, nil
}
