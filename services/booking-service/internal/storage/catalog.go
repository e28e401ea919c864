package storage

import (
	"context"
	"fmt"

	"github.com/apptbook/platform/libs/db"
	"github.com/apptbook/platform/services/booking-service/internal/apperr"
	"github.com/apptbook/platform/services/booking-service/internal/model"
	"github.com/apptbook/platform/services/booking-service/internal/workinghours"
)

// CatalogRepository reads providers, organizations and services. Working
// hours are parsed into a workinghours.Week here and nowhere else.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	var hours []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(organization_id, ''), working_hours
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.OrganizationID, &hours)
	if err != nil {
		if IsNotFound(err) {
			return model.Provider{}, apperr.NotFound("provider", id)
		}
		return model.Provider{}, fmt.Errorf("get provider: %w", err)
	}
	p.WorkingHours = workinghours.Parse(hours)

	offered, err := r.providerServices(ctx, []string{p.ID})
	if err != nil {
		return model.Provider{}, err
	}
	p.Services = offered[p.ID]
	return p, nil
}

func (r *CatalogRepository) GetOrganization(ctx context.Context, id string) (model.Organization, error) {
	var o model.Organization
	var hours []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, working_hours
		FROM organizations
		WHERE id = $1
	`, id).Scan(&o.ID, &o.Name, &hours)
	if err != nil {
		if IsNotFound(err) {
			return model.Organization{}, apperr.NotFound("organization", id)
		}
		return model.Organization{}, fmt.Errorf("get organization: %w", err)
	}
	o.WorkingHours = workinghours.Parse(hours)
	return o, nil
}

func (r *CatalogRepository) GetService(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, duration, price::text
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Duration, &s.Price)
	if err != nil {
		if IsNotFound(err) {
			return model.Service{}, apperr.NotFound("service", id)
		}
		return model.Service{}, fmt.Errorf("get service: %w", err)
	}
	return s, nil
}

// ListProvidersByOrganization returns the organization's providers that offer
// serviceID, ordered by id.
func (r *CatalogRepository) ListProvidersByOrganization(ctx context.Context, organizationID, serviceID string) ([]model.Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, COALESCE(p.organization_id, ''), p.working_hours
		FROM providers p
		JOIN provider_services ps ON ps.provider_id = p.id AND ps.service_id = $2
		WHERE p.organization_id = $1
		ORDER BY p.id
	`, organizationID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var providers []model.Provider
	var ids []string
	for rows.Next() {
		var p model.Provider
		var hours []byte
		if err := rows.Scan(&p.ID, &p.OrganizationID, &hours); err != nil {
			return nil, err
		}
		p.WorkingHours = workinghours.Parse(hours)
		providers = append(providers, p)
		ids = append(ids, p.ID)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(ids) == 0 {
		return providers, nil
	}

	offered, err := r.providerServices(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range providers {
		providers[i].Services = offered[providers[i].ID]
	}
	return providers, nil
}

func (r *CatalogRepository) providerServices(ctx context.Context, providerIDs []string) (map[string][]model.ProviderService, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider_id, service_id, price_override::text, description_override
		FROM provider_services
		WHERE provider_id = ANY($1)
		ORDER BY provider_id, service_id
	`, providerIDs)
	if err != nil {
		return nil, fmt.Errorf("list provider services: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.ProviderService, len(providerIDs))
	for rows.Next() {
		var providerID string
		var ps model.ProviderService
		if err := rows.Scan(&providerID, &ps.ServiceID, &ps.PriceOverride, &ps.DescriptionOverride); err != nil {
			return nil, err
		}
		out[providerID] = append(out[providerID], ps)
	}
	return out, rows.Err()
}
