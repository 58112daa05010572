package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/boostgram/boostgram/internal/apierror"
	"github.com/boostgram/boostgram/model"
)

func (d Datasource) CreateProvider(ctx context.Context, prov *model.Provider) (*model.Provider, error) {
	if prov.CreatedAt.IsZero() {
		prov.CreatedAt = time.Now()
	}
	_, err := d.Conn.ExecContext(ctx,
		`INSERT INTO providers(provider_id, name, api_url, api_key, legacy_api, active, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		prov.ProviderID, prov.Name, prov.APIURL, prov.APIKey, prov.LegacyAPI, prov.Active, prov.CreatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create provider", err)
	}
	return prov, nil
}

func (d Datasource) GetProvider(ctx context.Context, providerID string) (*model.Provider, error) {
	prov := &model.Provider{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT provider_id, name, api_url, api_key, legacy_api, active, created_at
		FROM providers
		WHERE provider_id = $1
	`, providerID).Scan(&prov.ProviderID, &prov.Name, &prov.APIURL, &prov.APIKey, &prov.LegacyAPI, &prov.Active, &prov.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Provider with ID '%s' not found", providerID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve provider", err)
	}
	return prov, nil
}

// GetDefaultProvider returns the oldest active provider. Dispatch falls back
// to it when a transaction does not name one explicitly.
func (d Datasource) GetDefaultProvider(ctx context.Context) (*model.Provider, error) {
	prov := &model.Provider{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT provider_id, name, api_url, api_key, legacy_api, active, created_at
		FROM providers
		WHERE active = TRUE
		ORDER BY created_at ASC
		LIMIT 1
	`).Scan(&prov.ProviderID, &prov.Name, &prov.APIURL, &prov.APIKey, &prov.LegacyAPI, &prov.Active, &prov.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "No active provider configured", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve default provider", err)
	}
	return prov, nil
}

func (d Datasource) GetAllProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT provider_id, name, api_url, api_key, legacy_api, active, created_at
		FROM providers
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve providers", err)
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		prov := model.Provider{}
		if err := rows.Scan(&prov.ProviderID, &prov.Name, &prov.APIURL, &prov.APIKey, &prov.LegacyAPI, &prov.Active, &prov.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan provider", err)
		}
		providers = append(providers, prov)
	}
	return providers, rows.Err()
}
