package lookup

import (
	"context"
	"database/sql"
	"errors"

	"github.com/eargollo/shelfscan/internal/config"
)

// ErrNotConfigured is returned by the lookup used when no Airtable
// credentials are set.
var ErrNotConfigured = errors.New("inventory lookup is not configured")

// FromConfig builds the lookup chain: primary table, optional fallback table,
// and a cache in front when db is non-nil and the TTL is positive. The
// returned Cache is nil when caching is off.
func FromConfig(cfg *config.Config, db *sql.DB) (Lookuper, *Cache) {
	if !cfg.LookupConfigured() {
		return Func(func(context.Context, string) (*Record, error) { return nil, ErrNotConfigured }), nil
	}
	at := cfg.Airtable
	primary := NewAirtable(AirtableConfig{
		BaseURL: at.BaseURL,
		BaseID:  at.BaseID,
		Table:   at.Table,
		Field:   at.Field,
		APIKey:  at.APIKey,
		Timeout: at.Timeout,
	})
	var chain Lookuper = primary
	namespace := primary.Name()
	if fb := at.Fallback; fb != nil {
		secondary := NewAirtable(AirtableConfig{
			BaseURL: at.BaseURL,
			BaseID:  fb.BaseID,
			Table:   fb.Table,
			Field:   fb.Field,
			APIKey:  at.APIKey,
			Timeout: at.Timeout,
		})
		chain = Fallback{primary, secondary}
		namespace += "+" + secondary.Name()
	}
	if db == nil || at.CacheTTL <= 0 {
		return chain, nil
	}
	c := NewCache(db, chain, namespace, at.CacheTTL)
	return c, c
}
