package models

// TenantScope identifies the tenant (consultancy branch) a query operates on.
// Every storage call takes one; queries bind it as a parameter, never by
// string interpolation.
type TenantScope struct {
	TenantID int64 `json:"tenant_id"`
}

// Scope is a convenience constructor
func Scope(tenantID int64) TenantScope {
	return TenantScope{TenantID: tenantID}
}
