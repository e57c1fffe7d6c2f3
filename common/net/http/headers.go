package http

const (
	headerCorrelationID = "X-Correlation-ID"
	headerTenantID      = "x-tenant-id"
)
