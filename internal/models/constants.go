package models

const (
	// DefaultPageSize is used when a list request does not carry size.
	DefaultPageSize = 10

	// MaxPageSize caps a single list page.
	MaxPageSize = 100

	// DefaultExportLimit caps the rows written to an export file.
	DefaultExportLimit = 1000

	// DefaultCacheTTLSeconds is the lifetime of a cached booking.
	DefaultCacheTTLSeconds = 10 * 60
)
