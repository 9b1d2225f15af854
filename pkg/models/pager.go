package models

import "context"

// DefaultPageSize is the page size used when loading forces for clustering.
const DefaultPageSize = 750

// ForceRef is the partial force record returned by paged loads.
type ForceRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// PageOptions controls paged force loading.
type PageOptions struct {
	PageSize       int
	IncludeSignals bool
}

// ForcePager yields the forces of one project page by page.
type ForcePager interface {
	// TotalCount returns the number of forces the pager will yield.
	TotalCount(ctx context.Context) (int, error)
	// GetPage returns page index (zero-based). An index past the end yields an empty page.
	GetPage(ctx context.Context, index int) ([]ForceRef, error)
	// PageSize returns the effective page size.
	PageSize() int
}
