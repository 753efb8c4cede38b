package storage

import "github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"

// ListingWriter is the interface any listing persistence backend must satisfy.
type ListingWriter interface {
	Write(listings []*models.Listing) error
	Close() error
}

// RawListingWriter persists unprocessed scraped records.
type RawListingWriter interface {
	WriteRaw(listings []*models.RawListing) error
	Close() error
}

// ResultExporter renders a full search result for the export consumer.
type ResultExporter interface {
	Export(result *models.SearchResult) error
}
