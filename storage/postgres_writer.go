package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignaciojury/oportunidades-vehiculos-mercado-libre/models"
)

// PostgresWriter persists normalized listings to PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id               SERIAL PRIMARY KEY,
			title            TEXT          NOT NULL,
			title_key        TEXT          NOT NULL,
			year             INT           NOT NULL,
			km               INT           NOT NULL DEFAULT 0,
			transmission     VARCHAR(20)   NOT NULL DEFAULT 'unknown',
			owner_type       VARCHAR(20)   NOT NULL DEFAULT 'unknown',
			price_amount     NUMERIC(14,2) NOT NULL,
			price_currency   VARCHAR(10)   NOT NULL,
			assumed_currency VARCHAR(10)   NOT NULL DEFAULT '',
			price_ars        NUMERIC(14,2) NOT NULL,
			price_usd        NUMERIC(14,2) NOT NULL DEFAULT 0,
			url              TEXT          UNIQUE NOT NULL,
			created_at       TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_title_key ON listings(title_key, year);
		CREATE INDEX IF NOT EXISTS idx_listings_price_ars ON listings(price_ars);
		CREATE INDEX IF NOT EXISTS idx_listings_year      ON listings(year);
	`)
	return err
}

// Clear deletes all existing listings from the table.
func (pw *PostgresWriter) Clear() error {
	_, err := pw.db.Exec("DELETE FROM listings")
	if err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// Write batch-inserts all normalized listings, clearing old data first.
func (pw *PostgresWriter) Write(listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	if err := pw.Clear(); err != nil {
		return err
	}

	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.insertBatch(listings[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []*models.Listing) error {
	const cols = 12
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, l := range batch {
		base := idx * cols
		placeholders := make([]string, cols)
		for c := 0; c < cols; c++ {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			l.Title, l.TitleKey, l.Year, l.Km, string(l.Transmission), string(l.OwnerType),
			l.PriceAmount, string(l.PriceCurrency), l.AssumedCurrency, l.PriceARS, l.PriceUSD, l.URL)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (title, title_key, year, km, transmission, owner_type,
		                      price_amount, price_currency, assumed_currency, price_ars, price_usd, url)
		VALUES %s
		ON CONFLICT (url) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves all stored listings, oldest first.
func (pw *PostgresWriter) FetchAll() ([]*models.Listing, error) {
	rows, err := pw.db.Query(`
		SELECT id, title, title_key, year, km, transmission, owner_type,
		       price_amount, price_currency, assumed_currency, price_ars, price_usd, url, created_at
		FROM listings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		var transmission, ownerType, currency string
		if err := rows.Scan(
			&l.ID, &l.Title, &l.TitleKey, &l.Year, &l.Km, &transmission, &ownerType,
			&l.PriceAmount, &currency, &l.AssumedCurrency, &l.PriceARS, &l.PriceUSD, &l.URL, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		l.Transmission = models.Transmission(transmission)
		l.OwnerType = models.OwnerType(ownerType)
		l.PriceCurrency = models.Currency(currency)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
