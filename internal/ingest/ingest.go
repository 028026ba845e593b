// Package ingest loads store price and discount feeds from CSV files. The
// feeds are semicolon-separated, one file per store and entry date, with
// the store and date carried by the filename:
//
//	<store>_<date>.csv            price feed, e.g. kaufland_2025-05-01.csv
//	<store>_discounts_<date>.csv  discount feed, e.g. lidl_discounts_2025-05-01.csv
//
// A failing file never aborts the load: failures are collected into the
// report so callers can see exactly which files were skipped and why.
package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-comparator-api/internal/database"
	"price-comparator-api/internal/models"
	"price-comparator-api/internal/units"
)

// priceRow mirrors one line of a price feed.
type priceRow struct {
	ProductID       string          `csv:"product_id"`
	ProductName     string          `csv:"product_name"`
	ProductCategory string          `csv:"product_category"`
	Brand           string          `csv:"brand"`
	PackageQuantity decimal.Decimal `csv:"package_quantity"`
	PackageUnit     string          `csv:"package_unit"`
	Price           decimal.Decimal `csv:"price"`
	Currency        string          `csv:"currency"`
}

// discountRow mirrors one line of a discount feed.
type discountRow struct {
	ProductID       string          `csv:"product_id"`
	ProductName     string          `csv:"product_name"`
	Brand           string          `csv:"brand"`
	PackageQuantity decimal.Decimal `csv:"package_quantity"`
	PackageUnit     string          `csv:"package_unit"`
	ProductCategory string          `csv:"product_category"`
	FromDate        models.Date     `csv:"from_date"`
	ToDate          models.Date     `csv:"to_date"`
	Percentage      decimal.Decimal `csv:"percentage_of_discount"`
}

// FileMeta is the store and entry date encoded in a feed filename.
type FileMeta struct {
	Store     string
	EntryDate models.Date
	Discounts bool
}

// ParseFileName extracts feed metadata from a filename.
func ParseFileName(name string) (FileMeta, error) {
	base := strings.TrimSuffix(name, ".csv")
	if base == name {
		return FileMeta{}, fmt.Errorf("not a csv file: %s", name)
	}

	parts := strings.Split(base, "_")
	switch {
	case len(parts) == 3 && parts[1] == "discounts":
		date, err := models.ParseDate(parts[2])
		if err != nil {
			return FileMeta{}, err
		}
		return FileMeta{Store: parts[0], EntryDate: date, Discounts: true}, nil
	case len(parts) == 2:
		date, err := models.ParseDate(parts[1])
		if err != nil {
			return FileMeta{}, err
		}
		return FileMeta{Store: parts[0], EntryDate: date}, nil
	default:
		return FileMeta{}, fmt.Errorf("invalid feed filename: %s", name)
	}
}

// FileFailure records one file that could not be loaded.
type FileFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Report summarizes a load.
type Report struct {
	Files     int           `json:"files"`
	Prices    int           `json:"prices"`
	Discounts int           `json:"discounts"`
	Failures  []FileFailure `json:"failures,omitempty"`
}

// Loader parses feed files and writes their records to the database.
type Loader struct {
	db     *database.DB
	logger zerolog.Logger
}

// NewLoader creates a loader.
func NewLoader(db *database.DB, logger zerolog.Logger) *Loader {
	return &Loader{db: db, logger: logger}
}

// LoadDir loads every .csv file in dir. Price feeds are loaded before
// discount feeds so discounts always reference known products.
func (l *Loader) LoadDir(dir string) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		mi, erri := ParseFileName(names[i])
		mj, errj := ParseFileName(names[j])
		if erri != nil || errj != nil {
			return names[i] < names[j]
		}
		if mi.Discounts != mj.Discounts {
			return !mi.Discounts
		}
		return names[i] < names[j]
	})

	report := &Report{}
	for _, name := range names {
		if err := l.LoadFile(filepath.Join(dir, name), report); err != nil {
			l.logger.Warn().Err(err).Str("file", name).Msg("skipping feed file")
			report.Failures = append(report.Failures, FileFailure{File: name, Error: err.Error()})
			continue
		}
		report.Files++
	}

	l.logger.Info().
		Int("files", report.Files).
		Int("prices", report.Prices).
		Int("discounts", report.Discounts).
		Int("failures", len(report.Failures)).
		Msg("data load complete")

	return report, nil
}

// LoadFile loads a single feed file and accumulates counts into report.
func (l *Loader) LoadFile(path string, report *Report) error {
	meta, err := ParseFileName(filepath.Base(path))
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	store := models.Store{ID: strings.ToLower(meta.Store), Name: meta.Store}
	if err := l.db.UpsertStore(store); err != nil {
		return err
	}

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.TrimLeadingSpace = true

	if meta.Discounts {
		n, err := l.loadDiscounts(reader, store.ID, meta.EntryDate)
		if err != nil {
			return err
		}
		report.Discounts += n
		return nil
	}

	n, err := l.loadPrices(reader, store.ID, meta.EntryDate)
	if err != nil {
		return err
	}
	report.Prices += n
	return nil
}

func (l *Loader) loadPrices(reader *csv.Reader, storeID string, entryDate models.Date) (int, error) {
	var rows []priceRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return 0, fmt.Errorf("failed to parse price feed: %w", err)
	}

	observations := make([]models.PriceObservation, 0, len(rows))
	for i, row := range rows {
		product, err := rowProduct(row.ProductID, row.ProductName, row.ProductCategory, row.Brand, row.PackageQuantity, row.PackageUnit)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		if err := l.db.UpsertProduct(product); err != nil {
			return 0, err
		}
		observations = append(observations, models.PriceObservation{
			ProductID: product.ID,
			StoreID:   storeID,
			Price:     row.Price,
			Currency:  row.Currency,
			EntryDate: entryDate,
		})
	}

	return l.db.InsertPrices(observations)
}

func (l *Loader) loadDiscounts(reader *csv.Reader, storeID string, entryDate models.Date) (int, error) {
	var rows []discountRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return 0, fmt.Errorf("failed to parse discount feed: %w", err)
	}

	discounts := make([]models.Discount, 0, len(rows))
	for i, row := range rows {
		product, err := rowProduct(row.ProductID, row.ProductName, row.ProductCategory, row.Brand, row.PackageQuantity, row.PackageUnit)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		if err := l.db.UpsertProduct(product); err != nil {
			return 0, err
		}
		discounts = append(discounts, models.Discount{
			ProductID:  product.ID,
			StoreID:    storeID,
			Percentage: row.Percentage,
			FromDate:   row.FromDate,
			ToDate:     row.ToDate,
			EntryDate:  entryDate,
		})
	}

	return l.db.InsertDiscounts(discounts)
}

func rowProduct(id, name, category, brand string, quantity decimal.Decimal, unit string) (models.Product, error) {
	if id == "" {
		return models.Product{}, fmt.Errorf("missing product id")
	}
	parsedUnit, err := units.Parse(unit)
	if err != nil {
		return models.Product{}, err
	}
	return models.Product{
		ID:              id,
		Name:            name,
		Category:        category,
		Brand:           brand,
		PackageQuantity: quantity,
		PackageUnit:     parsedUnit,
	}, nil
}
