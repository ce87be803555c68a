package listing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	table        = "listings"
	statusActive = "active"
)

// Column expressions that fold stored values the same way pkg/normalizers
// folds incoming ones. They must stay identical to the index expressions in
// db/pg/000002_normalized_match_indexes.up.sql.
const (
	makeKey  = `LOWER(BTRIM(REGEXP_REPLACE(make, '\s+', ' ', 'g')))`
	modelKey = `LOWER(BTRIM(REGEXP_REPLACE(model, '\s+', ' ', 'g')))`
	vinKey   = `UPPER(REGEXP_REPLACE(vin, '[\s-]', '', 'g'))`
)

var candidateColumns = []string{
	"id", "make", "model", "year", "price", "mileage", "vin", "city",
	"latitude", "longitude", "external_id", "source_site", "linked_vehicle_id",
}

// Repository reads stored listings as matching candidates
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new listing repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByVIN returns the most recently updated listing with the same VIN,
// ignoring case, whitespace and dashes
func (r *Repository) FindByVIN(ctx context.Context, tenantID, vin string) (*models.CandidateListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.FindByVIN")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal(vinKey, normalizers.NormalizeVIN(vin)),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(1)

	return r.getOne(ctx, sb, "find listing by vin")
}

// FindByVINSuffix matches the trailing len(suffix) characters of stored VINs
// that are at least that long
func (r *Repository) FindByVINSuffix(ctx context.Context, tenantID, suffix string) (*models.CandidateListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.FindByVINSuffix")
	defer span.End()

	suffix = normalizers.NormalizeVIN(suffix)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNotNull("vin"),
		sb.GreaterEqualThan("LENGTH("+vinKey+")", len(suffix)),
		sb.Equal(fmt.Sprintf("RIGHT(%s, %d)", vinKey, len(suffix)), suffix),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(1)

	return r.getOne(ctx, sb, "find listing by vin suffix")
}

// FindByExternalID returns the listing scraped under (externalID, sourceSite)
func (r *Repository) FindByExternalID(ctx context.Context, tenantID, externalID, sourceSite string) (*models.CandidateListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.FindByExternalID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("external_id", externalID),
		sb.Equal("source_site", sourceSite),
	)
	sb.Limit(1)

	return r.getOne(ctx, sb, "find listing by external id")
}

// FindFuzzyCandidates returns active listings with the same make and model in [minYear, maxYear]
func (r *Repository) FindFuzzyCandidates(ctx context.Context, tenantID, vehicleMake, vehicleModel string, minYear, maxYear int) ([]models.CandidateListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.FindFuzzyCandidates")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", statusActive),
		sb.Equal(makeKey, normalizers.NormalizeMake(vehicleMake)),
		sb.Equal(modelKey, normalizers.NormalizeModel(vehicleModel)),
		sb.Between("year", minYear, maxYear),
	)

	return r.selectMany(ctx, sb, "find fuzzy candidates")
}

// FindCandidates returns active listings whose normalized make is in makes and year in [minYear, maxYear]
func (r *Repository) FindCandidates(ctx context.Context, tenantID string, makes []string, minYear, maxYear int) ([]models.CandidateListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.FindCandidates")
	defer span.End()

	if len(makes) == 0 {
		return []models.CandidateListing{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From(table)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", statusActive),
		sb.In(makeKey, ectolinq.Map(makes, func(m string) any {
			return normalizers.NormalizeMake(m)
		})...),
		sb.Between("year", minYear, maxYear),
	)

	return r.selectMany(ctx, sb, "find candidates")
}

// Upsert stores a scraped listing, refreshing the mutable attributes when the
// (tenant, source site, external id) triple already exists. Make, model and
// city are stored with whitespace collapsed and the VIN in canonical form.
func (r *Repository) Upsert(ctx context.Context, listing *models.ScrapedListing) (*models.CandidateListing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Upsert")
	defer span.End()

	if listing.Year == nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "listing year is required to store a listing")
	}

	var vin *string
	if v := normalizers.NormalizeVIN(listing.VINValue()); v != "" {
		vin = &v
	}
	var city *string
	if listing.City != nil {
		c := normalizers.Collapse(*listing.City)
		city = &c
	}

	now := time.Now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("id", "tenant_id", "external_id", "source_site", "make", "model", "year", "price", "mileage", "vin", "city", "latitude", "longitude", "status", "created_at", "updated_at")
	ib.Values(uuid.New().String(), listing.TenantID, listing.ExternalID, listing.SourceSite,
		normalizers.Collapse(listing.Make), normalizers.Collapse(listing.Model), *listing.Year, listing.Price,
		listing.Mileage, vin, city, listing.Latitude, listing.Longitude, statusActive, now, now)
	database.OnConflictUpdate(ib, []string{"tenant_id", "source_site", "external_id"},
		"make", "model", "year", "price", "mileage", "vin", "city", "latitude", "longitude", "updated_at")

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":   listing.TenantID,
			"external_id": listing.ExternalID,
		}).Error("Failed to upsert listing")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to store listing")
	}

	return r.FindByExternalID(ctx, listing.TenantID, listing.ExternalID, listing.SourceSite)
}

func (r *Repository) getOne(ctx context.Context, sb *sqlbuilder.SelectBuilder, action string) (*models.CandidateListing, error) {
	query, args := sb.Build()

	var candidate models.CandidateListing
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", action)
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to "+action)
	}

	return &candidate, nil
}

func (r *Repository) selectMany(ctx context.Context, sb *sqlbuilder.SelectBuilder, action string) ([]models.CandidateListing, error) {
	query, args := sb.Build()

	var candidates []models.CandidateListing
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", action)
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to "+action)
	}

	return candidates, nil
}
