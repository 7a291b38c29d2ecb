// internal/storage/postgres.go
// Package storage provides PostgreSQL implementation of the Store interface.
// This implementation is intended for production use with persistent data storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripdocs/tripdocs-entry-go/internal/model"
)

// postgres provides persistent storage for entries, section records, arrival
// cards and snapshots.
type postgres struct {
	db *pgxpool.Pool // Connection pool to PostgreSQL database
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the schema.
func NewPostgres(dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema creates all required tables and indexes if they don't already exist.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		-- Entry aggregates, one row per in-progress or completed preparation
		CREATE TABLE IF NOT EXISTS entries (
		    id TEXT PRIMARY KEY,
		    user_id TEXT NOT NULL,
		    destination_id TEXT NOT NULL,
		    passport_id TEXT NOT NULL DEFAULT '',
		    personal_info_id TEXT NOT NULL DEFAULT '',
		    travel_info_id TEXT NOT NULL DEFAULT '',
		    fund_item_ids JSONB NOT NULL DEFAULT '[]',
		    completion_metrics JSONB NOT NULL DEFAULT '{}',
		    status TEXT NOT NULL,
		    documents JSONB,
		    display_status JSONB,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_entries_user ON entries(user_id, last_updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);

		-- Passports; at most one primary per user, enforced on save
		CREATE TABLE IF NOT EXISTS passports (
		    id TEXT PRIMARY KEY,
		    user_id TEXT NOT NULL,
		    passport_number TEXT NOT NULL DEFAULT '',
		    full_name TEXT NOT NULL DEFAULT '',
		    nationality TEXT NOT NULL DEFAULT '',
		    gender TEXT NOT NULL DEFAULT '',
		    date_of_birth TEXT NOT NULL DEFAULT '',
		    issue_date TEXT NOT NULL DEFAULT '',
		    expiry_date TEXT NOT NULL DEFAULT '',
		    photo_uri TEXT NOT NULL DEFAULT '',
		    is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_passports_user ON passports(user_id);

		-- Personal info profiles; at most one default per user
		CREATE TABLE IF NOT EXISTS personal_info (
		    id TEXT PRIMARY KEY,
		    user_id TEXT NOT NULL,
		    passport_id TEXT NOT NULL DEFAULT '',
		    label TEXT NOT NULL DEFAULT '',
		    is_default BOOLEAN NOT NULL DEFAULT FALSE,
		    phone_code TEXT NOT NULL DEFAULT '',
		    phone_number TEXT NOT NULL DEFAULT '',
		    email TEXT NOT NULL DEFAULT '',
		    address TEXT NOT NULL DEFAULT '',
		    occupation TEXT NOT NULL DEFAULT '',
		    province_city TEXT NOT NULL DEFAULT '',
		    country_region TEXT NOT NULL DEFAULT '',
		    gender TEXT NOT NULL DEFAULT '',
		    sex TEXT NOT NULL DEFAULT '',
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_personal_info_user ON personal_info(user_id);

		-- Travel plans, one per (user, destination) trip
		CREATE TABLE IF NOT EXISTS travel_info (
		    id TEXT PRIMARY KEY,
		    user_id TEXT NOT NULL,
		    destination_id TEXT NOT NULL,
		    travel_purpose TEXT NOT NULL DEFAULT '',
		    boarding_country TEXT NOT NULL DEFAULT '',
		    recent_stay_country TEXT NOT NULL DEFAULT '',
		    visa_number TEXT NOT NULL DEFAULT '',
		    arrival JSONB NOT NULL DEFAULT '{}',
		    departure JSONB NOT NULL DEFAULT '{}',
		    accommodation JSONB NOT NULL DEFAULT '{}',
		    is_transit_passenger BOOLEAN NOT NULL DEFAULT FALSE,
		    status TEXT NOT NULL DEFAULT 'draft',
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_travel_info_trip ON travel_info(user_id, destination_id);

		-- Funding proofs
		CREATE TABLE IF NOT EXISTS fund_items (
		    id TEXT PRIMARY KEY,
		    user_id TEXT NOT NULL,
		    type TEXT NOT NULL DEFAULT '',
		    amount DOUBLE PRECISION,
		    currency TEXT NOT NULL DEFAULT '',
		    details TEXT NOT NULL DEFAULT '',
		    photo_uri TEXT NOT NULL DEFAULT '',
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_fund_items_user ON fund_items(user_id);

		-- Digital arrival cards: append-only submission history per entry
		CREATE TABLE IF NOT EXISTS arrival_cards (
		    id TEXT PRIMARY KEY,
		    entry_id TEXT NOT NULL REFERENCES entries(id),
		    card_type TEXT NOT NULL,
		    arr_card_no TEXT NOT NULL DEFAULT '',
		    qr_ref TEXT NOT NULL DEFAULT '',
		    pdf_ref TEXT NOT NULL DEFAULT '',
		    method TEXT NOT NULL DEFAULT '',
		    status TEXT NOT NULL,
		    retry_count INTEGER NOT NULL DEFAULT 0,
		    error_details JSONB,
		    is_superseded BOOLEAN NOT NULL DEFAULT FALSE,
		    superseded_by TEXT NOT NULL DEFAULT '',
		    superseded_reason TEXT NOT NULL DEFAULT '',
		    superseded_at TIMESTAMP WITH TIME ZONE,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_arrival_cards_entry ON arrival_cards(entry_id, card_type, id DESC);

		-- Entry pack snapshots: immutable history, whole pack as one document
		CREATE TABLE IF NOT EXISTS entry_snapshots (
		    id TEXT PRIMARY KEY,
		    entry_id TEXT NOT NULL,
		    reason TEXT NOT NULL,
		    pack JSONB NOT NULL,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_entry_snapshots_entry ON entry_snapshots(entry_id, id DESC);
	`

	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *postgres) Close() {
	p.db.Close()
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *postgres) SaveEntry(ctx context.Context, entry model.EntryRecord) error {
	fundIDs, err := json.Marshal(entry.FundItemIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal fund item ids: %w", err)
	}
	completion, err := json.Marshal(entry.Completion)
	if err != nil {
		return fmt.Errorf("failed to marshal completion metrics: %w", err)
	}
	documents, err := json.Marshal(entry.Documents)
	if err != nil {
		return fmt.Errorf("failed to marshal documents: %w", err)
	}
	displayStatus, err := json.Marshal(entry.DisplayStatus)
	if err != nil {
		return fmt.Errorf("failed to marshal display status: %w", err)
	}

	query := `INSERT INTO entries (id, user_id, destination_id, passport_id, personal_info_id, travel_info_id,
	              fund_item_ids, completion_metrics, status, documents, display_status, created_at, last_updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          ON CONFLICT (id) DO UPDATE SET
	              passport_id = $4, personal_info_id = $5, travel_info_id = $6,
	              fund_item_ids = $7, completion_metrics = $8, status = $9,
	              documents = $10, display_status = $11, last_updated_at = $13`

	_, err = p.db.Exec(ctx, query,
		entry.ID, entry.UserID, entry.DestinationID,
		entry.PassportID, entry.PersonalInfoID, entry.TravelInfoID,
		fundIDs, completion, string(entry.Status), documents, displayStatus,
		entry.CreatedAt, entry.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

// scanEntry reads one entries row, running the defensive double-decode on the
// JSON-shaped columns.
func scanEntry(row pgx.Row) (*model.EntryRecord, error) {
	var e model.EntryRecord
	var fundIDs, completion, documents, displayStatus []byte

	err := row.Scan(&e.ID, &e.UserID, &e.DestinationID,
		&e.PassportID, &e.PersonalInfoID, &e.TravelInfoID,
		&fundIDs, &completion, &e.Status, &documents, &displayStatus,
		&e.CreatedAt, &e.LastUpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := decodeJSONValue(fundIDs, &e.FundItemIDs); err != nil {
		return nil, fmt.Errorf("failed to decode fund item ids: %w", err)
	}
	if err := decodeJSONValue(completion, &e.Completion); err != nil {
		return nil, fmt.Errorf("failed to decode completion metrics: %w", err)
	}
	if err := decodeJSONValue(documents, &e.Documents); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	if err := decodeJSONValue(displayStatus, &e.DisplayStatus); err != nil {
		return nil, fmt.Errorf("failed to decode display status: %w", err)
	}
	return &e, nil
}

const entryColumns = `id, user_id, destination_id, passport_id, personal_info_id, travel_info_id,
	fund_item_ids, completion_metrics, status, documents, display_status, created_at, last_updated_at`

func (p *postgres) GetEntry(ctx context.Context, id string) (*model.EntryRecord, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1`
	e, err := scanEntry(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

func (p *postgres) listEntries(ctx context.Context, where string, arg any) ([]model.EntryRecord, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE ` + where + ` ORDER BY last_updated_at DESC, id ASC`
	rows, err := p.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var out []model.EntryRecord
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return out, nil
}

func (p *postgres) ListEntriesByUser(ctx context.Context, userID string) ([]model.EntryRecord, error) {
	return p.listEntries(ctx, "user_id = $1", userID)
}

func (p *postgres) ListEntriesByStatus(ctx context.Context, status model.EntryStatus) ([]model.EntryRecord, error) {
	return p.listEntries(ctx, "status = $1", string(status))
}

func (p *postgres) SavePassport(ctx context.Context, pp model.Passport) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Promoting a passport to primary demotes any other primary for the user.
	if pp.IsPrimary {
		if _, err := tx.Exec(ctx,
			`UPDATE passports SET is_primary = FALSE WHERE user_id = $1 AND id <> $2`,
			pp.UserID, pp.ID); err != nil {
			return fmt.Errorf("failed to demote primary passports: %w", err)
		}
	}

	query := `INSERT INTO passports (id, user_id, passport_number, full_name, nationality, gender,
	              date_of_birth, issue_date, expiry_date, photo_uri, is_primary, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          ON CONFLICT (id) DO UPDATE SET
	              passport_number = $3, full_name = $4, nationality = $5, gender = $6,
	              date_of_birth = $7, issue_date = $8, expiry_date = $9, photo_uri = $10,
	              is_primary = $11, updated_at = $13`

	if _, err := tx.Exec(ctx, query,
		pp.ID, pp.UserID, pp.PassportNumber, pp.FullName, pp.Nationality, pp.Gender,
		pp.DateOfBirth, pp.IssueDate, pp.ExpiryDate, pp.PhotoURI, pp.IsPrimary,
		pp.CreatedAt, pp.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save passport: %w", err)
	}
	return tx.Commit(ctx)
}

const passportColumns = `id, user_id, passport_number, full_name, nationality, gender,
	date_of_birth, issue_date, expiry_date, photo_uri, is_primary, created_at, updated_at`

func scanPassport(row pgx.Row) (*model.Passport, error) {
	var pp model.Passport
	err := row.Scan(&pp.ID, &pp.UserID, &pp.PassportNumber, &pp.FullName, &pp.Nationality,
		&pp.Gender, &pp.DateOfBirth, &pp.IssueDate, &pp.ExpiryDate, &pp.PhotoURI,
		&pp.IsPrimary, &pp.CreatedAt, &pp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pp, nil
}

func (p *postgres) GetPassport(ctx context.Context, id string) (*model.Passport, error) {
	pp, err := scanPassport(p.db.QueryRow(ctx,
		`SELECT `+passportColumns+` FROM passports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get passport: %w", err)
	}
	return pp, nil
}

func (p *postgres) GetPrimaryPassport(ctx context.Context, userID string) (*model.Passport, error) {
	pp, err := scanPassport(p.db.QueryRow(ctx,
		`SELECT `+passportColumns+` FROM passports WHERE user_id = $1 AND is_primary`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get primary passport: %w", err)
	}
	return pp, nil
}

func (p *postgres) SavePersonalInfo(ctx context.Context, pi model.PersonalInfo) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if pi.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE personal_info SET is_default = FALSE WHERE user_id = $1 AND id <> $2`,
			pi.UserID, pi.ID); err != nil {
			return fmt.Errorf("failed to demote default profiles: %w", err)
		}
	}

	query := `INSERT INTO personal_info (id, user_id, passport_id, label, is_default, phone_code,
	              phone_number, email, address, occupation, province_city, country_region, gender, sex,
	              created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	          ON CONFLICT (id) DO UPDATE SET
	              passport_id = $3, label = $4, is_default = $5, phone_code = $6,
	              phone_number = $7, email = $8, address = $9, occupation = $10,
	              province_city = $11, country_region = $12, gender = $13, sex = $14,
	              updated_at = $16`

	if _, err := tx.Exec(ctx, query,
		pi.ID, pi.UserID, pi.PassportID, pi.Label, pi.IsDefault, pi.PhoneCode,
		pi.PhoneNumber, pi.Email, pi.Address, pi.Occupation, pi.ProvinceCity,
		pi.CountryRegion, pi.Gender, pi.Sex, pi.CreatedAt, pi.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save personal info: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *postgres) GetPersonalInfo(ctx context.Context, id string) (*model.PersonalInfo, error) {
	query := `SELECT id, user_id, passport_id, label, is_default, phone_code, phone_number, email,
	              address, occupation, province_city, country_region, gender, sex, created_at, updated_at
	          FROM personal_info WHERE id = $1`

	var pi model.PersonalInfo
	err := p.db.QueryRow(ctx, query, id).Scan(&pi.ID, &pi.UserID, &pi.PassportID, &pi.Label,
		&pi.IsDefault, &pi.PhoneCode, &pi.PhoneNumber, &pi.Email, &pi.Address, &pi.Occupation,
		&pi.ProvinceCity, &pi.CountryRegion, &pi.Gender, &pi.Sex, &pi.CreatedAt, &pi.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get personal info: %w", err)
	}
	return &pi, nil
}

func (p *postgres) SaveTravelInfo(ctx context.Context, t model.TravelInfo) error {
	arrival, err := json.Marshal(t.Arrival)
	if err != nil {
		return fmt.Errorf("failed to marshal arrival leg: %w", err)
	}
	departure, err := json.Marshal(t.Departure)
	if err != nil {
		return fmt.Errorf("failed to marshal departure leg: %w", err)
	}
	accommodation, err := json.Marshal(t.Accommodation)
	if err != nil {
		return fmt.Errorf("failed to marshal accommodation: %w", err)
	}

	query := `INSERT INTO travel_info (id, user_id, destination_id, travel_purpose, boarding_country,
	              recent_stay_country, visa_number, arrival, departure, accommodation,
	              is_transit_passenger, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	          ON CONFLICT (id) DO UPDATE SET
	              travel_purpose = $4, boarding_country = $5, recent_stay_country = $6,
	              visa_number = $7, arrival = $8, departure = $9, accommodation = $10,
	              is_transit_passenger = $11, status = $12, updated_at = $14`

	_, err = p.db.Exec(ctx, query,
		t.ID, t.UserID, t.DestinationID, t.TravelPurpose, t.BoardingCountry,
		t.RecentStayCountry, t.VisaNumber, arrival, departure, accommodation,
		t.IsTransitPassenger, string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save travel info: %w", err)
	}
	return nil
}

func (p *postgres) GetTravelInfo(ctx context.Context, id string) (*model.TravelInfo, error) {
	query := `SELECT id, user_id, destination_id, travel_purpose, boarding_country, recent_stay_country,
	              visa_number, arrival, departure, accommodation, is_transit_passenger, status,
	              created_at, updated_at
	          FROM travel_info WHERE id = $1`

	var t model.TravelInfo
	var arrival, departure, accommodation []byte
	err := p.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.UserID, &t.DestinationID, &t.TravelPurpose,
		&t.BoardingCountry, &t.RecentStayCountry, &t.VisaNumber, &arrival, &departure,
		&accommodation, &t.IsTransitPassenger, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get travel info: %w", err)
	}

	if err := decodeJSONValue(arrival, &t.Arrival); err != nil {
		return nil, fmt.Errorf("failed to decode arrival leg: %w", err)
	}
	if err := decodeJSONValue(departure, &t.Departure); err != nil {
		return nil, fmt.Errorf("failed to decode departure leg: %w", err)
	}
	if err := decodeJSONValue(accommodation, &t.Accommodation); err != nil {
		return nil, fmt.Errorf("failed to decode accommodation: %w", err)
	}
	return &t, nil
}

func (p *postgres) SaveFundItem(ctx context.Context, f model.FundItem) error {
	query := `INSERT INTO fund_items (id, user_id, type, amount, currency, details, photo_uri, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          ON CONFLICT (id) DO UPDATE SET
	              type = $3, amount = $4, currency = $5, details = $6, photo_uri = $7, updated_at = $9`

	_, err := p.db.Exec(ctx, query,
		f.ID, f.UserID, string(f.Type), f.Amount, f.Currency, f.Details, f.PhotoURI,
		f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save fund item: %w", err)
	}
	return nil
}

func (p *postgres) GetFundItem(ctx context.Context, id string) (*model.FundItem, error) {
	query := `SELECT id, user_id, type, amount, currency, details, photo_uri, created_at, updated_at
	          FROM fund_items WHERE id = $1`

	var f model.FundItem
	err := p.db.QueryRow(ctx, query, id).Scan(&f.ID, &f.UserID, &f.Type, &f.Amount,
		&f.Currency, &f.Details, &f.PhotoURI, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get fund item: %w", err)
	}
	return &f, nil
}

func (p *postgres) ListFundItemsByUser(ctx context.Context, userID string) ([]model.FundItem, error) {
	query := `SELECT id, user_id, type, amount, currency, details, photo_uri, created_at, updated_at
	          FROM fund_items WHERE user_id = $1 ORDER BY created_at ASC`

	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fund items: %w", err)
	}
	defer rows.Close()

	var out []model.FundItem
	for rows.Next() {
		var f model.FundItem
		if err := rows.Scan(&f.ID, &f.UserID, &f.Type, &f.Amount, &f.Currency,
			&f.Details, &f.PhotoURI, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fund item: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fund items: %w", err)
	}
	return out, nil
}

func (p *postgres) DeleteFundItem(ctx context.Context, id string) error {
	result, err := p.db.Exec(ctx, `DELETE FROM fund_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete fund item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const cardColumns = `id, entry_id, card_type, arr_card_no, qr_ref, pdf_ref, method, status, retry_count,
	error_details, is_superseded, superseded_by, superseded_reason, superseded_at, created_at`

func (p *postgres) AppendCard(ctx context.Context, card model.DigitalArrivalCard) error {
	errorDetails, err := json.Marshal(card.ErrorDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal error details: %w", err)
	}

	query := `INSERT INTO arrival_cards (` + cardColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = p.db.Exec(ctx, query,
		card.ID, card.EntryID, card.CardType, card.ArrCardNo, card.QRRef, card.PDFRef,
		card.Method, string(card.Status), card.RetryCount, errorDetails,
		card.IsSuperseded, card.SupersededBy, card.SupersededReason, card.SupersededAt,
		card.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to append card: %w", err)
	}
	return nil
}

func scanCard(row pgx.Row) (*model.DigitalArrivalCard, error) {
	var c model.DigitalArrivalCard
	var errorDetails []byte
	err := row.Scan(&c.ID, &c.EntryID, &c.CardType, &c.ArrCardNo, &c.QRRef, &c.PDFRef,
		&c.Method, &c.Status, &c.RetryCount, &errorDetails, &c.IsSuperseded,
		&c.SupersededBy, &c.SupersededReason, &c.SupersededAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeJSONValue(errorDetails, &c.ErrorDetails); err != nil {
		return nil, fmt.Errorf("failed to decode error details: %w", err)
	}
	return &c, nil
}

func (p *postgres) GetCard(ctx context.Context, id string) (*model.DigitalArrivalCard, error) {
	c, err := scanCard(p.db.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM arrival_cards WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return c, nil
}

func (p *postgres) UpdateCard(ctx context.Context, card model.DigitalArrivalCard) error {
	errorDetails, err := json.Marshal(card.ErrorDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal error details: %w", err)
	}

	query := `UPDATE arrival_cards SET arr_card_no = $2, qr_ref = $3, pdf_ref = $4, method = $5,
	              status = $6, retry_count = $7, error_details = $8, is_superseded = $9,
	              superseded_by = $10, superseded_reason = $11, superseded_at = $12
	          WHERE id = $1`

	result, err := p.db.Exec(ctx, query,
		card.ID, card.ArrCardNo, card.QRRef, card.PDFRef, card.Method,
		string(card.Status), card.RetryCount, errorDetails, card.IsSuperseded,
		card.SupersededBy, card.SupersededReason, card.SupersededAt)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) ListCardsByEntry(ctx context.Context, entryID, cardType string) ([]model.DigitalArrivalCard, error) {
	// ULID primary keys sort lexicographically by creation time; newest first.
	query := `SELECT ` + cardColumns + ` FROM arrival_cards WHERE entry_id = $1`
	args := []any{entryID}
	if cardType != "" {
		query += ` AND card_type = $2`
		args = append(args, cardType)
	}
	query += ` ORDER BY id DESC`

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var out []model.DigitalArrivalCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}
	return out, nil
}

func (p *postgres) SaveSnapshot(ctx context.Context, rec model.SnapshotRecord) error {
	pack, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot pack: %w", err)
	}

	query := `INSERT INTO entry_snapshots (id, entry_id, reason, pack, created_at)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (id) DO UPDATE SET pack = $4`

	_, err = p.db.Exec(ctx, query, rec.ID, rec.EntryID, rec.Reason, pack, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (p *postgres) GetSnapshot(ctx context.Context, id string) (*model.SnapshotRecord, error) {
	var pack []byte
	err := p.db.QueryRow(ctx,
		`SELECT pack FROM entry_snapshots WHERE id = $1`, id).Scan(&pack)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var rec model.SnapshotRecord
	if err := decodeJSONValue(pack, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot pack: %w", err)
	}
	return &rec, nil
}

func (p *postgres) ListSnapshotsByEntry(ctx context.Context, entryID string) ([]model.SnapshotRecord, error) {
	rows, err := p.db.Query(ctx,
		`SELECT pack FROM entry_snapshots WHERE entry_id = $1 ORDER BY id DESC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.SnapshotRecord
	for rows.Next() {
		var pack []byte
		if err := rows.Scan(&pack); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		var rec model.SnapshotRecord
		if err := decodeJSONValue(pack, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot pack: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}
