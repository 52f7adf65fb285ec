package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/opendatacatalog/catalogsync/internal/model"
)

// PgRepository implements Repository backed by PostgreSQL.
type PgRepository struct {
	db *sql.DB
}

// NewPgRepository opens dsn, tunes the pool, and applies the schema DDL.
func NewPgRepository(ctx context.Context, dsn string) (*PgRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("pg ping: %w", err)
	}

	r := &PgRepository{db: db}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("pg migrate: %w", err)
	}
	return r, nil
}

func (r *PgRepository) Close() error {
	return r.db.Close()
}

func (r *PgRepository) UpsertHost(ctx context.Context, host model.Host) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hosts (host, region, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (host) DO UPDATE SET
			region = EXCLUDED.region,
			last_seen = EXCLUDED.last_seen`,
		host.Host, string(host.Region), host.LastSeen)
	if err != nil {
		return fmt.Errorf("pg upsert host %s: %w", host.Host, err)
	}
	return nil
}

func (r *PgRepository) UpsertDomain(ctx context.Context, domain model.Domain) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO catalog_domains (domain, country, region, last_seen)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (domain) DO UPDATE SET
			country = EXCLUDED.country,
			region = EXCLUDED.region,
			last_seen = EXCLUDED.last_seen`,
		domain.Domain, domain.Country, string(domain.Region), domain.LastSeen)
	if err != nil {
		return fmt.Errorf("pg upsert domain %s: %w", domain.Domain, err)
	}
	return nil
}

func (r *PgRepository) UpsertAgency(ctx context.Context, agency model.Agency) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO agencies (host, name, type, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (host, name) DO UPDATE SET
			type = EXCLUDED.type`,
		agency.Host, agency.Name, agency.Type, agency.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg upsert agency %s/%s: %w", agency.Host, agency.Name, err)
	}
	return nil
}

// UpsertDatasets upserts every dataset for host inside one transaction and
// reports insert/update counts via the xmax = 0 trick: a freshly inserted
// row's system column xmax is 0, an updated row's is non-zero.
func (r *PgRepository) UpsertDatasets(ctx context.Context, host string, datasets []model.Dataset) (UpsertResult, error) {
	var result UpsertResult
	if len(datasets) == 0 {
		return result, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("pg begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ds := range datasets {
		var inserted bool
		err := tx.QueryRowContext(ctx, `
			INSERT INTO datasets (
				host, dataset_id, title, description, category, tags,
				publisher, updated_at, row_count, view_count, link, active,
				first_seen, last_seen
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
			ON CONFLICT (host, dataset_id) DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				category = EXCLUDED.category,
				tags = EXCLUDED.tags,
				publisher = EXCLUDED.publisher,
				updated_at = EXCLUDED.updated_at,
				row_count = EXCLUDED.row_count,
				view_count = EXCLUDED.view_count,
				link = EXCLUDED.link,
				active = EXCLUDED.active,
				last_seen = EXCLUDED.last_seen
			RETURNING (xmax = 0)`,
			host, ds.DatasetID, ds.Title, ds.Description, ds.Category,
			pq.Array(ds.Tags), ds.Publisher, ds.UpdatedAt, ds.RowCount,
			ds.ViewCount, ds.Link, ds.Active, ds.LastSeen,
		).Scan(&inserted)
		if err != nil {
			return result, fmt.Errorf("pg upsert dataset %s/%s: %w", host, ds.DatasetID, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("pg commit dataset upserts: %w", err)
	}
	return result, nil
}

// RetireStaleDatasets marks every active dataset for host whose last_seen
// predates cutoff as inactive. Idempotent: rows already inactive match
// nothing on a repeated call with the same cutoff.
func (r *PgRepository) RetireStaleDatasets(ctx context.Context, host string, cutoff time.Time) (int, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE datasets SET active = FALSE
		WHERE host = $1 AND active AND last_seen < $2
		RETURNING dataset_id`,
		host, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pg retire stale datasets: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return count, fmt.Errorf("pg scan retired dataset: %w", err)
		}
		count++
	}
	return count, rows.Err()
}

func (r *PgRepository) LoadResumeState(ctx context.Context, pipeline string) (*model.ResumeState, error) {
	var st model.ResumeState
	err := r.db.QueryRowContext(ctx, `
		SELECT pipeline, resume_token, last_processed_at, updated_at
		FROM resume_state WHERE pipeline = $1`, pipeline).
		Scan(&st.Pipeline, &st.ResumeToken, &st.LastProcessedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg load resume state %s: %w", pipeline, err)
	}
	return &st, nil
}

func (r *PgRepository) UpdateResumeState(ctx context.Context, pipeline, token string, processedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resume_state (pipeline, resume_token, last_processed_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (pipeline) DO UPDATE SET
			resume_token = EXCLUDED.resume_token,
			last_processed_at = EXCLUDED.last_processed_at,
			updated_at = NOW()`,
		pipeline, token, processedAt)
	if err != nil {
		return fmt.Errorf("pg update resume state %s: %w", pipeline, err)
	}
	return nil
}

// ProcessItemBatch upserts the host/domain/agency facets of every item in
// the batch plus the resume-state checkpoint, all inside one transaction.
func (r *PgRepository) ProcessItemBatch(ctx context.Context, pipeline string, items []model.CatalogItem, resumeToken string, processedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pg begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO hosts (host, region, last_seen)
			VALUES ($1, $2, $3)
			ON CONFLICT (host) DO UPDATE SET
				region = EXCLUDED.region,
				last_seen = EXCLUDED.last_seen`,
			item.Host, string(item.Region), processedAt); err != nil {
			return fmt.Errorf("pg upsert host %s: %w", item.Host, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_domains (domain, region, last_seen)
			VALUES ($1, $2, $3)
			ON CONFLICT (domain) DO UPDATE SET
				region = EXCLUDED.region,
				last_seen = EXCLUDED.last_seen`,
			item.Domain, string(item.Region), processedAt); err != nil {
			return fmt.Errorf("pg upsert domain %s: %w", item.Domain, err)
		}

		if item.Agency != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO agencies (host, name, created_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (host, name) DO NOTHING`,
				item.Host, *item.Agency, processedAt); err != nil {
				return fmt.Errorf("pg upsert agency %s/%s: %w", item.Host, *item.Agency, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resume_state (pipeline, resume_token, last_processed_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (pipeline) DO UPDATE SET
			resume_token = EXCLUDED.resume_token,
			last_processed_at = EXCLUDED.last_processed_at,
			updated_at = NOW()`,
		pipeline, resumeToken, processedAt); err != nil {
		return fmt.Errorf("pg update resume state %s: %w", pipeline, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pg commit item batch: %w", err)
	}
	return nil
}
