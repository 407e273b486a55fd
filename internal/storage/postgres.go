package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orchard9/campaign-warehouse/internal/models"
)

// PostgreSQL-backed implementations of the storage interfaces.

// =============================================
// CAMPAIGNS
// =============================================

type PostgresCampaignRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCampaignRepo(pool *pgxpool.Pool) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{pool: pool}
}

const campaignColumns = `id, name, status, cost, cost_status, first_activity, last_activity, created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Status, &c.Cost, &c.CostStatus,
		&c.FirstActivity, &c.LastActivity, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresCampaignRepo) List(ctx context.Context, opts ListOptions) ([]*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	args := []interface{}{}
	if opts.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY id`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var out []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCampaignRepo) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *PostgresCampaignRepo) Upsert(ctx context.Context, c *models.Campaign) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO campaigns (id, name, status, cost, cost_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			cost = EXCLUDED.cost,
			cost_status = EXCLUDED.cost_status,
			updated_at = NOW()`,
		c.ID, c.Name, c.Status, c.Cost, c.CostStatus)
	if err != nil {
		return fmt.Errorf("failed to upsert campaign %d: %w", c.ID, err)
	}
	return nil
}

func (r *PostgresCampaignRepo) UpdateActivity(ctx context.Context, id int64, first, last time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET first_activity = $2, last_activity = $3, updated_at = NOW()
		WHERE id = $1`,
		id, first, last)
	return err
}

func (r *PostgresCampaignRepo) Count(ctx context.Context, status string) (int, error) {
	var n int
	var err error
	if status == "" {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&n)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM campaigns WHERE status = $1`, status).Scan(&n)
	}
	return n, err
}

// =============================================
// COST OVERRIDES
// =============================================

type PostgresOverrideRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresOverrideRepo(pool *pgxpool.Pool) *PostgresOverrideRepo {
	return &PostgresOverrideRepo{pool: pool}
}

const overrideColumns = `id, campaign_id, cost, start_date, end_date, reason, set_by, is_active, created_at, updated_at`

func scanOverride(row pgx.Row) (*models.CostOverride, error) {
	var o models.CostOverride
	err := row.Scan(&o.ID, &o.CampaignID, &o.Cost, &o.StartDate, &o.EndDate,
		&o.Reason, &o.SetBy, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresOverrideRepo) GetActive(ctx context.Context, campaignID int64) (*models.CostOverride, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+overrideColumns+` FROM cost_overrides
		WHERE campaign_id = $1 AND is_active
		ORDER BY created_at DESC LIMIT 1`, campaignID)
	o, err := scanOverride(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (r *PostgresOverrideRepo) ListActive(ctx context.Context) (map[int64]*models.CostOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+overrideColumns+` FROM cost_overrides WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*models.CostOverride)
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out[o.CampaignID] = o
	}
	return out, rows.Err()
}

func (r *PostgresOverrideRepo) ListByCampaign(ctx context.Context, campaignID int64) ([]*models.CostOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+overrideColumns+` FROM cost_overrides
		WHERE campaign_id = $1 ORDER BY created_at DESC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CostOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Set deactivates any previous active override for the campaign and inserts
// the new one in a single transaction, preserving the full history.
func (r *PostgresOverrideRepo) Set(ctx context.Context, o *models.CostOverride) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE cost_overrides SET is_active = FALSE, updated_at = NOW()
		WHERE campaign_id = $1 AND is_active`, o.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous override: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO cost_overrides (campaign_id, cost, start_date, end_date, reason, set_by, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
		RETURNING id`,
		o.CampaignID, o.Cost, o.StartDate, o.EndDate, o.Reason, o.SetBy).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("failed to insert override: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PostgresOverrideRepo) Clear(ctx context.Context, campaignID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE cost_overrides SET is_active = FALSE, updated_at = NOW()
		WHERE campaign_id = $1 AND is_active`, campaignID)
	return err
}

// =============================================
// HIERARCHY MAPPINGS AND RULES
// =============================================

type PostgresHierarchyRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresHierarchyRepo(pool *pgxpool.Pool) *PostgresHierarchyRepo {
	return &PostgresHierarchyRepo{pool: pool}
}

const mappingColumns = `campaign_id, network, domain, placement, targeting, special, mapping_confidence, updated_at`

func (r *PostgresHierarchyRepo) GetAll(ctx context.Context) (map[int64]*models.HierarchyMapping, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+mappingColumns+` FROM campaign_hierarchy`)
	if err != nil {
		return nil, fmt.Errorf("failed to load hierarchy mappings: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*models.HierarchyMapping)
	for rows.Next() {
		var m models.HierarchyMapping
		if err := rows.Scan(&m.CampaignID, &m.Network, &m.Domain, &m.Placement,
			&m.Targeting, &m.Special, &m.Confidence, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out[m.CampaignID] = &m
	}
	return out, rows.Err()
}

func (r *PostgresHierarchyRepo) Get(ctx context.Context, campaignID int64) (*models.HierarchyMapping, error) {
	var m models.HierarchyMapping
	err := r.pool.QueryRow(ctx, `
		SELECT `+mappingColumns+` FROM campaign_hierarchy WHERE campaign_id = $1`,
		campaignID).Scan(&m.CampaignID, &m.Network, &m.Domain, &m.Placement,
		&m.Targeting, &m.Special, &m.Confidence, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresHierarchyRepo) Upsert(ctx context.Context, m *models.HierarchyMapping) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO campaign_hierarchy (campaign_id, network, domain, placement, targeting, special, mapping_confidence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (campaign_id) DO UPDATE SET
			network = EXCLUDED.network,
			domain = EXCLUDED.domain,
			placement = EXCLUDED.placement,
			targeting = EXCLUDED.targeting,
			special = EXCLUDED.special,
			mapping_confidence = EXCLUDED.mapping_confidence,
			updated_at = NOW()`,
		m.CampaignID, m.Network, m.Domain, m.Placement, m.Targeting, m.Special, m.Confidence)
	if err != nil {
		return fmt.Errorf("failed to upsert hierarchy mapping for %d: %w", m.CampaignID, err)
	}
	return nil
}

type PostgresRuleRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRuleRepo(pool *pgxpool.Pool) *PostgresRuleRepo {
	return &PostgresRuleRepo{pool: pool}
}

func (r *PostgresRuleRepo) ListActive(ctx context.Context) ([]*models.HierarchyRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, pattern_type, pattern_value, network, domain, placement, targeting, special, priority, is_active
		FROM hierarchy_rules
		WHERE is_active
		ORDER BY priority DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hierarchy rules: %w", err)
	}
	defer rows.Close()

	var out []*models.HierarchyRule
	for rows.Next() {
		var rule models.HierarchyRule
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Type, &rule.Pattern,
			&rule.Network, &rule.Domain, &rule.Placement, &rule.Targeting,
			&rule.Special, &rule.Priority, &rule.IsActive); err != nil {
			return nil, err
		}
		out = append(out, &rule)
	}
	return out, rows.Err()
}

func (r *PostgresRuleRepo) Add(ctx context.Context, rule *models.HierarchyRule) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO hierarchy_rules (name, pattern_type, pattern_value, network, domain, placement, targeting, special, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		RETURNING id`,
		rule.Name, rule.Type, rule.Pattern, rule.Network, rule.Domain,
		rule.Placement, rule.Targeting, rule.Special, rule.Priority).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to add hierarchy rule: %w", err)
	}
	rule.IsActive = true
	return nil
}

// =============================================
// SYNC LOG
// =============================================

type PostgresSyncLogRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSyncLogRepo(pool *pgxpool.Pool) *PostgresSyncLogRepo {
	return &PostgresSyncLogRepo{pool: pool}
}

func (r *PostgresSyncLogRepo) Start(ctx context.Context, run *models.SyncRun) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO sync_log (sync_type, status, start_time)
		VALUES ($1, $2, $3)
		RETURNING id`,
		run.SyncType, run.Status, run.StartTime).Scan(&run.ID)
}

func (r *PostgresSyncLogRepo) Complete(ctx context.Context, run *models.SyncRun) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sync_log
		SET status = $2, end_time = $3, records_processed = $4,
		    records_inserted = $5, records_updated = $6, api_calls_made = $7,
		    error_message = NULLIF($8, '')
		WHERE id = $1`,
		run.ID, run.Status, run.EndTime, run.RecordsProcessed,
		run.RecordsInserted, run.RecordsUpdated, run.APICalls, run.Error)
	return err
}

func (r *PostgresSyncLogRepo) History(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sync_type, status, start_time, end_time, records_processed,
		       records_inserted, records_updated, api_calls_made, COALESCE(error_message, '')
		FROM sync_log
		ORDER BY start_time DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		if err := rows.Scan(&run.ID, &run.SyncType, &run.Status, &run.StartTime,
			&run.EndTime, &run.RecordsProcessed, &run.RecordsInserted,
			&run.RecordsUpdated, &run.APICalls, &run.Error); err != nil {
			return nil, err
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}

// =============================================
// ACTIVITY LOG
// =============================================

type PostgresActivityRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresActivityRepo(pool *pgxpool.Pool) *PostgresActivityRepo {
	return &PostgresActivityRepo{pool: pool}
}

func (r *PostgresActivityRepo) Log(ctx context.Context, e *models.ActivityEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO campaign_activity_log (campaign_id, activity_type, description, source, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		e.CampaignID, e.Type, e.Description, e.Source).Scan(&e.ID, &e.CreatedAt)
}

func (r *PostgresActivityRepo) Recent(ctx context.Context, limit int) ([]*models.ActivityEntry, error) {
	return r.query(ctx, `
		SELECT id, campaign_id, activity_type, description, source, created_at
		FROM campaign_activity_log
		ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *PostgresActivityRepo) RecentByCampaign(ctx context.Context, campaignID int64, limit int) ([]*models.ActivityEntry, error) {
	return r.query(ctx, `
		SELECT id, campaign_id, activity_type, description, source, created_at
		FROM campaign_activity_log
		WHERE campaign_id = $1
		ORDER BY created_at DESC LIMIT $2`, campaignID, limit)
}

func (r *PostgresActivityRepo) query(ctx context.Context, sql string, args ...interface{}) ([]*models.ActivityEntry, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Type, &e.Description,
			&e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
