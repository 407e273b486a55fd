package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/orchard9/campaign-warehouse/internal/models"
)

// ClickHousePerformanceStore keeps the hourly counters in ClickHouse. Rows
// are immutable facts keyed by (campaign_id, unix_hour); the sync pipeline
// replaces an hour by re-inserting it, and queries aggregate with max() per
// hour to tolerate duplicates from overlapping syncs.
type ClickHousePerformanceStore struct {
	conn driver.Conn
}

func NewClickHousePerformanceStore(conn driver.Conn) *ClickHousePerformanceStore {
	return &ClickHousePerformanceStore{conn: conn}
}

func (s *ClickHousePerformanceStore) InsertHourly(ctx context.Context, rows []models.HourlyRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO hourly_performance
			(campaign_id, unix_hour, sessions, credit_cards, email_accounts,
			 google_accounts, registrations, total_accounts, converted_users)`)
	if err != nil {
		return fmt.Errorf("failed to prepare hourly batch: %w", err)
	}
	for _, row := range rows {
		if err := batch.Append(
			row.CampaignID, row.UnixHour, row.Sessions, row.CreditCards,
			row.EmailAccounts, row.GoogleAccounts, row.Registrations,
			row.TotalAccounts, row.ConvertedUsers,
		); err != nil {
			return fmt.Errorf("failed to append hourly row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send hourly batch: %w", err)
	}
	return nil
}

func (s *ClickHousePerformanceStore) SumWindow(ctx context.Context, start, end time.Time) (map[int64]models.PerformanceTotals, error) {
	// The window is day-granular and inclusive: every hour of the end date
	// counts, even when end arrives truncated to midnight.
	startHour := start.Unix() / 3600
	endHour := (end.Unix() + 23*3600) / 3600

	rows, err := s.conn.Query(ctx, `
		SELECT campaign_id,
		       sum(sessions), sum(credit_cards), sum(registrations), sum(converted_users)
		FROM (
			SELECT campaign_id, unix_hour,
			       max(sessions) AS sessions,
			       max(credit_cards) AS credit_cards,
			       max(registrations) AS registrations,
			       max(converted_users) AS converted_users
			FROM hourly_performance
			WHERE unix_hour BETWEEN ? AND ?
			GROUP BY campaign_id, unix_hour
		)
		GROUP BY campaign_id`, startHour, endHour)
	if err != nil {
		return nil, fmt.Errorf("failed to sum performance window: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.PerformanceTotals)
	for rows.Next() {
		var id int64
		var t models.PerformanceTotals
		if err := rows.Scan(&id, &t.Sessions, &t.CreditCards, &t.Registrations, &t.ConvertedUsers); err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, rows.Err()
}

func (s *ClickHousePerformanceStore) ActivityBounds(ctx context.Context) (map[int64]models.ActivityWindow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT campaign_id, min(unix_hour), max(unix_hour)
		FROM hourly_performance
		GROUP BY campaign_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity bounds: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.ActivityWindow)
	for rows.Next() {
		var id, first, last int64
		if err := rows.Scan(&id, &first, &last); err != nil {
			return nil, err
		}
		out[id] = models.ActivityWindow{
			First: time.Unix(first*3600, 0).UTC(),
			Last:  time.Unix(last*3600, 0).UTC(),
		}
	}
	return out, rows.Err()
}
