// Package history archives usage snapshots in SQLite for charts and
// statistics. Writes are best-effort from the refresher's point of view: a
// failed append never fails a refresh cycle.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// sqlite driver
	_ "modernc.org/sqlite"

	"github.com/xikxp1/claude-monitor/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	five_hour_utilization REAL,
	five_hour_resets_at TEXT,
	seven_day_utilization REAL,
	seven_day_resets_at TEXT,
	sonnet_utilization REAL,
	sonnet_resets_at TEXT,
	opus_utilization REAL,
	opus_resets_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_usage_history_timestamp ON usage_history(timestamp);
`

// Record is one archived snapshot row.
type Record struct {
	ID        int64
	Timestamp time.Time
	Snapshot  models.UsageSnapshot
}

// MetricStats summarizes one dimension over a query window.
type MetricStats struct {
	// Current is the latest utilization in the window, nil when no sample
	// carries the dimension.
	Current *float64
	// Change is last minus first utilization over the window.
	Change *float64
	// Velocity is percentage points consumed per hour; nil for negative
	// change (a quota rollover happened inside the window).
	Velocity *float64
}

// Stats aggregates a query window per dimension.
type Stats struct {
	FiveHour    MetricStats
	SevenDay    MetricStats
	Sonnet      MetricStats
	Opus        MetricStats
	RecordCount int64
	PeriodHours float64
}

// Store is the snapshot archive.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the history database.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure history database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Append stores one snapshot at the given timestamp.
func (s *Store) Append(snap *models.UsageSnapshot, ts time.Time) error {
	query := `
		INSERT INTO usage_history (
			timestamp,
			five_hour_utilization, five_hour_resets_at,
			seven_day_utilization, seven_day_resets_at,
			sonnet_utilization, sonnet_resets_at,
			opus_utilization, opus_resets_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	fiveU, fiveR := periodColumns(snap.FiveHour)
	sevenU, sevenR := periodColumns(snap.SevenDay)
	sonnetU, sonnetR := periodColumns(snap.SevenDaySonnet)
	opusU, opusR := periodColumns(snap.SevenDayOpus)

	_, err := s.db.ExecContext(context.Background(), query,
		ts.UTC().Format(time.RFC3339),
		fiveU, fiveR, sevenU, sevenR, sonnetU, sonnetR, opusU, opusR,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage snapshot: %w", err)
	}
	return nil
}

// QueryRange returns records with from <= timestamp <= to, oldest first.
func (s *Store) QueryRange(from, to time.Time) ([]Record, error) {
	query := selectColumns + `
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(context.Background(), query,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query usage history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// QueryPreset returns records for a preset range: "1h", "6h", "24h", "7d" or
// "30d". Unknown presets fall back to 24h.
func (s *Store) QueryPreset(preset string) ([]Record, error) {
	now := time.Now().UTC()
	return s.QueryRange(now.Add(-presetDuration(preset)), now)
}

// Stats aggregates per-dimension current/change/velocity over a preset
// range.
func (s *Store) Stats(preset string) (*Stats, error) {
	period := presetDuration(preset)
	now := time.Now().UTC()

	records, err := s.QueryRange(now.Add(-period), now)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		RecordCount: int64(len(records)),
		PeriodHours: period.Hours(),
	}
	if len(records) == 0 {
		return stats, nil
	}

	first, last := records[0].Snapshot, records[len(records)-1].Snapshot
	stats.FiveHour = metricStats(first.FiveHour, last.FiveHour, stats.PeriodHours)
	stats.SevenDay = metricStats(first.SevenDay, last.SevenDay, stats.PeriodHours)
	stats.Sonnet = metricStats(first.SevenDaySonnet, last.SevenDaySonnet, stats.PeriodHours)
	stats.Opus = metricStats(first.SevenDayOpus, last.SevenDayOpus, stats.PeriodHours)
	return stats, nil
}

// Prune deletes records older than the retention period and returns how
// many rows were removed.
func (s *Store) Prune(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	result, err := s.db.ExecContext(context.Background(),
		"DELETE FROM usage_history WHERE timestamp < ?",
		cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage history: %w", err)
	}
	return result.RowsAffected()
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

const selectColumns = `
	SELECT id, timestamp,
		five_hour_utilization, five_hour_resets_at,
		seven_day_utilization, seven_day_resets_at,
		sonnet_utilization, sonnet_resets_at,
		opus_utilization, opus_resets_at
	FROM usage_history
`

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var ts string
	var fiveU, sevenU, sonnetU, opusU sql.NullFloat64
	var fiveR, sevenR, sonnetR, opusR sql.NullString

	err := rows.Scan(&rec.ID, &ts,
		&fiveU, &fiveR, &sevenU, &sevenR, &sonnetU, &sonnetR, &opusU, &opusR)
	if err != nil {
		return rec, fmt.Errorf("failed to scan usage record: %w", err)
	}

	rec.Timestamp, err = time.Parse(time.RFC3339, ts)
	if err != nil {
		return rec, fmt.Errorf("failed to parse record timestamp: %w", err)
	}

	rec.Snapshot = models.UsageSnapshot{
		FiveHour:       columnsPeriod(fiveU, fiveR),
		SevenDay:       columnsPeriod(sevenU, sevenR),
		SevenDaySonnet: columnsPeriod(sonnetU, sonnetR),
		SevenDayOpus:   columnsPeriod(opusU, opusR),
	}
	return rec, nil
}

func periodColumns(p *models.UsagePeriod) (any, any) {
	if p == nil {
		return nil, nil
	}
	if p.ResetsAt == nil {
		return p.Utilization, nil
	}
	return p.Utilization, *p.ResetsAt
}

func columnsPeriod(u sql.NullFloat64, r sql.NullString) *models.UsagePeriod {
	if !u.Valid {
		return nil
	}
	period := &models.UsagePeriod{Utilization: u.Float64}
	if r.Valid {
		resetsAt := r.String
		period.ResetsAt = &resetsAt
	}
	return period
}

func metricStats(first, last *models.UsagePeriod, periodHours float64) MetricStats {
	var stats MetricStats
	if last != nil {
		current := last.Utilization
		stats.Current = &current
	}
	if first == nil || last == nil {
		return stats
	}

	change := last.Utilization - first.Utilization
	stats.Change = &change
	if change >= 0 && periodHours > 0 {
		velocity := change / periodHours
		stats.Velocity = &velocity
	}
	return stats
}

func presetDuration(preset string) time.Duration {
	switch preset {
	case "1h":
		return time.Hour
	case "6h":
		return 6 * time.Hour
	case "24h":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
