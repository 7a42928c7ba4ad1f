package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return apperr.Database("Ping", p.pool.Ping(ctx))
}

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// likePattern escapes s for use inside an ILIKE '%...%' pattern.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// --- sources ---

const sourceColumns = `id, name, url, format, refresh_hour, last_refresh, is_active, created_at, updated_at`

func scanSource(row pgx.Row) (*models.EpgSource, error) {
	var s models.EpgSource
	var format string
	if err := row.Scan(&s.ID, &s.Name, &s.URL, &format, &s.RefreshHour, &s.LastRefresh, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Format = models.SourceFormat(format)
	return &s, nil
}

func (p *Postgres) CreateSource(ctx context.Context, in NewSource) (*models.EpgSource, error) {
	src, err := scanSource(p.pool.QueryRow(ctx,
		`INSERT INTO epg_sources (name, url, format, refresh_hour, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+sourceColumns,
		in.Name, in.URL, string(in.Format), in.RefreshHour, in.IsActive,
	))
	if isUniqueViolation(err) {
		return nil, apperr.Duplicate("source with url %q", in.URL)
	}
	if err != nil {
		return nil, apperr.Database("CreateSource", err)
	}
	return src, nil
}

func (p *Postgres) ListSources(ctx context.Context) ([]models.EpgSource, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+sourceColumns+` FROM epg_sources ORDER BY name COLLATE "C", id`)
	if err != nil {
		return nil, apperr.Database("ListSources", err)
	}
	defer rows.Close()
	out := make([]models.EpgSource, 0)
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, apperr.Database("ListSources scan", err)
		}
		out = append(out, *s)
	}
	return out, apperr.Database("ListSources rows", rows.Err())
}

func (p *Postgres) GetSource(ctx context.Context, sourceID int64) (*models.EpgSource, error) {
	src, err := scanSource(p.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM epg_sources WHERE id = $1`, sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("source %d", sourceID)
	}
	if err != nil {
		return nil, apperr.Database("GetSource", err)
	}
	return src, nil
}

func (p *Postgres) UpdateSource(ctx context.Context, sourceID int64, f SourceUpdate) (*models.EpgSource, error) {
	var format *string
	if f.Format != nil {
		v := string(*f.Format)
		format = &v
	}
	src, err := scanSource(p.pool.QueryRow(ctx,
		`UPDATE epg_sources SET
		   name = COALESCE($2, name),
		   url = COALESCE($3, url),
		   format = COALESCE($4, format),
		   refresh_hour = COALESCE($5, refresh_hour),
		   is_active = COALESCE($6, is_active),
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+sourceColumns,
		sourceID, f.Name, f.URL, format, f.RefreshHour, f.IsActive,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, apperr.NotFound("source %d", sourceID)
	case isUniqueViolation(err):
		return nil, apperr.Duplicate("source with url %q", *f.URL)
	case err != nil:
		return nil, apperr.Database("UpdateSource", err)
	}
	return src, nil
}

// DeleteSource relies on ON DELETE CASCADE for channels, programmes and mappings.
func (p *Postgres) DeleteSource(ctx context.Context, sourceID int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM epg_sources WHERE id = $1`, sourceID)
	if err != nil {
		return apperr.Database("DeleteSource", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("source %d", sourceID)
	}
	return nil
}

// ReplaceGuide runs in one transaction holding the source row lock, so
// concurrent refreshes of the same source serialize and readers keep seeing
// the previous guide until commit. Channels keep their ids (and therefore
// their mappings and lineup settings) when the feed still carries them.
func (p *Postgres) ReplaceGuide(ctx context.Context, sourceID int64, channels []models.ChannelDraft, programs []models.ProgramDraft, refreshedAt time.Time) (models.RefreshStats, error) {
	stats := models.RefreshStats{SourceID: sourceID}
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM epg_sources WHERE id = $1 FOR UPDATE`, sourceID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("source %d", sourceID)
		}
		if err != nil {
			return fmt.Errorf("lock source: %w", err)
		}

		unique := make([]models.ChannelDraft, 0, len(channels))
		seen := make(map[string]bool, len(channels))
		for _, d := range channels {
			if !seen[d.ChannelID] {
				seen[d.ChannelID] = true
				unique = append(unique, d)
			}
		}

		batch := &pgx.Batch{}
		for _, d := range unique {
			batch.Queue(
				`INSERT INTO guide_channels (source_id, channel_id, display_name, icon)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (source_id, channel_id) WHERE source_id IS NOT NULL
				 DO UPDATE SET display_name = EXCLUDED.display_name, icon = EXCLUDED.icon
				 RETURNING id`,
				sourceID, d.ChannelID, d.DisplayName, d.Icon,
			)
		}
		ids := make(map[string]int64, len(unique))
		keep := make([]int64, 0, len(unique))
		br := tx.SendBatch(ctx, batch)
		for _, d := range unique {
			var id int64
			if err := br.QueryRow().Scan(&id); err != nil {
				br.Close()
				return fmt.Errorf("upsert channel %s: %w", d.ChannelID, err)
			}
			ids[d.ChannelID] = id
			keep = append(keep, id)
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("upsert channels: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM guide_channels WHERE source_id = $1 AND NOT is_synthetic AND NOT (id = ANY($2))`,
			sourceID, keep,
		); err != nil {
			return fmt.Errorf("delete stale channels: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM programs WHERE guide_channel_id IN (SELECT id FROM guide_channels WHERE source_id = $1)`,
			sourceID,
		); err != nil {
			return fmt.Errorf("delete programs: %w", err)
		}

		rows := make([][]any, 0, len(programs))
		for _, pr := range programs {
			chID, ok := ids[pr.ChannelID]
			if !ok {
				continue
			}
			rows = append(rows, []any{chID, pr.Title, pr.Description, pr.StartTime.UTC(), pr.EndTime.UTC(), pr.Category, pr.EpisodeInfo})
		}
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"programs"},
			[]string{"guide_channel_id", "title", "description", "start_time", "end_time", "category", "episode_info"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy programs: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE epg_sources SET last_refresh = $2, updated_at = NOW() WHERE id = $1`,
			sourceID, refreshedAt.UTC(),
		); err != nil {
			return fmt.Errorf("update last_refresh: %w", err)
		}
		stats.ChannelCount = len(unique)
		stats.ProgramCount = int(n)
		return nil
	})
	if err != nil {
		return models.RefreshStats{}, apperr.Database("ReplaceGuide", err)
	}
	return stats, nil
}

func (p *Postgres) SourceStats(ctx context.Context, sourceID int64) (*models.EpgStats, error) {
	var stats models.EpgStats
	err := p.pool.QueryRow(ctx,
		`SELECT s.last_refresh,
		   (SELECT COUNT(*) FROM guide_channels c WHERE c.source_id = s.id AND NOT c.is_synthetic),
		   (SELECT COUNT(*) FROM programs pr JOIN guide_channels c ON c.id = pr.guide_channel_id
		     WHERE c.source_id = s.id AND NOT c.is_synthetic)
		 FROM epg_sources s WHERE s.id = $1`,
		sourceID,
	).Scan(&stats.LastRefresh, &stats.ChannelCount, &stats.ProgramCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("source %d", sourceID)
	}
	if err != nil {
		return nil, apperr.Database("SourceStats", err)
	}
	return &stats, nil
}

// --- channels ---

const channelSelect = `SELECT c.id, c.source_id, c.channel_id, c.display_name, c.icon, c.is_synthetic,
	c.is_enabled, c.display_order,
	(SELECT COUNT(*) FROM channel_stream_mappings m WHERE m.guide_channel_id = c.id)
	FROM guide_channels c`

func scanChannel(row pgx.Row) (*models.GuideChannel, error) {
	var c models.GuideChannel
	err := row.Scan(&c.ID, &c.SourceID, &c.ChannelID, &c.DisplayName, &c.Icon, &c.IsSynthetic,
		&c.IsEnabled, &c.DisplayOrder, &c.MatchCount)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func getChannel(ctx context.Context, q dbtx, channelID int64) (*models.GuideChannel, error) {
	c, err := scanChannel(q.QueryRow(ctx, channelSelect+` WHERE c.id = $1`, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("channel %d", channelID)
	}
	return c, err
}

// lockChannel takes the row lock that serializes mapping changes of a channel.
func lockChannel(ctx context.Context, tx pgx.Tx, channelID int64) (synthetic bool, err error) {
	err = tx.QueryRow(ctx, `SELECT is_synthetic FROM guide_channels WHERE id = $1 FOR UPDATE`, channelID).Scan(&synthetic)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperr.NotFound("channel %d", channelID)
	}
	return synthetic, err
}

func (p *Postgres) GetChannel(ctx context.Context, channelID int64) (*models.GuideChannel, error) {
	c, err := getChannel(ctx, p.pool, channelID)
	if err != nil {
		return nil, apperr.Database("GetChannel", err)
	}
	return c, nil
}

func (p *Postgres) ListChannels(ctx context.Context, f ChannelFilter) ([]models.GuideChannel, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.SourceID != nil {
		where = append(where, "c.source_id = "+arg(*f.SourceID))
	}
	if f.Enabled != nil {
		where = append(where, "c.is_enabled = "+arg(*f.Enabled))
	}
	if f.Synthetic != nil {
		where = append(where, "c.is_synthetic = "+arg(*f.Synthetic))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "c.display_name ILIKE "+arg(likePattern(s)))
	}

	q := channelSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.LineupOrder {
		q += ` ORDER BY c.display_order NULLS LAST, c.display_name COLLATE "C", c.id`
	} else {
		q += ` ORDER BY c.display_name COLLATE "C", c.id`
	}
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Database("ListChannels", err)
	}
	defer rows.Close()
	out := make([]models.GuideChannel, 0)
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, apperr.Database("ListChannels scan", err)
		}
		out = append(out, *c)
	}
	return out, apperr.Database("ListChannels rows", rows.Err())
}

func (p *Postgres) ToggleChannel(ctx context.Context, channelID int64) (*models.GuideChannel, error) {
	var out *models.GuideChannel
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := lockChannel(ctx, tx, channelID); err != nil {
			return err
		}
		c, err := getChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if !c.IsEnabled && c.MatchCount == 0 {
			return apperr.Validation("cannot enable channel without stream source")
		}
		if _, err := tx.Exec(ctx, `UPDATE guide_channels SET is_enabled = $2 WHERE id = $1`, channelID, !c.IsEnabled); err != nil {
			return err
		}
		c.IsEnabled = !c.IsEnabled
		out = c
		return nil
	})
	if err != nil {
		return nil, apperr.Database("ToggleChannel", err)
	}
	return out, nil
}

func (p *Postgres) SetChannelDisplayOrder(ctx context.Context, channelID int64, order *int) (*models.GuideChannel, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE guide_channels SET display_order = $2 WHERE id = $1`, channelID, order)
	if err != nil {
		return nil, apperr.Database("SetChannelDisplayOrder", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("channel %d", channelID)
	}
	return p.GetChannel(ctx, channelID)
}

func (p *Postgres) DeleteSyntheticChannel(ctx context.Context, channelID int64) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		synthetic, err := lockChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if !synthetic {
			return apperr.Validation("channel %d belongs to an epg source and is replaced by its refresh", channelID)
		}
		_, err = tx.Exec(ctx, `DELETE FROM guide_channels WHERE id = $1`, channelID)
		return err
	})
	return apperr.Database("DeleteSyntheticChannel", err)
}

func (p *Postgres) ListPrograms(ctx context.Context, channelID int64, w ProgramWindow) ([]models.Program, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM guide_channels WHERE id = $1)`, channelID).Scan(&exists); err != nil {
		return nil, apperr.Database("ListPrograms", err)
	}
	if !exists {
		return nil, apperr.NotFound("channel %d", channelID)
	}

	var from, to *time.Time
	if !w.From.IsZero() {
		from = &w.From
	}
	if !w.To.IsZero() {
		to = &w.To
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, guide_channel_id, title, description, start_time, end_time, category, episode_info
		 FROM programs
		 WHERE guide_channel_id = $1
		   AND ($2::timestamptz IS NULL OR end_time > $2)
		   AND ($3::timestamptz IS NULL OR start_time < $3)
		 ORDER BY start_time, id`,
		channelID, from, to,
	)
	if err != nil {
		return nil, apperr.Database("ListPrograms", err)
	}
	defer rows.Close()
	out := make([]models.Program, 0)
	for rows.Next() {
		var pr models.Program
		if err := rows.Scan(&pr.ID, &pr.GuideChannelID, &pr.Title, &pr.Description, &pr.StartTime, &pr.EndTime, &pr.Category, &pr.EpisodeInfo); err != nil {
			return nil, apperr.Database("ListPrograms scan", err)
		}
		pr.StartTime = pr.StartTime.UTC()
		pr.EndTime = pr.EndTime.UTC()
		out = append(out, pr)
	}
	return out, apperr.Database("ListPrograms rows", rows.Err())
}
