package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/lineup"
	"github.com/voyagen/guidevault/internal/models"
)

const (
	hasMapping          = `EXISTS (SELECT 1 FROM channel_stream_mappings m WHERE m.catalog_stream_id = s.id)`
	hasSyntheticMapping = `EXISTS (SELECT 1 FROM channel_stream_mappings m JOIN guide_channels g ON g.id = m.guide_channel_id
		WHERE m.catalog_stream_id = s.id AND g.is_synthetic)`
)

const streamSelect = `SELECT s.id, s.account_id, s.stream_id, s.name, s.stream_icon, s.category_id, s.category_name,
	s.qualities, s.updated_at,
	(SELECT COUNT(*) FROM channel_stream_mappings m WHERE m.catalog_stream_id = s.id),
	` + hasSyntheticMapping + `
	FROM catalog_streams s`

func scanStream(row pgx.Row) (*models.CatalogStream, error) {
	var s models.CatalogStream
	var qualities []string
	err := row.Scan(&s.ID, &s.AccountID, &s.StreamID, &s.Name, &s.StreamIcon, &s.CategoryID, &s.CategoryName,
		&qualities, &s.UpdatedAt, &s.MappingCount, &s.IsPromoted)
	if err != nil {
		return nil, err
	}
	s.Qualities = make([]models.QualityTier, len(qualities))
	for i, q := range qualities {
		s.Qualities[i] = models.QualityTier(q)
	}
	s.LinkStatus = models.DeriveLinkStatus(s.IsPromoted, s.MappingCount)
	return &s, nil
}

func qualityStrings(q []models.QualityTier) []string {
	out := make([]string, len(q))
	for i, v := range q {
		out[i] = string(v)
	}
	return out
}

// ReconcileCatalog upserts the scanned streams of an account and deletes the
// ones the provider no longer lists. Channels that lose a mapping that way
// get their remaining mappings renumbered.
func (p *Postgres) ReconcileCatalog(ctx context.Context, accountID int64, streams []models.CatalogStream) (models.ScanResult, error) {
	var res models.ScanResult
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, stream_id FROM catalog_streams WHERE account_id = $1 FOR UPDATE`, accountID)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		existing := make(map[string]int64)
		for rows.Next() {
			var id int64
			var sid string
			if err := rows.Scan(&id, &sid); err != nil {
				rows.Close()
				return err
			}
			existing[sid] = id
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		seen := make(map[string]bool, len(streams))
		for _, s := range streams {
			if seen[s.StreamID] {
				continue
			}
			seen[s.StreamID] = true
			res.TotalChannels++
			if _, ok := existing[s.StreamID]; ok {
				res.UpdatedChannels++
				delete(existing, s.StreamID)
			} else {
				res.NewChannels++
			}
			batch.Queue(
				`INSERT INTO catalog_streams (account_id, stream_id, name, stream_icon, category_id, category_name, qualities)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (account_id, stream_id) DO UPDATE SET
				   name = EXCLUDED.name, stream_icon = EXCLUDED.stream_icon,
				   category_id = EXCLUDED.category_id, category_name = EXCLUDED.category_name,
				   qualities = EXCLUDED.qualities, updated_at = NOW()`,
				accountID, s.StreamID, s.Name, s.StreamIcon, s.CategoryID, s.CategoryName, qualityStrings(s.Qualities),
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("upsert streams: %w", err)
			}
		}

		gone := make([]int64, 0, len(existing))
		for _, id := range existing {
			gone = append(gone, id)
		}
		if len(gone) == 0 {
			return nil
		}
		if _, err := dropStreamMappings(ctx, tx, gone); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM catalog_streams WHERE id = ANY($1)`, gone); err != nil {
			return fmt.Errorf("delete streams: %w", err)
		}
		res.RemovedChannels = len(gone)
		return nil
	})
	if err != nil {
		return models.ScanResult{}, apperr.Database("ReconcileCatalog", err)
	}
	return res, nil
}

func (p *Postgres) ListCatalogStreams(ctx context.Context, f CatalogFilter) ([]models.CatalogStream, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.AccountID != nil {
		where = append(where, "s.account_id = "+arg(*f.AccountID))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "s.name ILIKE "+arg(likePattern(s)))
	}
	switch f.Status {
	case models.StatusOrphan:
		where = append(where, "NOT "+hasMapping)
	case models.StatusLinked:
		where = append(where, hasMapping+" AND NOT "+hasSyntheticMapping)
	case models.StatusPromoted:
		where = append(where, hasSyntheticMapping)
	}

	q := streamSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += ` ORDER BY s.name COLLATE "C", s.id`
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Database("ListCatalogStreams", err)
	}
	defer rows.Close()
	out := make([]models.CatalogStream, 0)
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, apperr.Database("ListCatalogStreams scan", err)
		}
		out = append(out, *s)
	}
	return out, apperr.Database("ListCatalogStreams rows", rows.Err())
}

func getStream(ctx context.Context, q dbtx, streamID int64, lock bool) (*models.CatalogStream, error) {
	sql := streamSelect + ` WHERE s.id = $1`
	if lock {
		sql += ` FOR UPDATE OF s`
	}
	s, err := scanStream(q.QueryRow(ctx, sql, streamID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("stream %d", streamID)
	}
	return s, err
}

func (p *Postgres) GetCatalogStream(ctx context.Context, streamID int64) (*models.CatalogStream, error) {
	s, err := getStream(ctx, p.pool, streamID, false)
	if err != nil {
		return nil, apperr.Database("GetCatalogStream", err)
	}
	return s, nil
}

// --- mappings ---

func loadMappings(ctx context.Context, q dbtx, channelID int64) ([]models.ChannelStreamMapping, error) {
	rows, err := q.Query(ctx,
		`SELECT m.id, m.guide_channel_id, m.catalog_stream_id, m.is_primary, m.is_manual, m.priority, m.created_at, s.name
		 FROM channel_stream_mappings m
		 JOIN catalog_streams s ON s.id = m.catalog_stream_id
		 WHERE m.guide_channel_id = $1
		 ORDER BY m.priority, m.id`,
		channelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.ChannelStreamMapping, 0)
	for rows.Next() {
		var m models.ChannelStreamMapping
		if err := rows.Scan(&m.ID, &m.GuideChannelID, &m.CatalogStreamID, &m.IsPrimary, &m.IsManual, &m.Priority, &m.CreatedAt, &m.StreamName); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// writeLineup stores priority and primary flag of every mapping in list.
// The primary flags are cleared first so the partial unique index on
// is_primary never sees two primaries mid-update.
func writeLineup(ctx context.Context, tx pgx.Tx, channelID int64, list []models.ChannelStreamMapping) error {
	if _, err := tx.Exec(ctx,
		`UPDATE channel_stream_mappings SET is_primary = FALSE WHERE guide_channel_id = $1 AND is_primary`,
		channelID,
	); err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}
	if len(list) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range list {
		batch.Queue(`UPDATE channel_stream_mappings SET priority = $2, is_primary = $3 WHERE id = $1`, m.ID, m.Priority, m.IsPrimary)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write lineup: %w", err)
	}
	return nil
}

// dropStreamMappings removes every mapping of the given streams, renumbering
// each affected channel under its row lock. Channels are locked in id order.
func dropStreamMappings(ctx context.Context, tx pgx.Tx, streamIDs []int64) (int, error) {
	rows, err := tx.Query(ctx,
		`SELECT DISTINCT guide_channel_id FROM channel_stream_mappings WHERE catalog_stream_id = ANY($1) ORDER BY 1`,
		streamIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("affected channels: %w", err)
	}
	channels, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("affected channels: %w", err)
	}

	drop := make(map[int64]bool, len(streamIDs))
	for _, id := range streamIDs {
		drop[id] = true
	}
	total := 0
	for _, chID := range channels {
		if _, err := lockChannel(ctx, tx, chID); err != nil {
			return 0, err
		}
		list, err := loadMappings(ctx, tx, chID)
		if err != nil {
			return 0, fmt.Errorf("load mappings: %w", err)
		}
		var ids []int64
		for _, m := range list {
			if drop[m.CatalogStreamID] {
				ids = append(ids, m.ID)
			}
		}
		kept, removed := lineup.Remove(list, ids...)
		if _, err := tx.Exec(ctx, `DELETE FROM channel_stream_mappings WHERE id = ANY($1)`, ids); err != nil {
			return 0, fmt.Errorf("delete mappings: %w", err)
		}
		if err := writeLineup(ctx, tx, chID, kept); err != nil {
			return 0, err
		}
		total += len(removed)
	}
	return total, nil
}

func (p *Postgres) ListMappings(ctx context.Context, channelID int64) ([]models.ChannelStreamMapping, error) {
	if _, err := getChannel(ctx, p.pool, channelID); err != nil {
		return nil, apperr.Database("ListMappings", err)
	}
	list, err := loadMappings(ctx, p.pool, channelID)
	if err != nil {
		return nil, apperr.Database("ListMappings", err)
	}
	return list, nil
}

func (p *Postgres) AddMapping(ctx context.Context, channelID, streamID int64, primary bool) ([]models.ChannelStreamMapping, error) {
	var out []models.ChannelStreamMapping
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := lockChannel(ctx, tx, channelID); err != nil {
			return err
		}
		stream, err := getStream(ctx, tx, streamID, false)
		if err != nil {
			return err
		}
		list, err := loadMappings(ctx, tx, channelID)
		if err != nil {
			return fmt.Errorf("load mappings: %w", err)
		}

		m := models.ChannelStreamMapping{
			GuideChannelID:  channelID,
			CatalogStreamID: streamID,
			IsManual:        true,
			StreamName:      stream.Name,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO channel_stream_mappings (guide_channel_id, catalog_stream_id, is_primary, is_manual, priority)
			 VALUES ($1, $2, FALSE, TRUE, $3)
			 RETURNING id, created_at`,
			channelID, streamID, len(list),
		).Scan(&m.ID, &m.CreatedAt)
		if isUniqueViolation(err) {
			return apperr.Duplicate("mapping of stream %d to channel %d", streamID, channelID)
		}
		if err != nil {
			return fmt.Errorf("insert mapping: %w", err)
		}

		out = lineup.Add(list, m, primary)
		return writeLineup(ctx, tx, channelID, out)
	})
	if err != nil {
		return nil, apperr.Database("AddMapping", err)
	}
	return out, nil
}

func (p *Postgres) RemoveMapping(ctx context.Context, mappingID int64) ([]models.ChannelStreamMapping, error) {
	var out []models.ChannelStreamMapping
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var channelID int64
		err := tx.QueryRow(ctx, `SELECT guide_channel_id FROM channel_stream_mappings WHERE id = $1`, mappingID).Scan(&channelID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("mapping %d", mappingID)
		}
		if err != nil {
			return err
		}
		if _, err := lockChannel(ctx, tx, channelID); err != nil {
			return err
		}
		list, err := loadMappings(ctx, tx, channelID)
		if err != nil {
			return fmt.Errorf("load mappings: %w", err)
		}
		kept, removed := lineup.Remove(list, mappingID)
		if len(removed) == 0 {
			return apperr.NotFound("mapping %d", mappingID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM channel_stream_mappings WHERE id = $1`, mappingID); err != nil {
			return fmt.Errorf("delete mapping: %w", err)
		}
		if kept == nil {
			kept = []models.ChannelStreamMapping{}
		}
		out = kept
		return writeLineup(ctx, tx, channelID, kept)
	})
	if err != nil {
		return nil, apperr.Database("RemoveMapping", err)
	}
	return out, nil
}

func (p *Postgres) SetPrimaryMapping(ctx context.Context, channelID, streamID int64) ([]models.ChannelStreamMapping, error) {
	var out []models.ChannelStreamMapping
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := lockChannel(ctx, tx, channelID); err != nil {
			return err
		}
		list, err := loadMappings(ctx, tx, channelID)
		if err != nil {
			return fmt.Errorf("load mappings: %w", err)
		}
		next, ok := lineup.SetPrimary(list, streamID)
		if !ok {
			return apperr.NotFound("mapping of stream %d to channel %d", streamID, channelID)
		}
		out = next
		return writeLineup(ctx, tx, channelID, next)
	})
	if err != nil {
		return nil, apperr.Database("SetPrimaryMapping", err)
	}
	return out, nil
}

func (p *Postgres) UnlinkStream(ctx context.Context, streamID int64) (int, error) {
	var n int
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		s, err := getStream(ctx, tx, streamID, true)
		if err != nil {
			return err
		}
		if s.LinkStatus == models.StatusPromoted {
			return apperr.Validation("stream %d is promoted and cannot be unlinked", streamID)
		}
		n, err = dropStreamMappings(ctx, tx, []int64{streamID})
		return err
	})
	if err != nil {
		return 0, apperr.Database("UnlinkStream", err)
	}
	return n, nil
}

func (p *Postgres) PromoteStream(ctx context.Context, streamID int64, displayName string, icon *string) (*models.GuideChannel, error) {
	var out *models.GuideChannel
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		s, err := getStream(ctx, tx, streamID, true)
		if err != nil {
			return err
		}
		if s.LinkStatus != models.StatusOrphan {
			return apperr.Validation("stream %d is %s; only orphan streams can be promoted", streamID, s.LinkStatus)
		}

		chanID := SyntheticChannelID(streamID)
		var id int64
		err = tx.QueryRow(ctx,
			`INSERT INTO guide_channels (source_id, channel_id, display_name, icon, is_synthetic, is_enabled)
			 VALUES (NULL, $1, $2, $3, TRUE, TRUE)
			 RETURNING id`,
			chanID, displayName, icon,
		).Scan(&id)
		if isUniqueViolation(err) {
			return apperr.Duplicate("synthetic channel %q", chanID)
		}
		if err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO channel_stream_mappings (guide_channel_id, catalog_stream_id, is_primary, is_manual, priority)
			 VALUES ($1, $2, TRUE, TRUE, 0)`,
			id, streamID,
		); err != nil {
			return fmt.Errorf("insert mapping: %w", err)
		}
		out, err = getChannel(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, apperr.Database("PromoteStream", err)
	}
	return out, nil
}

// --- schedule ---

func (p *Postgres) GetSchedule(ctx context.Context) (*models.ScheduleSetting, error) {
	var s models.ScheduleSetting
	err := p.pool.QueryRow(ctx,
		`SELECT hour, minute, enabled, last_scheduled_refresh FROM schedule_settings WHERE id = 1`,
	).Scan(&s.Hour, &s.Minute, &s.Enabled, &s.LastScheduledRefresh)
	if errors.Is(err, pgx.ErrNoRows) {
		def := DefaultSchedule
		return &def, nil
	}
	if err != nil {
		return nil, apperr.Database("GetSchedule", err)
	}
	return &s, nil
}

func (p *Postgres) SaveSchedule(ctx context.Context, in models.ScheduleSetting) (*models.ScheduleSetting, error) {
	var s models.ScheduleSetting
	err := p.pool.QueryRow(ctx,
		`INSERT INTO schedule_settings (id, hour, minute, enabled) VALUES (1, $1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET hour = EXCLUDED.hour, minute = EXCLUDED.minute, enabled = EXCLUDED.enabled
		 RETURNING hour, minute, enabled, last_scheduled_refresh`,
		in.Hour, in.Minute, in.Enabled,
	).Scan(&s.Hour, &s.Minute, &s.Enabled, &s.LastScheduledRefresh)
	if err != nil {
		return nil, apperr.Database("SaveSchedule", err)
	}
	return &s, nil
}

func (p *Postgres) MarkScheduledRefresh(ctx context.Context, at time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO schedule_settings (id, hour, minute, enabled, last_scheduled_refresh)
		 VALUES (1, $2, $3, $4, $1)
		 ON CONFLICT (id) DO UPDATE SET last_scheduled_refresh = EXCLUDED.last_scheduled_refresh`,
		at.UTC(), DefaultSchedule.Hour, DefaultSchedule.Minute, DefaultSchedule.Enabled,
	)
	return apperr.Database("MarkScheduledRefresh", err)
}
