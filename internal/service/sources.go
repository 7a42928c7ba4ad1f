package service

import (
	"context"
	"strings"

	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/fetcher"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/store"
)

const defaultRefreshHour = 3

// SourceInput is the payload of add_xmltv_source.
type SourceInput struct {
	Name        string              `json:"name"`
	URL         string              `json:"url"`
	Format      models.SourceFormat `json:"format"`
	RefreshHour *int                `json:"refresh_hour,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
}

// SourcePatch is the payload of update_xmltv_source; nil fields are kept.
type SourcePatch struct {
	Name        *string              `json:"name,omitempty"`
	URL         *string              `json:"url,omitempty"`
	Format      *models.SourceFormat `json:"format,omitempty"`
	RefreshHour *int                 `json:"refresh_hour,omitempty"`
	IsActive    *bool                `json:"is_active,omitempty"`
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	return name, nil
}

func validateFormat(f models.SourceFormat) (models.SourceFormat, error) {
	if f == "" {
		return models.FormatAuto, nil
	}
	f = models.SourceFormat(strings.ToLower(string(f)))
	if !f.Valid() {
		return "", apperr.Validation("format must be xml, xml_gz or auto, got %q", f)
	}
	return f, nil
}

func validateHour(h int) error {
	if h < 0 || h > 23 {
		return apperr.Validation("refresh hour must be between 0 and 23")
	}
	return nil
}

// AddSource implements add_xmltv_source.
func (e *Engine) AddSource(ctx context.Context, in SourceInput) (*models.EpgSource, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	u, err := fetcher.ValidateURL(in.URL)
	if err != nil {
		return nil, err
	}
	format, err := validateFormat(in.Format)
	if err != nil {
		return nil, err
	}
	ns := store.NewSource{Name: name, URL: u.String(), Format: format, RefreshHour: defaultRefreshHour, IsActive: true}
	if in.RefreshHour != nil {
		if err := validateHour(*in.RefreshHour); err != nil {
			return nil, err
		}
		ns.RefreshHour = *in.RefreshHour
	}
	if in.IsActive != nil {
		ns.IsActive = *in.IsActive
	}

	src, err := e.store.CreateSource(ctx, ns)
	if err != nil {
		return nil, err
	}
	e.log.WithField("source_id", src.ID).WithField("name", src.Name).Info("epg source added")
	return src, nil
}

// Sources implements get_xmltv_sources.
func (e *Engine) Sources(ctx context.Context) ([]models.EpgSource, error) {
	return e.store.ListSources(ctx)
}

// Source returns one source.
func (e *Engine) Source(ctx context.Context, sourceID int64) (*models.EpgSource, error) {
	return e.store.GetSource(ctx, sourceID)
}

// UpdateSource implements update_xmltv_source.
func (e *Engine) UpdateSource(ctx context.Context, sourceID int64, p SourcePatch) (*models.EpgSource, error) {
	var upd store.SourceUpdate
	if p.Name != nil {
		name, err := validateName(*p.Name)
		if err != nil {
			return nil, err
		}
		upd.Name = &name
	}
	if p.URL != nil {
		u, err := fetcher.ValidateURL(*p.URL)
		if err != nil {
			return nil, err
		}
		s := u.String()
		upd.URL = &s
	}
	if p.Format != nil {
		f, err := validateFormat(*p.Format)
		if err != nil {
			return nil, err
		}
		upd.Format = &f
	}
	if p.RefreshHour != nil {
		if err := validateHour(*p.RefreshHour); err != nil {
			return nil, err
		}
		upd.RefreshHour = p.RefreshHour
	}
	upd.IsActive = p.IsActive
	return e.store.UpdateSource(ctx, sourceID, upd)
}

// ToggleSource implements toggle_xmltv_source.
func (e *Engine) ToggleSource(ctx context.Context, sourceID int64, active bool) (*models.EpgSource, error) {
	return e.store.UpdateSource(ctx, sourceID, store.SourceUpdate{IsActive: &active})
}

// DeleteSource implements delete_xmltv_source.
func (e *Engine) DeleteSource(ctx context.Context, sourceID int64) error {
	if err := e.store.DeleteSource(ctx, sourceID); err != nil {
		return err
	}
	e.log.WithField("source_id", sourceID).Info("epg source deleted")
	return nil
}

// Stats implements get_epg_stats.
func (e *Engine) Stats(ctx context.Context, sourceID int64) (*models.EpgStats, error) {
	return e.store.SourceStats(ctx, sourceID)
}
