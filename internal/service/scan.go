package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/guidevault/internal/apperr"
	"github.com/voyagen/guidevault/internal/catalog"
	"github.com/voyagen/guidevault/internal/metrics"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/xtream"
)

// ProviderAccounts implements get_provider_accounts. Passwords are not
// serialized.
func (e *Engine) ProviderAccounts() []models.ProviderAccount {
	return e.catalogs.Accounts()
}

// Account returns a configured provider account.
func (e *Engine) Account(accountID int64) (models.ProviderAccount, bool) {
	return e.catalogs.Account(accountID)
}

// ScanChannels implements scan_channels: it lists the account's live streams
// and reconciles them into the catalog. Concurrent scans of one account
// share a run.
func (e *Engine) ScanChannels(ctx context.Context, accountID int64) (models.ScanResult, error) {
	acct, ok := e.catalogs.Account(accountID)
	if !ok {
		return models.ScanResult{}, apperr.NotFound("account %d", accountID)
	}
	ch := e.scans.DoChan(strconv.FormatInt(accountID, 10), func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.refreshTimeout)
		defer cancel()
		return e.scan(runCtx, acct)
	})
	select {
	case <-ctx.Done():
		return models.ScanResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.ScanResult{}, res.Err
		}
		return res.Val.(models.ScanResult), nil
	}
}

func (e *Engine) scan(ctx context.Context, acct models.ProviderAccount) (result models.ScanResult, err error) {
	start := time.Now()
	log := e.log.WithFields(logrus.Fields{"account_id": acct.ID, "kind": acct.Kind})
	defer func() { metrics.ScansTotal.WithLabelValues(metrics.Result(err)).Inc() }()

	unlock, err := e.lock(ctx, log, "scan:"+strconv.FormatInt(acct.ID, 10))
	if err != nil {
		return result, apperr.Conflict("scan of account %d already running", acct.ID)
	}
	defer unlock()

	live, err := e.catalogs.LiveStreams(ctx, acct)
	if err != nil {
		log.WithError(err).Warn("catalog listing failed")
		return result, err
	}
	streams := make([]models.CatalogStream, 0, len(live))
	for _, ls := range live {
		streams = append(streams, catalogStream(acct.ID, ls))
	}

	result, err = e.store.ReconcileCatalog(ctx, acct.ID, streams)
	if err != nil {
		return result, err
	}
	result.ScanDurationMs = time.Since(start).Milliseconds()

	metrics.CatalogChanges.WithLabelValues("new").Add(float64(result.NewChannels))
	metrics.CatalogChanges.WithLabelValues("updated").Add(float64(result.UpdatedChannels))
	metrics.CatalogChanges.WithLabelValues("removed").Add(float64(result.RemovedChannels))
	log.WithFields(logrus.Fields{
		"total":       result.TotalChannels,
		"new":         result.NewChannels,
		"updated":     result.UpdatedChannels,
		"removed":     result.RemovedChannels,
		"duration_ms": result.ScanDurationMs,
	}).Info("catalog scanned")
	return result, nil
}

func catalogStream(accountID int64, ls xtream.LiveStream) models.CatalogStream {
	return models.CatalogStream{
		AccountID:    accountID,
		StreamID:     ls.StreamID,
		Name:         ls.Name,
		StreamIcon:   nonEmpty(ls.Icon),
		CategoryID:   nonEmpty(ls.CategoryID),
		CategoryName: nonEmpty(ls.CategoryName),
		Qualities:    catalog.DetectQualities(ls.Name),
	}
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
