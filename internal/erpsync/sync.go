// Package erpsync mirrors work orders from the upstream ERP into the local store.
package erpsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"mes-result-backend/config"
	"mes-result-backend/internal/store"
)

// WorkOrderWriter is the part of the store the sync writes to.
type WorkOrderWriter interface {
	UpsertWorkOrders(ctx context.Context, items []store.UpstreamWorkOrder) error
}

// Service periodically pulls work orders from the ERP.
type Service struct {
	cfg    *config.SyncConfig
	store  WorkOrderWriter
	client *http.Client
}

// NewService creates and initializes a new sync service.
func NewService(cfg *config.SyncConfig, store WorkOrderWriter) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			zap.S().Warnf("invalid proxy URL %q: %v; work order sync will not use a proxy", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:   cfg,
		store: store,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
}

// Run syncs once immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		zap.S().Info("work order sync is disabled")
		return
	}
	zap.S().Info("starting work order sync")

	if _, err := s.SyncOnce(ctx); err != nil {
		zap.S().Errorf("work order sync failed: %v", err)
	}

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.S().Info("work order sync shutting down")
			return
		case <-timer.C:
			if _, err := s.SyncOnce(ctx); err != nil {
				zap.S().Errorf("work order sync failed: %v", err)
			}
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SyncOnce fetches every page and upserts what was received. A fetch error
// after some pages still writes those pages.
func (s *Service) SyncOnce(ctx context.Context) (int, error) {
	var items []store.UpstreamWorkOrder
	total := 1
	pageSize := s.cfg.Request.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	var fetchErr error
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			fetchErr = fmt.Errorf("failed to fetch page %d: %w", page, err)
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		items = append(items, resp.Data.Items...)
		zap.S().Debugf("fetched work order page %d, %d of %d so far", page, len(items), total)
	}

	if fetchErr != nil && len(items) == 0 {
		return 0, fetchErr
	}

	valid := items[:0]
	for _, it := range items {
		if it.ID == "" || it.ProductID == "" {
			zap.S().Warnf("skipping upstream work order without id or product: %+v", it)
			continue
		}
		valid = append(valid, it)
	}

	if err := s.store.UpsertWorkOrders(ctx, valid); err != nil {
		return 0, fmt.Errorf("failed to upsert work orders: %w", err)
	}
	zap.S().Infof("work order sync finished: %d work orders", len(valid))
	return len(valid), fetchErr
}

func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}

	if apiResp.Code != 0 {
		return nil, fmt.Errorf("ERP returned application code %d: %s", apiResp.Code, apiResp.Message)
	}

	return &apiResp, nil
}
