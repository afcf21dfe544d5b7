package smartapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.InstrumentSource = (*InstrumentSource)(nil)

// DefaultInstrumentURL is the public scrip master published by the broker.
const DefaultInstrumentURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"

const instrumentTimeout = 60 * time.Second

// InstrumentSource downloads the scrip master. Responses are cached in
// memory and revalidated with ETags, so repeated fetches of an unchanged
// file cost a 304.
type InstrumentSource struct {
	url    string
	client *http.Client
}

// NewInstrumentSource creates a source backed by an in-memory HTTP cache.
func NewInstrumentSource(url string) *InstrumentSource {
	if url == "" {
		url = DefaultInstrumentURL
	}
	cached := httpcache.NewMemoryCacheTransport()
	return &InstrumentSource{
		url:    url,
		client: &http.Client{Transport: cached, Timeout: instrumentTimeout},
	}
}

// FetchInstruments returns every instrument in the scrip master.
func (s *InstrumentSource) FetchInstruments(ctx context.Context) ([]model.Instrument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build instrument request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailLen))
		return nil, fmt.Errorf("fetch instruments: HTTP %d: %s", resp.StatusCode, body)
	}

	// The cache stores the response only once the body is read to EOF.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}

	var instruments []model.Instrument
	if err := json.Unmarshal(body, &instruments); err != nil {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}

	slog.Debug("instrument master loaded",
		"count", len(instruments),
		"from_cache", resp.Header.Get(httpcache.XFromCache) == "1",
	)
	return instruments, nil
}
