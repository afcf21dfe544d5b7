package driven

import (
	"context"

	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

// InstrumentSource provides the broker's public scrip master.
type InstrumentSource interface {
	FetchInstruments(ctx context.Context) ([]model.Instrument, error)
}
