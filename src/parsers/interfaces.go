package parsers

import (
	"context"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers/common"
)

type (
	DetectInput = common.DetectInput
	ParseInput  = common.ParseInput
	ParseOutput = common.ParseOutput
)

// Adapter converts one broker's export into normalized fills.
// Parse must not panic; failing rows are reported in ParseOutput.Errors.
type Adapter interface {
	ID() string
	Label() string
	Detect(in DetectInput) (*models.DetectionResult, error)
	Parse(ctx context.Context, in ParseInput) ParseOutput
}
