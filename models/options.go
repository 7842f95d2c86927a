package models

import (
	"errors"
	"fmt"
)

var ErrInvalidOptions = errors.New("invalid parse options")

type Backend string

const (
	BackendPipeline   Backend = "pipeline"
	BackendVLM        Backend = "vlm-auto-engine"
	BackendHybrid     Backend = "hybrid-auto-engine"
	BackendVLMHTTP    Backend = "vlm-http-client"
	BackendHybridHTTP Backend = "hybrid-http-client"
)

func (b Backend) IsValid() bool {
	switch b {
	case BackendPipeline, BackendVLM, BackendHybrid, BackendVLMHTTP, BackendHybridHTTP:
		return true
	}
	return false
}

// MaxPagesCeiling is the hard upper bound on the max_pages option.
const MaxPagesCeiling = 1000

// ParseOptions are the per-request parse parameters. MaxPages is nil
// when the caller did not limit the page count.
type ParseOptions struct {
	Backend       Backend
	MaxPages      *int
	TableEnable   bool
	FormulaEnable bool
	Lang          string
	ParseMethod   string
}

// DefaultParseOptions mirrors the service defaults: hybrid backend,
// tables and formulas on, Chinese OCR, automatic method selection.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{
		Backend:       BackendHybrid,
		TableEnable:   true,
		FormulaEnable: true,
		Lang:          "ch",
		ParseMethod:   "auto",
	}
}

func (o *ParseOptions) Validate() error {
	if !o.Backend.IsValid() {
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidOptions, o.Backend)
	}
	if o.MaxPages != nil && (*o.MaxPages < 1 || *o.MaxPages > MaxPagesCeiling) {
		return fmt.Errorf("%w: max_pages must be between 1 and %d, got %d",
			ErrInvalidOptions, MaxPagesCeiling, *o.MaxPages)
	}
	switch o.ParseMethod {
	case "", "auto", "txt", "ocr":
	default:
		return fmt.Errorf("%w: unknown parse_method %q", ErrInvalidOptions, o.ParseMethod)
	}
	return nil
}
