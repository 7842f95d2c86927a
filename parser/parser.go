package parser

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"docparser/models"
)

var ErrBackendUnavailable = errors.New("backend not available")

// Document is the raw input handed to a backend.
type Document struct {
	Filename string
	Data     []byte
}

// Backend converts a document into a ParseResult. Implementations must
// be safe for concurrent use.
type Backend interface {
	Name() models.Backend
	Parse(ctx context.Context, doc Document, opts models.ParseOptions) (*models.ParseResult, error)
}

// Selector holds the backends configured for this deployment.
type Selector struct {
	backends map[models.Backend]Backend
}

func NewSelector(backends ...Backend) *Selector {
	s := &Selector{backends: make(map[models.Backend]Backend, len(backends))}
	for _, b := range backends {
		s.backends[b.Name()] = b
	}
	return s
}

func (s *Selector) Get(name models.Backend) (Backend, error) {
	b, ok := s.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, name)
	}
	return b, nil
}

// Available lists configured backend names for /version.
func (s *Selector) Available() []string {
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
