package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Strategy extracts the best table from an HTML document.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, html []byte, expected map[string]struct{}) (*Grid, error)
}

// ErrNoTable is returned by strategies that parsed the document but found no
// usable table.
var ErrNoTable = errors.New("no parseable table")

type firstSuccess struct {
	strategies []Strategy
}

// FirstSuccess tries each strategy in order and returns the first grid
// produced. If every strategy fails the returned error joins all failures.
func FirstSuccess(strategies ...Strategy) Strategy {
	return firstSuccess{strategies: strategies}
}

func (f firstSuccess) Name() string {
	names := make([]string, len(f.strategies))
	for i, s := range f.strategies {
		names[i] = s.Name()
	}
	return strings.Join(names, "|")
}

func (f firstSuccess) Extract(ctx context.Context, html []byte, expected map[string]struct{}) (*Grid, error) {
	if len(f.strategies) == 0 {
		return nil, fmt.Errorf("no extraction strategies configured")
	}
	var errs []error
	for _, s := range f.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err := s.Extract(ctx, html, expected)
		if err == nil {
			return g, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return nil, errors.Join(errs...)
}
