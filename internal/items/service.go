package items

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/odyssey-erp/logistics/internal/platform/cache"
)

// LookupCache memoises barcode answers.
type LookupCache interface {
	Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

type Service struct {
	repo  Repository
	cache LookupCache
}

func NewService(repo Repository, lookups LookupCache) *Service {
	return &Service{repo: repo, cache: lookups}
}

// LookupByBarcode returns the item carrying barcode, or nil when none does.
// The scanned value is tried as is before its GTIN-14 forms.
func (s *Service) LookupByBarcode(ctx context.Context, barcode string) (*Item, error) {
	code := strings.TrimSpace(barcode)
	if code == "" {
		return nil, nil
	}
	load := func(ctx context.Context) (any, error) {
		return s.repo.FindByBarcodes(ctx, Candidates(code))
	}
	if s.cache == nil {
		item, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return item.(*Item), nil
	}
	// Misses are not cached so a barcode added later is found at once.
	cached := func(ctx context.Context) (any, error) {
		item, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if item.(*Item) == nil {
			return nil, errNoItem
		}
		return item, nil
	}
	var item *Item
	if err := s.cache.Fetch(ctx, cache.Key("barcode", code), &item, cached); err != nil {
		if errors.Is(err, errNoItem) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

var errNoItem = errors.New("items: no item for barcode")

// Candidates lists the barcodes to try for a scanned code: the code itself,
// then for GTIN-8/12/13/14 values the zero-padded GTIN-14 and the shorter
// forms it reduces to.
func Candidates(code string) []string {
	out := []string{code}
	if !isGTIN(code) {
		return out
	}
	gtin14 := strings.Repeat("0", 14-len(code)) + code
	seen := map[string]bool{code: true}
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	add(gtin14)
	for _, n := range []int{13, 12, 8} {
		if strings.Count(gtin14[:14-n], "0") == 14-n {
			add(gtin14[14-n:])
		}
	}
	return out
}

func isGTIN(code string) bool {
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
