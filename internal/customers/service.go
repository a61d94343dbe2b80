package customers

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/logistics/internal/platform/httpx"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NormalizeName upper-cases a customer name with French casing rules.
func NormalizeName(name string) string {
	return cases.Upper(language.French).String(strings.TrimSpace(name))
}

// BeforeSave applies the save-time normalisation to c.
func BeforeSave(c *Customer) {
	if c.CustomerName != "" {
		c.CustomerName = NormalizeName(c.CustomerName)
	}
}

func (s *Service) Get(ctx context.Context, name string) (*Customer, error) {
	return s.repo.Get(ctx, name)
}

// Save creates or replaces the customer identified by name.
func (s *Service) Save(ctx context.Context, name string, req SaveCustomerRequest) (*Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, httpx.Invalid("customer name is required")
	}
	customer := Customer{
		Name:         name,
		CustomerName: req.CustomerName,
		Email:        req.Email,
		Phone:        req.Phone,
		Territory:    req.Territory,
	}
	BeforeSave(&customer)
	if customer.CustomerName == "" {
		return nil, httpx.Invalid("customer_name is required")
	}
	if err := s.repo.Upsert(ctx, &customer); err != nil {
		return nil, fmt.Errorf("save customer: %w", err)
	}
	return &customer, nil
}

// Contacts lists the contacts linked to customer.
func (s *Service) Contacts(ctx context.Context, customer string) ([]Contact, error) {
	return s.repo.Contacts(ctx, customer)
}
