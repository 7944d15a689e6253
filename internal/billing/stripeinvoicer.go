package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeInvoicer implements InvoiceItemCreator against the live Stripe API.
// Construction follows the client-wrapping style of rcourtman-Pulse's
// internal/cloudcp/stripe package: a thin struct holding an API key and
// the Stripe SDK's own client.
type StripeInvoicer struct {
	api *client.API
}

// NewStripeInvoicer builds a StripeInvoicer bound to apiKey.
func NewStripeInvoicer(apiKey string) *StripeInvoicer {
	return &StripeInvoicer{api: client.New(apiKey, nil)}
}

// CreateOverageInvoiceItem creates a pending Stripe invoice item for a
// workspace's click overage, attributed to that workspace's Stripe
// customer (workspaceID doubles as the customer reference in this
// deployment's Stripe account).
func (s *StripeInvoicer) CreateOverageInvoiceItem(ctx context.Context, workspaceID string, amountCents int64, description string) (string, error) {
	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(workspaceID),
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(description),
	}
	params.Context = ctx

	item, err := s.api.InvoiceItems.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe invoice item: %w", err)
	}
	return item.ID, nil
}
