// Package currency talks to the external exchange-rate provider. The provider
// is an unreliable collaborator: callers treat a failed conversion as
// non-fatal per item and fall back to the value they already have.
package currency

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Conversion is the provider's answer for one amount.
type Conversion struct {
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
}

type Provider interface {
	Convert(amount decimal.Decimal, fromCurrency, toCurrency string) (*Conversion, error)
}

// ProviderError wraps a failed provider call so callers can record it
// per item without aborting the surrounding batch.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("currency provider unavailable: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

type httpProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider returns a Provider backed by an exchange-rate HTTP API
// exposing GET /convert?from=X&to=Y&amount=N.
func NewHTTPProvider(baseURL string, timeout time.Duration) Provider {
	return &httpProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *httpProvider) Convert(amount decimal.Decimal, fromCurrency, toCurrency string) (*Conversion, error) {
	if fromCurrency == toCurrency {
		return &Conversion{
			ConvertedAmount: amount,
			ExchangeRate:    decimal.NewFromInt(1),
		}, nil
	}

	reqURL := fmt.Sprintf("%s/convert?from=%s&to=%s&amount=%s",
		p.baseURL,
		url.QueryEscape(fromCurrency),
		url.QueryEscape(toCurrency),
		amount.String(),
	)

	resp, err := p.client.Get(reqURL)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var body struct {
		Success bool `json:"success"`
		Info    struct {
			Rate decimal.Decimal `json:"rate"`
		} `json:"info"`
		Result decimal.Decimal `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("malformed response: %w", err)}
	}
	if !body.Success {
		return nil, &ProviderError{Err: fmt.Errorf("provider reported failure for %s->%s", fromCurrency, toCurrency)}
	}

	return &Conversion{
		ConvertedAmount: body.Result,
		ExchangeRate:    body.Info.Rate,
	}, nil
}
