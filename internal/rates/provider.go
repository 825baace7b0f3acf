package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrRateMissing is returned when a provider answered but had no usable rate
// for the pair.
var ErrRateMissing = errors.New("rate missing for pair")

// Provider is one exchange-rate source in the fallback chain.
type Provider interface {
	Name() string
	Rate(ctx context.Context, base, target string) (float64, error)
}

// HTTPProvider queries a JSON endpoint answering {"rates": {"CODE": rate}}.
type HTTPProvider struct {
	name    string
	client  *http.Client
	request func(base, target string) string
}

// NewHTTPProvider builds a provider; request returns the URL to GET for the pair.
func NewHTTPProvider(name string, client *http.Client, request func(base, target string) string) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{name: name, client: client, request: request}
}

// ExchangeRateAPI queries {baseURL}/v4/latest/{BASE}.
func ExchangeRateAPI(baseURL string, client *http.Client) *HTTPProvider {
	root := strings.TrimRight(baseURL, "/")
	return NewHTTPProvider("exchangerate-api", client, func(base, _ string) string {
		return root + "/v4/latest/" + url.PathEscape(base)
	})
}

// Frankfurter queries {baseURL}/latest?from=BASE&to=TARGET.
func Frankfurter(baseURL string, client *http.Client) *HTTPProvider {
	root := strings.TrimRight(baseURL, "/")
	return NewHTTPProvider("frankfurter", client, func(base, target string) string {
		q := url.Values{"from": {base}, "to": {target}}
		return root + "/latest?" + q.Encode()
	})
}

// ExchangeRateHost queries {baseURL}/latest?base=BASE&symbols=TARGET.
func ExchangeRateHost(baseURL string, client *http.Client) *HTTPProvider {
	root := strings.TrimRight(baseURL, "/")
	return NewHTTPProvider("exchangerate.host", client, func(base, target string) string {
		q := url.Values{"base": {base}, "symbols": {target}}
		return root + "/latest?" + q.Encode()
	})
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Rate(ctx context.Context, base, target string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.request(base, target), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("cannot http GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status)
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode %s response: %w", p.name, err)
	}
	rate, ok := payload.Rates[target]
	if !ok || rate <= 0 {
		return 0, ErrRateMissing
	}
	return rate, nil
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, base, target string) (float64, error)
}

func (f ProviderFunc) Name() string { return f.ProviderName }

func (f ProviderFunc) Rate(ctx context.Context, base, target string) (float64, error) {
	return f.Fn(ctx, base, target)
}
