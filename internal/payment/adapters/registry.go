package adapters

import (
	"strings"

	"github.com/smallbiznis/invoicecore/internal/config"
	"github.com/smallbiznis/invoicecore/internal/payment/domain"
)

// Registry resolves adapters by provider name. Adapters are built per call
// for the given merchant account and never cached.
type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[string]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.WebhookAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	factory, ok := r.factories[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cfg.Provider = provider
	return factory.NewAdapter(cfg)
}

// NewPaymentAdapter returns an adapter able to originate charges.
func (r *Registry) NewPaymentAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	adapter, err := r.NewAdapter(provider, cfg)
	if err != nil {
		return nil, err
	}
	payment, ok := adapter.(domain.PaymentAdapter)
	if !ok {
		return nil, domain.ErrChannelUnsupported
	}
	return payment, nil
}

// ConfigFrom builds the adapter config for the configured merchant account.
func ConfigFrom(cfg config.Config) domain.AdapterConfig {
	settings := map[string]any{}
	if cfg.PaymentWebhookSecret != "" {
		settings["webhook_secret"] = cfg.PaymentWebhookSecret
	}
	if cfg.PaymentBaseURL != "" {
		settings["base_url"] = cfg.PaymentBaseURL
	}
	return domain.AdapterConfig{
		Provider:        normalize(cfg.PaymentProvider),
		MerchantAccount: cfg.MerchantAccount,
		Config:          settings,
	}
}
