package config

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/invoicecore/internal/invoice/format"
	"github.com/spf13/viper"
)

// Policy holds the invoicing rules that operators may tune without a redeploy.
type Policy struct {
	AllowedDepositPercents []int
	MinCardChargeCents     int64
	MinTerminalChargeCents int64
	InvoiceNumberTemplate  string
	DefaultCurrency        string
	DefaultDueDays         int
}

func DefaultPolicy() Policy {
	return Policy{
		AllowedDepositPercents: []int{10, 20, 25, 30, 50},
		MinCardChargeCents:     50,
		MinTerminalChargeCents: 50,
		InvoiceNumberTemplate:  "INV-{SEQ5}",
		DefaultCurrency:        "USD",
		DefaultDueDays:         30,
	}
}

// AllowsDeposit reports whether percent is one of the configured deposit options.
func (p Policy) AllowsDeposit(percent int) bool {
	return slices.Contains(p.AllowedDepositPercents, percent)
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder wraps a fixed policy; it never reloads.
func NewStaticPolicyHolder(p Policy) (*PolicyHolder, error) {
	if err := validatePolicy(p); err != nil {
		return nil, err
	}
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder, nil
}

// NewPolicyHolder reads invoicing.yml from the usual config paths and watches it for changes.
func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("invoicing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/invoicecore")
	v.AddConfigPath(".")

	return loadPolicy(v, true)
}

// LoadPolicyFile reads the policy from an explicit file without watching it.
func LoadPolicyFile(path string) (*PolicyHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return loadPolicy(v, false)
}

func loadPolicy(v *viper.Viper, watch bool) (*PolicyHolder, error) {
	v.SetEnvPrefix("INVOICECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.allowedDepositPercents", defaults.AllowedDepositPercents)
	v.SetDefault("policy.minCardChargeCents", defaults.MinCardChargeCents)
	v.SetDefault("policy.minTerminalChargeCents", defaults.MinTerminalChargeCents)
	v.SetDefault("policy.invoiceNumberTemplate", defaults.InvoiceNumberTemplate)
	v.SetDefault("policy.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("policy.defaultDueDays", defaults.DefaultDueDays)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	if watch && fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePolicy(v)
			if err != nil {
				log.Printf("[invoicing-policy] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[invoicing-policy] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func decodePolicy(v *viper.Viper) (Policy, error) {
	cfg := Policy{
		AllowedDepositPercents: v.GetIntSlice("policy.allowedDepositPercents"),
		MinCardChargeCents:     v.GetInt64("policy.minCardChargeCents"),
		MinTerminalChargeCents: v.GetInt64("policy.minTerminalChargeCents"),
		InvoiceNumberTemplate:  strings.TrimSpace(v.GetString("policy.invoiceNumberTemplate")),
		DefaultCurrency:        strings.ToUpper(strings.TrimSpace(v.GetString("policy.defaultCurrency"))),
		DefaultDueDays:         v.GetInt("policy.defaultDueDays"),
	}
	if err := validatePolicy(cfg); err != nil {
		return Policy{}, err
	}
	return cfg, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	return h.current.Load().(Policy)
}

func validatePolicy(cfg Policy) error {
	if len(cfg.AllowedDepositPercents) == 0 {
		return errors.New("policy.allowedDepositPercents cannot be empty")
	}
	seen := map[int]struct{}{}
	for _, percent := range cfg.AllowedDepositPercents {
		if percent <= 0 || percent > 100 {
			return fmt.Errorf("policy.allowedDepositPercents: %d is outside 1..100", percent)
		}
		if _, ok := seen[percent]; ok {
			return fmt.Errorf("policy.allowedDepositPercents: duplicate %d", percent)
		}
		seen[percent] = struct{}{}
	}
	if cfg.MinCardChargeCents < 0 || cfg.MinTerminalChargeCents < 0 {
		return errors.New("policy minimum charge cannot be negative")
	}
	if strings.TrimSpace(cfg.InvoiceNumberTemplate) == "" {
		return errors.New("policy.invoiceNumberTemplate cannot be empty")
	}
	if err := format.ValidateTemplate(cfg.InvoiceNumberTemplate); err != nil {
		return fmt.Errorf("policy.invoiceNumberTemplate: %w", err)
	}
	if len(cfg.DefaultCurrency) != 3 {
		return fmt.Errorf("policy.defaultCurrency %q must be an ISO 4217 code", cfg.DefaultCurrency)
	}
	if cfg.DefaultDueDays < 0 {
		return errors.New("policy.defaultDueDays cannot be negative")
	}
	return nil
}
