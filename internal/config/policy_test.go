package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicyFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoicing.yml")
	content := []byte(`policy:
  allowedDepositPercents: [15, 40]
  minCardChargeCents: 100
  defaultCurrency: eur
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := LoadPolicyFile(path)
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, []int{15, 40}, policy.AllowedDepositPercents)
	assert.Equal(t, int64(100), policy.MinCardChargeCents)
	assert.Equal(t, int64(50), policy.MinTerminalChargeCents)
	assert.Equal(t, "EUR", policy.DefaultCurrency)
	assert.Equal(t, "INV-{SEQ5}", policy.InvoiceNumberTemplate)
	assert.True(t, policy.AllowsDeposit(40))
	assert.False(t, policy.AllowsDeposit(25))
}

func TestLoadPolicyFileRejectsInvalidPercents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoicing.yml")
	content := []byte(`policy:
  allowedDepositPercents: [20, 20]
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := LoadPolicyFile(path)
	assert.Error(t, err)
}

func TestStaticPolicyHolder(t *testing.T) {
	holder, err := NewStaticPolicyHolder(DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, holder.Get().AllowsDeposit(25))

	var nilHolder *PolicyHolder
	assert.Equal(t, DefaultPolicy(), nilHolder.Get())

	bad := DefaultPolicy()
	bad.AllowedDepositPercents = []int{0}
	_, err = NewStaticPolicyHolder(bad)
	assert.Error(t, err)
}
