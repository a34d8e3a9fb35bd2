// Package config loads registry configuration from the environment or
// from generic string maps.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/TChairman/AttestMe/sigverify"
)

// Config is the raw registry configuration. Addresses and amounts are kept
// as strings until Validate parses them.
type Config struct {
	// ChainID and RegistryAddress scope the signing domain: signatures
	// for one registry instance are invalid for every other.
	ChainID         int64  `env:"ATTESTME_CHAIN_ID" envDefault:"1" mapstructure:"chain_id"`
	RegistryAddress string `env:"ATTESTME_REGISTRY_ADDRESS" mapstructure:"registry_address"`

	Owner     string `env:"ATTESTME_OWNER" mapstructure:"owner"`
	TipAmount string `env:"ATTESTME_TIP_AMOUNT" envDefault:"0" mapstructure:"tip_amount"`
	StorePath string `env:"ATTESTME_STORE_PATH" mapstructure:"store_path"`
	LogLevel  string `env:"ATTESTME_LOG_LEVEL" envDefault:"info" mapstructure:"log_level"`
}

// FromEnv loads configuration from ATTESTME_* environment variables.
func FromEnv() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, errors.Wrap(err, "parse environment configuration")
	}
	return &cfg, nil
}

// FromMap loads configuration from a generic string map, the shape host
// processes hand extensions.
func FromMap(values map[string]string) (*Config, error) {
	cfg := Config{ChainID: 1, TipAmount: "0", LogLevel: "info"}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build config decoder")
	}
	if err := dec.Decode(values); err != nil {
		return nil, errors.Wrap(err, "decode config map")
	}
	return &cfg, nil
}

// Validate checks address and amount syntax.
func (c *Config) Validate() error {
	if c.RegistryAddress != "" && !common.IsHexAddress(c.RegistryAddress) {
		return errors.Errorf("registry_address %q is not a hex address", c.RegistryAddress)
	}
	if c.Owner != "" && !common.IsHexAddress(c.Owner) {
		return errors.Errorf("owner %q is not a hex address", c.Owner)
	}
	if _, err := c.TipDecimal(); err != nil {
		return err
	}
	return nil
}

// Domain builds the signing domain for this registry instance.
func (c *Config) Domain() sigverify.Domain {
	return sigverify.NewDomain(c.ChainID, common.HexToAddress(c.RegistryAddress))
}

// OwnerAddress parses the configured owner.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Owner)
}

// TipDecimal parses the configured tip amount.
func (c *Config) TipDecimal() (*apd.Decimal, error) {
	if c.TipAmount == "" {
		return apd.New(0, 0), nil
	}
	amount, _, err := apd.NewFromString(c.TipAmount)
	if err != nil {
		return nil, errors.Wrapf(err, "tip_amount %q is not a decimal", c.TipAmount)
	}
	return amount, nil
}
