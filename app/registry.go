package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TChairman/AttestMe/attest"
	"github.com/TChairman/AttestMe/config"
	"github.com/TChairman/AttestMe/store"
)

// openRegistry builds a pebble-backed registry from the environment
// configuration. The returned closer releases the store.
func openRegistry() (*attest.Registry, func(), error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.Owner == "" {
		return nil, nil, errors.New("ATTESTME_OWNER must be set")
	}
	if cfg.StorePath == "" {
		return nil, nil, errors.New("ATTESTME_STORE_PATH must be set")
	}

	st, err := store.OpenPebble(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}

	tip, err := cfg.TipDecimal()
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	reg, err := attest.New(cfg.Domain(), cfg.OwnerAddress(),
		attest.WithStore(st),
		attest.WithTipAmount(tip),
		attest.WithLogger(zap.L()),
		attest.WithSinks(attest.NewZapSink(zap.L())),
	)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return reg, func() { _ = st.Close() }, nil
}

func resolveID(idHex, text string) (common.Hash, error) {
	switch {
	case idHex != "":
		return common.HexToHash(idHex), nil
	case text != "":
		return attest.ComputeAssertionID(text), nil
	default:
		return common.Hash{}, errors.New("one of --id or --text is required")
	}
}

func newAddCmd() *cobra.Command {
	var (
		text            string
		caller          string
		controller      string
		gateway         string
		requiresGateway bool
		freshness       time.Duration
		expiry          time.Duration
		value           string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new assertion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, closer, err := openRegistry()
			if err != nil {
				return err
			}
			defer closer()

			var attached *apd.Decimal
			if value != "" {
				attached, _, err = apd.NewFromString(value)
				if err != nil {
					return errors.Wrapf(err, "value %q is not a decimal", value)
				}
			}

			id, err := reg.AddAssertion(cmd.Context(), common.HexToAddress(caller), attest.AddAssertionParams{
				Text:            text,
				FreshnessWindow: freshness,
				ExpiryWindow:    expiry,
				RequiresGateway: requiresGateway,
				Gateway:         common.HexToAddress(gateway),
				Controller:      common.HexToAddress(controller),
				AttachedValue:   attached,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assertion_id: %s\n", id.Hex())
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "assertion text")
	cmd.Flags().StringVar(&caller, "caller", "", "address registering the assertion")
	cmd.Flags().StringVar(&controller, "controller", "", "assertion controller address")
	cmd.Flags().StringVar(&gateway, "gateway", "", "gateway address for gated assertions")
	cmd.Flags().BoolVar(&requiresGateway, "requires-gateway", false, "only the gateway may submit attestations")
	cmd.Flags().DurationVar(&freshness, "freshness", 24*time.Hour, "maximum signature age at attest time")
	cmd.Flags().DurationVar(&expiry, "expiry", 365*24*time.Hour, "age after which an attestation is stale")
	cmd.Flags().StringVar(&value, "value", "", "attached value (must cover the tip)")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newAttestCmd() *cobra.Command {
	var (
		idHex    string
		text     string
		caller   string
		subject  string
		signedAt int64
		sigHex   string
	)

	cmd := &cobra.Command{
		Use:   "attest",
		Short: "Submit a signed attestation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, closer, err := openRegistry()
			if err != nil {
				return err
			}
			defer closer()

			id, err := resolveID(idHex, text)
			if err != nil {
				return err
			}
			sig, err := hexutil.Decode(sigHex)
			if err != nil {
				return errors.Wrap(err, "decode signature hex")
			}

			return reg.Attest(cmd.Context(), common.HexToAddress(caller), id,
				common.HexToAddress(subject), signedAt, sig)
		},
	}

	cmd.Flags().StringVar(&idHex, "id", "", "assertion id (0x hex)")
	cmd.Flags().StringVar(&text, "text", "", "assertion text (alternative to --id)")
	cmd.Flags().StringVar(&caller, "caller", "", "submitting address (the gateway for gated assertions)")
	cmd.Flags().StringVar(&subject, "subject", "", "attesting subject address")
	cmd.Flags().Int64Var(&signedAt, "signed-at", 0, "timestamp the signature binds")
	cmd.Flags().StringVar(&sigHex, "sig", "", "65-byte signature (0x hex)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("sig")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	var (
		idHex    string
		text     string
		subject  string
		signedAt int64
		sigHex   string
	)

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Submit a signed revocation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, closer, err := openRegistry()
			if err != nil {
				return err
			}
			defer closer()

			id, err := resolveID(idHex, text)
			if err != nil {
				return err
			}
			sig, err := hexutil.Decode(sigHex)
			if err != nil {
				return errors.Wrap(err, "decode signature hex")
			}

			return reg.Revoke(cmd.Context(), id, common.HexToAddress(subject), signedAt, sig)
		},
	}

	cmd.Flags().StringVar(&idHex, "id", "", "assertion id (0x hex)")
	cmd.Flags().StringVar(&text, "text", "", "assertion text (alternative to --id)")
	cmd.Flags().StringVar(&subject, "subject", "", "revoking subject address")
	cmd.Flags().Int64Var(&signedAt, "signed-at", 0, "timestamp the revocation signature binds")
	cmd.Flags().StringVar(&sigHex, "sig", "", "65-byte signature over the revocation text (0x hex)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("sig")
	return cmd
}

func newShowCmd() *cobra.Command {
	var (
		idHex   string
		text    string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Inspect an assertion and, optionally, a subject's status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, closer, err := openRegistry()
			if err != nil {
				return err
			}
			defer closer()

			id, err := resolveID(idHex, text)
			if err != nil {
				return err
			}

			a, ok := reg.GetAssertion(id)
			if !ok {
				return errors.Errorf("assertion %s is not registered", id.Hex())
			}

			out := map[string]any{"assertion": a}
			if subject != "" {
				addr := common.HexToAddress(subject)
				out["subject"] = map[string]any{
					"address":     addr.Hex(),
					"is_attested": reg.IsAttested(id, addr),
					"is_expired":  reg.IsExpired(id, addr),
					"is_blocked":  reg.IsBlocked(addr),
				}
			}

			raw, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}

	cmd.Flags().StringVar(&idHex, "id", "", "assertion id (0x hex)")
	cmd.Flags().StringVar(&text, "text", "", "assertion text (alternative to --id)")
	cmd.Flags().StringVar(&subject, "subject", "", "subject address to query")
	return cmd
}

func newTipOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tipout",
		Short: "Forward the held tip balance to the collector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, closer, err := openRegistry()
			if err != nil {
				return err
			}
			defer closer()

			return reg.TipOut(cmd.Context())
		},
	}
}
