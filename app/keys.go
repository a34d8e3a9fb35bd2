package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TChairman/AttestMe/attest"
	"github.com/TChairman/AttestMe/config"
	"github.com/TChairman/AttestMe/sigverify"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a fresh secp256k1 keypair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, err := sigverify.GenerateSigner()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address:     %s\n", signer.Address().Hex())
			fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\n", signer.ExportHex())
			return nil
		},
	}
}

func newSignCmd() *cobra.Command {
	var (
		keyHex   string
		text     string
		signedAt int64
		revoke   bool
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Produce an attestation (or revocation) signature offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			signer, err := sigverify.NewSignerFromHex(keyHex)
			if err != nil {
				return err
			}

			if signedAt == 0 {
				signedAt = time.Now().Unix()
			}
			message := text
			if revoke {
				message = attest.RevocationText(text)
			}

			sig, err := signer.SignMessage(cfg.Domain(), message, signedAt)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "signer:    %s\n", signer.Address().Hex())
			fmt.Fprintf(cmd.OutOrStdout(), "signed_at: %d\n", signedAt)
			fmt.Fprintf(cmd.OutOrStdout(), "signature: 0x%x\n", sig)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyHex, "key", "", "hex private key of the subject")
	cmd.Flags().StringVar(&text, "text", "", "assertion text")
	cmd.Flags().Int64Var(&signedAt, "signed-at", 0, "unix timestamp to bind (default: now)")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "sign the revocation message instead")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}
