package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/teepool/internal/clock"
	"github.com/R3E-Network/teepool/internal/config"
	"github.com/R3E-Network/teepool/tee/attestation"
)

type options struct {
	configPath string
	envFile    string
}

func (o *options) load() (*config.Config, error) {
	if o.envFile != "" {
		if err := config.LoadEnvFile(o.envFile); err != nil {
			return nil, err
		}
	}
	return config.Load(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "poolctl",
		Short:        "TEE operator pool engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML or TOML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env", "", "Optional .env file with TEEPOOL_* overrides")

	root.AddCommand(
		newDemoCmd(opts),
		newSweepCmd(opts),
		newConfigCmd(opts),
		newOperatorCmd(opts),
	)
	return root
}

func newDemoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Register three operators and drive two pools through the protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			clk := clock.NewManual(uint64(time.Now().Unix()))
			a, err := newApp(cfg, clk, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			return runDemo(cmd.Context(), a, clk, cmd.OutOrStdout())
		},
	}
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Crash expired pools on the configured schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if !cfg.Sweeper.Enabled {
				return fmt.Errorf("sweeper is disabled in configuration")
			}

			a, err := newApp(cfg, clock.System{}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.sweeper.Start(ctx); err != nil {
				return err
			}
			a.log.WithField("schedule", cfg.Sweeper.Schedule).Info("sweeper running")

			<-ctx.Done()
			a.log.Info("shutting down")
			return nil
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.TEE.MasterSeed != "" {
				cfg.TEE.MasterSeed = "<redacted>"
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

func newOperatorCmd(opts *options) *cobra.Command {
	operator := &cobra.Command{
		Use:   "operator",
		Short: "Operator identity tools",
	}

	operator.AddCommand(&cobra.Command{
		Use:   "derive [path]",
		Short: "Derive an operator identity, attest it and check it against the allowlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, clock.System{}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			id, err := a.signer.DeriveOperator(ctx, args[0])
			if err != nil {
				return err
			}
			quote, err := attestation.GenerateQuote(a.measurement, id.SignatureAddress, id.EncryptionKey)
			if err != nil {
				return err
			}
			epoch, err := a.registry.Register(ctx, id.Address, id.SignatureAddress, id.EncryptionKey, quote.RawQuote)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address:           %s\n", id.Address)
			fmt.Fprintf(out, "signature address: %s\n", id.SignatureAddress)
			fmt.Fprintf(out, "encryption key:    %s\n", hex.EncodeToString(id.EncryptionKey))
			fmt.Fprintf(out, "mr_enclave:        %s\n", quote.MREnclave)
			fmt.Fprintf(out, "quote:             %s\n", hex.EncodeToString(quote.RawQuote))
			fmt.Fprintf(out, "registry epoch:    %s\n", epoch)
			return nil
		},
	})
	return operator
}
