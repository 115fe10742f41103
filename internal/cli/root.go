package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/config"
	"github.com/spec-kit/ticket-bridge/internal/persistence"
	"github.com/spec-kit/ticket-bridge/internal/syncstate"
)

// RootOptions holds global flags and the hooks commands use to reach the store.
type RootOptions struct {
	Format string // "json" | "text"

	LoadConfig func() (*config.Config, error)
	OpenStore  func(ctx context.Context, cfg *config.Config) (syncstate.Store, func(), error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the bridgectl root command.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{
		LoadConfig: config.Load,
		OpenStore:  openConfiguredStore,
	})
}

// NewRootCommandWith builds the command tree on the given options.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridgectl",
		Short: "Administer the ticket bridge",
		Long:  "Seed tenants and routing rules, inspect rules and mint admin API tokens for the ticket bridge.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func openConfiguredStore(ctx context.Context, cfg *config.Config) (syncstate.Store, func(), error) {
	if cfg.Store.Backend == "memory" {
		return nil, nil, fmt.Errorf("STORE_BACKEND=memory is process-local; point bridgectl at redis or postgres")
	}
	conns, err := persistence.Connect(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return conns.Store, conns.Close, nil
}

// withStore loads config, opens the store and runs fn against it.
func (o *RootOptions) withStore(ctx context.Context, fn func(store syncstate.Store) error) error {
	cfg, err := o.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, closeFn, err := o.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(store)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
