package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-bridge/internal/domain"
	"github.com/spec-kit/ticket-bridge/internal/repository"
	"github.com/spec-kit/ticket-bridge/internal/service"
	"github.com/spec-kit/ticket-bridge/internal/syncstate"
)

// SeedFile is the YAML document accepted by `bridgectl seed`.
type SeedFile struct {
	Tenants []SeedTenant `yaml:"tenants"`
}

// SeedTenant is one tenant with its routing rules.
type SeedTenant struct {
	domain.TenantConfig `yaml:",inline"`
	Rules               []domain.RoutingRule `yaml:"rules,omitempty"`
}

// SeedResult reports what a seed run wrote.
type SeedResult struct {
	Tenants int `json:"tenants"`
	Rules   int `json:"rules"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or update tenants and routing rules from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := LoadSeedFile(file)
			if err != nil {
				return err
			}
			var result SeedResult
			err = rootOpts.withStore(cmd.Context(), func(store syncstate.Store) error {
				var applyErr error
				result, applyErr = applySeed(cmd, store, seed)
				return applyErr
			})
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d tenant(s), %d rule(s)\n", result.Tenants, result.Rules)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// LoadSeedFile reads and decodes a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i, t := range seed.Tenants {
		if t.TenantID == "" {
			return nil, fmt.Errorf("tenants[%d]: tenantId is required", i)
		}
	}
	return &seed, nil
}

func applySeed(cmd *cobra.Command, store syncstate.Store, seed *SeedFile) (SeedResult, error) {
	ctx := cmd.Context()
	tenants := service.NewTenantService(repository.NewTenantRepository(store))

	var result SeedResult
	for _, t := range seed.Tenants {
		cfg := t.TenantConfig
		if _, err := tenants.PutConfig(ctx, cfg.TenantID, &cfg); err != nil {
			return result, fmt.Errorf("tenant %s: %w", cfg.TenantID, err)
		}
		result.Tenants++
		for i := range t.Rules {
			rule := t.Rules[i]
			if _, err := tenants.SaveRule(ctx, cfg.TenantID, &rule); err != nil {
				return result, fmt.Errorf("tenant %s rule %d: %w", cfg.TenantID, i, err)
			}
			result.Rules++
		}
	}
	return result, nil
}
