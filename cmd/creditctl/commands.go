package main

import (
	"fmt"
	"time"

	"creditflow/internal/config"
	"creditflow/internal/database"
	"creditflow/internal/middleware"
	"creditflow/internal/repository"
	"creditflow/internal/seed"
	"creditflow/internal/service"

	"github.com/spf13/cobra"
)

// openStore loads configuration and opens the configured credit store. The memory store
// would vanish with the process, so it is refused.
var openStore = func() (*config.Config, repository.CreditRepository, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreDriver == config.StoreMemory {
		return nil, nil, fmt.Errorf("STORE_DRIVER=memory has nothing to operate on; use postgres, sqlite or bolt")
	}
	repo, err := database.OpenRepository(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, repo, nil
}

// loadConfig is replaced in tests.
var loadConfig = config.LoadConfig

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "creditctl",
		Short:         "Administer a Creditflow deployment",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newTokenCmd(), newSeedCmd(), newSweepCmd())
	return root
}

func newTokenCmd() *cobra.Command {
	var role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <actor>",
		Short: "Mint a bearer token for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := middleware.IssueToken(cfg.JWTSecret, args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", middleware.RoleCashier, "cashier or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime; 0 for no expiry")
	return cmd
}

func newSeedCmd() *cobra.Command {
	var random int
	var randSeed int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo requests, plus optional generated ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, repo, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			svc := newService(cfg, repo)
			seeder := seed.NewSeeder(svc, randSeed)
			ctx := cmd.Context()

			demo, err := seeder.Demo(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d demo requests\n", len(demo))

			if random > 0 {
				generated, err := seeder.Random(ctx, random)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d generated requests\n", len(generated))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&random, "random", 0, "number of generated pending requests to add")
	cmd.Flags().Int64Var(&randSeed, "rand-seed", 0, "seed for generated data; 0 is random")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict verification codes past the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, repo, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			n, err := newService(cfg, repo).EvictExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evicted %d expired codes\n", n)
			return nil
		},
	}
}

func newService(cfg *config.Config, repo repository.CreditRepository) *service.CreditService {
	return service.NewCreditService(repo, service.Config{
		CodeTTL:      cfg.CodeTTL(),
		BoundCodeTTL: cfg.BoundCodeTTL(),
		Retention:    cfg.CodeRetention(),
	})
}
