package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"comfydeps/internal/app"
	"comfydeps/internal/config"
	"comfydeps/internal/logging"
	"comfydeps/internal/repository"
	"comfydeps/internal/services"
	"comfydeps/pkg/models"
)

type resolveFlags struct {
	configFile   string
	snapshotFile string
	noPullLatest bool
	includeNodes bool
	persist      bool
	verbose      bool
}

func newRootCmd() *cobra.Command {
	var f resolveFlags

	root := &cobra.Command{
		Use:   "comfydeps-resolve <workflow.json>",
		Short: "Print the dependency graph of a ComfyUI workflow",
		Long: "Resolves the model files, input files and custom-node packages a workflow " +
			"depends on and prints the dependency graph as JSON.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], f)
		},
	}

	root.PersistentFlags().StringVar(&f.configFile, "config", "", "path to config file")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")
	root.Flags().StringVar(&f.snapshotFile, "snapshot", "", "snapshot JSON pinning package revisions")
	root.Flags().BoolVar(&f.noPullLatest, "no-pull-latest", false, "never look up the latest commit of unpinned packages")
	root.Flags().BoolVar(&f.includeNodes, "include-nodes", false, "list the workflow nodes attributed to each package")
	root.Flags().BoolVar(&f.persist, "persist", false, "store the resolution in the database")

	root.AddCommand(newMigrateCmd(&f))
	return root
}

func newMigrateCmd(f *resolveFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the resolution tables in the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := setup(f)
			if err != nil {
				return err
			}
			pool, err := app.InitDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repository.NewPostgresResolutionStore(pool).Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			logger.Info("Database schema is up to date", "host", cfg.DB.Host, "name", cfg.DB.Name)
			return nil
		},
	}
}

func setup(f *resolveFlags) (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(f.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewLogger()
	level := cfg.LogLevel
	if f.verbose {
		level = "debug"
	}
	if err := logger.SetLevel(level); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runResolve(cmd *cobra.Command, workflowFile string, f resolveFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := os.ReadFile(workflowFile)
	if err != nil {
		return fmt.Errorf("failed to read workflow: %w", err)
	}
	snapshot, err := readSnapshot(f.snapshotFile)
	if err != nil {
		return err
	}

	cfg, logger, err := setup(&f)
	if err != nil {
		return err
	}
	if f.persist && !cfg.DB.Enable {
		return errors.New("--persist needs db.enable in the configuration")
	}
	// the JSON document owns stdout
	logger.SetOutput(cmd.ErrOrStderr())

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Service.Resolve(ctx, data, services.ResolveOptions{
		Snapshot:                snapshot,
		PullLatestHashIfMissing: cfg.Resolver.PullLatestHash && !f.noPullLatest,
		IncludeNodeList:         f.includeNodes || cfg.Resolver.IncludeNodeList,
		WorkflowName:            strings.TrimSuffix(filepath.Base(workflowFile), filepath.Ext(workflowFile)),
		CreatedBy:               os.Getenv("USER"),
		Persist:                 f.persist,
	})
	if err != nil {
		return err
	}
	if f.persist {
		logger.Info("Resolution stored", "id", res.ID)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res.Graph)
}

func readSnapshot(file string) (*models.Snapshot, error) {
	if file == "" {
		return nil, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snapshot, nil
}
