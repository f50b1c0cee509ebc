// Command flagstore serves a flag store data store over REST and administers it from the
// command line.
package main

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sharedcode/flagstore"
	"github.com/sharedcode/flagstore/encoding"
	"github.com/sharedcode/flagstore/restapi"
)

// @title flagstore REST API
// @version 1.0
// @description Inspect and administer the flags and segments kept in a flagstore data store.
// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	flagstore.ConfigureLogging()
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// Use this cmd to generate Swagger docs: ~/go/bin/swag init -g restapi/main/main.go -o restapi/docs --parseDependency

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "flagstore",
		Short:        "Serve and administer a feature flag data store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("FLAGSTORE_CONFIG"), "path of the JSON configuration file")

	openStore := func() (restapi.Config, flagstore.DataStore, error) {
		cfg, err := restapi.LoadConfig(configPath)
		if err != nil {
			return cfg, nil, err
		}
		store, err := restapi.OpenDataStore(cfg)
		return cfg, store, err
	}

	root.AddCommand(newServeCommand(openStore), newLoadCommand(openStore), newStatusCommand(openStore))
	return root
}

type storeOpener func() (restapi.Config, flagstore.DataStore, error)

func newServeCommand(openStore storeOpener) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the data store REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if listen == "" {
				listen = cfg.Listen
			}
			router, err := restapi.NewRouter(store, restapi.AuthSettingsFromEnv())
			if err != nil {
				return err
			}
			log.Info("Serving flagstore REST API", "listen", listen, "backend", cfg.Backend)
			return router.Run(listen)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "address to listen on, overrides the configuration file")
	return cmd
}

func newLoadCommand(openStore storeOpener) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "load <dataset.json>",
		Short: "Replace the content of the data store with a JSON data set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ba, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var body map[string]map[string]flagstore.Item
			if err := encoding.DefaultMarshaler.Unmarshal(ba, &body); err != nil {
				return fmt.Errorf("can't parse data set %s: %w", args[0], err)
			}
			dataset, err := restapi.ToDataset(body)
			if err != nil {
				return err
			}
			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := store.Init(ctx, dataset); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d items\n", dataset.Count())
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "time limit of the load")
	return cmd
}

func newStatusCommand(openStore storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print whether the data store is reachable and initialized",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if !store.IsAvailable(ctx) {
				return fmt.Errorf("data store is not available")
			}
			ok, err := store.IsInitialized(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "available: true\ninitialized: %v\n", ok)
			return nil
		},
	}
}
