package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkt.systems/channeldeck/internal/appconfig"
	"pkt.systems/channeldeck/internal/persist"
	"pkt.systems/channeldeck/schema"
	"pkt.systems/pslog"
)

func newTabsCmd() *cobra.Command {
	var cfgPath string
	var clientID string
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "Show the saved tab layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			store, err := openLayouts(cfg, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			client, err := resolveClientID(clientID)
			if err != nil {
				return err
			}
			layout, ok, err := store.Load(client)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok || len(layout.Tabs) == 0 {
				_, err := fmt.Fprintf(out, "no saved tabs for %s\n", client)
				return err
			}
			for i, tab := range layout.Tabs {
				marker := " "
				if i == layout.Selected {
					marker = "*"
				}
				if _, err := fmt.Fprintf(out, "%s %d %s %s\n", marker, i, tab.ChannelID, tab.Title); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&clientID, "client", "", "client id (default: $USER)")
	return cmd
}

func openLayouts(cfg appconfig.Config, logger pslog.Logger) (*persist.Store, error) {
	return persist.NewStoreWithLogger(filepath.Join(cfg.StateDir, "layouts"), logger)
}

func resolveClientID(raw string) (schema.ClientID, error) {
	if raw == "" {
		raw = os.Getenv("USER")
	}
	if raw == "" {
		raw = "local"
	}
	id, err := schema.NormalizeClientID(schema.ClientID(raw))
	if err != nil {
		return "", fmt.Errorf("client id: %w", err)
	}
	return id, nil
}
