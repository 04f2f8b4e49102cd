package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chatrecall/internal/settings"
	"chatrecall/internal/storage"
)

var (
	storeURI   string
	storeDB    string
	logsSearch string
	logsLimit  int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a log store is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		uri, db := storeTarget()
		if uri == "" {
			return fmt.Errorf("no log store: pass --uri or set MONGO_URI")
		}
		if err := newStore().Ping(cmd.Context(), uri, db); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", storage.RedactURI(uri))
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print logged exchanges, newest first, as JSON lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		uri, db := storeTarget()
		if uri == "" {
			return fmt.Errorf("no log store: pass --uri or set MONGO_URI")
		}
		recs, err := newStore().Search(cmd.Context(), uri, db, logsSearch, logsLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{pingCmd, logsCmd} {
		c.Flags().StringVar(&storeURI, "uri", "", "log store URI (default MONGO_URI)")
		c.Flags().StringVar(&storeDB, "db", "", "database name (default MONGO_DB, then chat_logs)")
	}
	logsCmd.Flags().StringVar(&logsSearch, "search", "", "case-insensitive substring to match")
	logsCmd.Flags().IntVar(&logsLimit, "limit", storage.DefaultLimit, "maximum records to print")
}

// storeTarget applies the same fallbacks a chat request would.
func storeTarget() (uri, db string) {
	raw := settings.Raw{"database": map[string]any{
		"mongoUri": strings.TrimSpace(storeURI),
		"mongoDb":  strings.TrimSpace(storeDB),
	}}
	eff := settings.Resolve(raw, cfg.EnvDefaults())
	return eff.DatabaseURI, eff.DatabaseName
}
