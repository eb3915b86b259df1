package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/mcpforge/internal/mapping"
	"github.com/lucasnoah/mcpforge/internal/provider"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Generate, inspect and provide mappings.zip files",
}

var mappingsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a mappings.zip from SRG or ProGuard mapping files",
	Long: `Build a mappings.zip from one mapping file, or from a client and a server
file whose entries are then marked with the side they appear in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srg, _ := cmd.Flags().GetString("srg")
		serverSRG, _ := cmd.Flags().GetString("server-srg")
		out, _ := cmd.Flags().GetString("output")

		var d *mapping.Detail
		var err error
		if serverSRG != "" {
			d, err = mapping.FromSrgPaths(srg, serverSRG)
		} else {
			d, err = mapping.FromSrgPath(srg)
		}
		if err != nil {
			return err
		}
		if err := mapping.Generate(out, d); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s entries to %s\n", humanize.Comma(int64(d.Len())), out)
		return nil
	},
}

// kindCounts breaks a mapping table down by side.
type kindCounts struct {
	Total  int `json:"total"`
	Client int `json:"client"`
	Server int `json:"server"`
	Both   int `json:"both"`
}

var mappingsInspectCmd = &cobra.Command{
	Use:   "inspect <mappings.zip>",
	Short: "Count the entries of a mappings.zip per table and side",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := mapping.FromZip(args[0])
		if err != nil {
			return err
		}

		counts := make(map[string]kindCounts)
		for _, k := range mapping.Kinds {
			var c kindCounts
			for _, n := range d.Table(k) {
				c.Total++
				switch n.Side() {
				case mapping.Client:
					c.Client++
				case mapping.Server:
					c.Server++
				default:
					c.Both++
				}
			}
			counts[k.String()] = c
		}

		w := cmd.OutOrStdout()
		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(counts, "", "  ")
			fmt.Fprintln(w, string(data))
			return nil
		}

		fmt.Fprintf(w, "%-8s %8s %8s %8s %8s\n", "TABLE", "TOTAL", "CLIENT", "SERVER", "BOTH")
		fmt.Fprintf(w, "%-8s %8s %8s %8s %8s\n",
			strings.Repeat("-", 8),
			strings.Repeat("-", 8),
			strings.Repeat("-", 8),
			strings.Repeat("-", 8),
			strings.Repeat("-", 8))
		for _, k := range mapping.Kinds {
			c := counts[k.String()]
			fmt.Fprintf(w, "%-8s %8d %8d %8d %8d\n", k, c.Total, c.Client, c.Server, c.Both)
		}
		return nil
	},
}

var mappingsProvideCmd = &cobra.Command{
	Use:   "provide <channel> <version>",
	Short: "Build or reuse the cached mappings.zip of a channel",
	Long: `Build the mappings.zip of a mapping channel (official, snapshot or stable)
below the cache directory, reusing it while its inputs are unchanged.
Missing input files are resolved from the configured repositories.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		log := cmdLogger(cmd)
		resolver := newResolver(s, newFetcher(s, log), log)
		cacheDir := filepath.Join(s.CacheDir, "mappings")

		reg := provider.NewRegistry()
		if err := reg.Register(&provider.Official{CacheDir: cacheDir, Resolver: resolver, Log: log}); err != nil {
			return err
		}
		if err := reg.Register(&provider.MCP{CacheDir: cacheDir, Resolver: resolver, Log: log}); err != nil {
			return err
		}

		req := provider.Request{Channel: args[0], Version: args[1]}
		req.SRG, _ = cmd.Flags().GetString("srg")
		req.ClientMappings, _ = cmd.Flags().GetString("client")
		req.ServerMappings, _ = cmd.Flags().GetString("server")

		res, err := reg.Mappings(cmd.Context(), req)
		if err != nil {
			return err
		}
		state := "generated"
		if res.Cached {
			state = "cached"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s entries)\n", res.Path, state, humanize.Comma(int64(res.Detail.Len())))
		return nil
	},
}

func init() {
	mappingsGenerateCmd.Flags().String("srg", "", "mapping file (SRG, TSRG or ProGuard)")
	mappingsGenerateCmd.Flags().String("server-srg", "", "server mapping file; --srg is then the client one")
	mappingsGenerateCmd.Flags().StringP("output", "o", "mappings.zip", "output zip")
	_ = mappingsGenerateCmd.MarkFlagRequired("srg")

	mappingsInspectCmd.Flags().String("format", "text", "Output format: text or json")

	mappingsProvideCmd.Flags().String("srg", "", "obf to srg mapping file (default: from the MCP config)")
	mappingsProvideCmd.Flags().String("client", "", "client official mappings (default: resolved)")
	mappingsProvideCmd.Flags().String("server", "", "server official mappings (default: resolved)")

	mappingsCmd.AddCommand(mappingsGenerateCmd)
	mappingsCmd.AddCommand(mappingsInspectCmd)
	mappingsCmd.AddCommand(mappingsProvideCmd)
}
