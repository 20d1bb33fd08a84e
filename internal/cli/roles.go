// roles.go implements "genstory roles" and "genstory genres".
package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhs007/genstory/internal/config"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List the team members and their models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printRoles(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "List the supported genres",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printGenres(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func printRoles(w io.Writer, cfg *config.Config) {
	ids := make([]string, 0, len(cfg.Roles))
	for id := range cfg.Roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	genre := cfg.Story.DefaultGenre
	for _, id := range ids {
		rc := cfg.Roles[id]
		state := "enabled"
		if !rc.Enabled {
			state = "disabled"
		}
		m := cfg.ModelParams(id, genre)
		fmt.Fprintf(w, "  %-20s %-8s %-9s %s (temperature %.2f)\n", id, rc.Name, state, m.ModelName, m.Temperature)
	}
}

func printGenres(w io.Writer, cfg *config.Config) {
	for _, g := range cfg.Story.SupportedGenres {
		marker := " "
		if g == cfg.Story.DefaultGenre {
			marker = "*"
		}
		desc := ""
		if gc, ok := cfg.Genres[g]; ok {
			desc = gc.Description
			if len(gc.Keywords) > 0 {
				desc += " [" + strings.Join(gc.Keywords, ", ") + "]"
			}
		}
		fmt.Fprintf(w, "%s %-14s %s\n", marker, g, desc)
	}
}
