package cmd

import (
	"strings"

	"adtoken/internal/app"
	"adtoken/internal/config"
	pkgstrings "adtoken/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// newContextsCmd lists the configured applications.
func newContextsCmd(g *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "contexts",
		Aliases: []string{"ctx"},
		Short:   "List configured applications",
		Long: `List the applications (contexts) defined in the config file.

The first one is used when --client-id is not given. Client secrets are
never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := ValidateOutputFormat(output); err != nil {
				return err
			}

			a, err := app.NewApplication(app.NewConfig(g.debug, g.quiet, g.configPath))
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := a.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
			}()

			contexts := redactSecrets(a.Settings().Contexts)
			format := OutputFormat(output)
			if format != OutputFormatTable {
				return writeStructured(cmd.OutOrStdout(), format, contexts)
			}

			if len(contexts) == 0 {
				cmd.Println(text.FgYellow.Sprint("No contexts configured"))
				return nil
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{
				text.FgHiCyan.Sprint("CLIENT ID"),
				text.FgHiCyan.Sprint("TENANT"),
				text.FgHiCyan.Sprint("REDIRECT URI"),
				text.FgHiCyan.Sprint("RESOURCES"),
			})
			for _, c := range contexts {
				t.AppendRow(table.Row{c.ClientID, c.TenantOrDefault(), c.RedirectURI, joinResources(c.ResourceList())})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", string(OutputFormatTable), "output format: table, json, yaml")
	return cmd
}

func redactSecrets(contexts []config.Context) []config.Context {
	out := make([]config.Context, len(contexts))
	for i, c := range contexts {
		out[i] = c.Clone()
		if out[i].ClientSecret != "" {
			out[i].ClientSecret = "<redacted>"
		}
	}
	return out
}

func joinResources(resources []string) string {
	out := make([]string, len(resources))
	for i, r := range resources {
		out[i] = pkgstrings.TruncateMiddle(r, pkgstrings.DefaultColumnMaxLen)
	}
	return strings.Join(out, "\n")
}
