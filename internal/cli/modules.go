package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pedro17pedroo/SGST-sub001/internal/config"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/catalogue"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/store"
)

var (
	enabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	headerStyle   = lipgloss.NewStyle().Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type modulesOptions struct {
	*RootOptions
	CataloguePath string
}

// NewModulesCommand creates the modules command group.
func NewModulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &modulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Inspect the module catalogue",
	}
	cmd.PersistentFlags().StringVar(&opts.CataloguePath, "catalogue", "", "catalogue file (overrides catalogue.path)")

	cmd.AddCommand(newModulesListCommand(opts))
	cmd.AddCommand(newModulesValidateCommand(opts))
	cmd.AddCommand(newModulesExportCommand(opts))
	return cmd
}

func (o *modulesOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	if o.CataloguePath != "" {
		cfg.Catalogue.Path = o.CataloguePath
	}

	// Inspection commands read persisted state but never create a database.
	if cfg.Store.Backend == store.BackendSQLite {
		if _, err := os.Stat(cfg.Store.SQLitePath); errors.Is(err, fs.ErrNotExist) {
			cfg.Store.Backend = store.BackendMemory
		}
	}
	return cfg, nil
}

func newModulesListCommand(opts *modulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List modules with their persisted enabled state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			app, err := Boot(cmd.Context(), cfg, nil)
			if err != nil {
				return WrapExitError(ExitFailure, "boot failed", err)
			}
			defer app.Close(context.Background())

			return writeModules(cmd.OutOrStdout(), opts.Format, app.Engine.All())
		},
	}
}

func writeModules(w io.Writer, format string, modules []*catalogue.Descriptor) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(modules)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "STATE", "DEPENDS ON", "ROUTES").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})

	for _, d := range modules {
		state := disabledStyle.Render("disabled")
		if d.Enabled {
			state = enabledStyle.Render("enabled")
		}
		t.Row(d.ID, d.Name, state, strings.Join(d.Dependencies, ", "), strings.Join(d.Routes, " "))
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// ValidationResult is the JSON body of modules validate.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Modules int      `json:"modules"`
	Enabled int      `json:"enabled"`
	Errors  []string `json:"errors,omitempty"`
}

func newModulesValidateCommand(opts *modulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Run boot validation without serving",
		Long: `Check the catalogue for unknown ids, self and missing dependencies and
cycles, confirm every enabled module has an implementation, and report
modules whose persisted state leaves a dependency disabled.

Exits non-zero when anything is wrong.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			result := ValidationResult{Valid: true}
			app, err := Boot(cmd.Context(), cfg, nil)
			if err != nil {
				result.Valid = false
				result.Errors = strings.Split(err.Error(), "\n")
			} else {
				defer app.Close(context.Background())
				result.Modules = len(app.Engine.All())
				result.Enabled = len(app.Engine.EnabledModules())
				for _, id := range app.Broken {
					result.Valid = false
					result.Errors = append(result.Errors, fmt.Sprintf("module %s is enabled but missing dependencies: %s",
						id, strings.Join(app.Engine.MissingDependencies(id), ", ")))
				}
			}

			if err := writeValidation(cmd.OutOrStdout(), opts.Format, result); err != nil {
				return err
			}
			if !result.Valid {
				return &ExitError{Code: ExitFailure, Message: "validation failed"}
			}
			return nil
		},
	}
}

func writeValidation(w io.Writer, format string, r ValidationResult) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(r)
	}

	if r.Valid {
		_, err := fmt.Fprintf(w, "%s %d modules, %d enabled\n", enabledStyle.Render("ok"), r.Modules, r.Enabled)
		return err
	}
	for _, e := range r.Errors {
		if _, err := fmt.Fprintf(w, "%s %s\n", errorStyle.Render("error"), e); err != nil {
			return err
		}
	}
	return nil
}

func newModulesExportCommand(opts *modulesOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the catalogue with persisted enabled flags as YAML",
		Long: `Write the effective catalogue, with enabled flags restored from the
store, as a catalogue file that catalogue.path can point at.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			app, err := Boot(cmd.Context(), cfg, nil)
			if err != nil {
				return WrapExitError(ExitFailure, "boot failed", err)
			}
			defer app.Close(context.Background())

			all := app.Engine.All()
			descriptors := make([]catalogue.Descriptor, 0, len(all))
			for _, d := range all {
				descriptors = append(descriptors, *d)
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return WrapExitError(ExitFailure, "creating output", err)
				}
				defer f.Close()
				w = f
			}
			if err := catalogue.Encode(w, descriptors); err != nil {
				return WrapExitError(ExitFailure, "exporting catalogue", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
