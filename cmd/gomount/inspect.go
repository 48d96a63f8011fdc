package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/simp-lee/gomount/internal/config"
	"github.com/simp-lee/gomount/internal/modules"
)

// report is what inspect prints, in discovery order.
type report struct {
	Application string                      `json:"application"`
	Version     string                      `json:"version,omitempty"`
	Modules     []moduleLine                `json:"modules"`
	Routers     []modules.RouteDeclaration  `json:"routers"`
	API         []modules.RouteDeclaration  `json:"api"`
	Inits       []string                    `json:"inits"`
	Static      []modules.StaticDeclaration `json:"static"`
}

type moduleLine struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Requires []string `json:"requires,omitempty"`
}

func newInspectCmd() *cobra.Command {
	var (
		configPath string
		modulePath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "inspect [root]",
		Short: "Print the discovered modules and their declarations without serving",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) == 1 {
				root = args[0]
			} else {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				root = cfg.Mount.Root
				if modulePath == "" {
					modulePath = cfg.Mount.ModulePath
				}
			}
			if modulePath == "" {
				modulePath = root
			}

			log, err := config.SetupLogger(&config.LogConfig{Level: "warn", Format: "text"})
			if err != nil {
				return err
			}
			defer log.Close()

			reg, err := modules.New(root, modulePath, modules.WithLogger(log.Logger))
			if err != nil {
				return err
			}
			rep, err := inspect(reg)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			return rep.write(cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "configs/config.yaml", "configuration file used when no root is given")
	f.StringVar(&modulePath, "module-path", "", "directory module entries are resolved against (default: root)")
	f.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// inspect collects the registry declarations. Discovery errors such as
// missing dependencies are returned as is.
func inspect(reg *modules.Registry) (*report, error) {
	app, err := reg.Application()
	if err != nil {
		return nil, err
	}
	m, err := app.Manifest()
	if err != nil {
		return nil, err
	}
	set, err := reg.Modules()
	if err != nil {
		return nil, err
	}

	rep := &report{Application: m.Name, Version: m.Version}
	for _, f := range set.All() {
		fm, _ := f.Manifest()
		rep.Modules = append(rep.Modules, moduleLine{Name: f.Name(), Path: f.Path(), Requires: fm.Requires})
	}
	if rep.Routers, err = reg.Routers(); err != nil {
		return nil, err
	}
	if rep.API, err = reg.API(); err != nil {
		return nil, err
	}
	if rep.Inits, err = reg.Inits(); err != nil {
		return nil, err
	}
	if rep.Static, err = reg.StaticPaths(); err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *report) write(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "application\t%s\t%s\n", r.Application, r.Version)

	fmt.Fprintln(w, "\nmodules")
	for _, m := range r.Modules {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", m.Name, m.Path, strings.Join(m.Requires, ","))
	}

	for _, section := range []struct {
		title string
		decls []modules.RouteDeclaration
	}{{"routers", r.Routers}, {"api", r.API}} {
		fmt.Fprintf(w, "\n%s\n", section.title)
		for _, d := range section.decls {
			fmt.Fprintf(w, "  /%s\t%s\t%s\n", strings.Trim(d.Mount, "/"), d.Module, d.Target)
		}
	}

	fmt.Fprintln(w, "\ninits")
	for _, p := range r.Inits {
		fmt.Fprintf(w, "  %s\n", p)
	}

	fmt.Fprintln(w, "\nstatic")
	for _, s := range r.Static {
		fmt.Fprintf(w, "  /%s\t%s\t%s\n", strings.Trim(s.Mount, "/"), s.Module, s.Path)
	}

	return w.Flush()
}
