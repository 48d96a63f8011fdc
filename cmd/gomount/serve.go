package main

import (
	"github.com/spf13/cobra"

	"github.com/simp-lee/gomount/internal/app"
	"github.com/simp-lee/gomount/internal/config"
)

// serveFlags are the flags that override configuration keys.
var serveFlags = map[string]string{
	"root":        "mount.root",
	"module-path": "mount.module_path",
	"auto-mount":  "mount.auto_mount",
	"host":        "server.host",
	"port":        "server.port",
	"mode":        "server.mode",
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Mount the modules and start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			return a.Run()
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to configuration file")
	f.String("root", "", "directory holding the root mount.json (overrides mount.root)")
	f.String("module-path", "", "directory module entries are resolved against (overrides mount.module_path)")
	f.Bool("auto-mount", false, "boot the modules before the server is created (overrides mount.auto_mount)")
	f.String("host", "", "listen host (overrides server.host)")
	f.Int("port", 0, "listen port (overrides server.port)")
	f.String("mode", "", "gin mode: debug, release or test (overrides server.mode)")
	return cmd
}

// loadConfig loads the configuration file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	overrides := make(map[string]any)
	for flag, key := range serveFlags {
		fl := cmd.Flags().Lookup(flag)
		if fl == nil || !fl.Changed {
			continue
		}
		var (
			v   any
			err error
		)
		switch fl.Value.Type() {
		case "int":
			v, err = cmd.Flags().GetInt(flag)
		case "bool":
			v, err = cmd.Flags().GetBool(flag)
		default:
			v = fl.Value.String()
		}
		if err != nil {
			return nil, err
		}
		overrides[key] = v
	}
	return config.LoadWithOverrides(path, overrides)
}
