package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/cryguy/fastboot"
	"github.com/cryguy/fastboot/internal/assemble"
)

func newRenderCmd() *cobra.Command {
	var (
		name    string
		dir     string
		origin  string
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "render URL",
		Short: "Render one route and print the page",
		Long:  "render boots the application once, visits URL (a path with optional query) and prints the assembled page, or the captured snapshot with --json.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultConfig()
			cfg.Name, cfg.Dir, cfg.Origin = name, dir, origin
			if err := cfg.validate(); err != nil {
				return err
			}
			app, err := loadApp(cfg)
			if err != nil {
				return err
			}

			target, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("render: %w", err)
			}
			req := fastboot.Request{
				Method:      "GET",
				Protocol:    "http:",
				Path:        target.Path,
				Headers:     map[string][]string{},
				QueryParams: map[string]string{},
			}
			for key, values := range target.Query() {
				req.QueryParams[key] = values[0]
			}
			res, err := fastboot.Render(cmd.Context(), app, target.RequestURI(), req, timeout, fastboot.WithConfig(cfg.engine()))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			page, err := assemble.Page(app.Index(), res.Snapshot)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(page))
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "application name, as used in the config meta tag")
	cmd.Flags().StringVar(&dir, "dir", "dist", "directory containing the built application")
	cmd.Flags().StringVar(&origin, "origin", "", "origin the application sees")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "limit for the boot and the render")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot and response as JSON")
	return cmd
}
