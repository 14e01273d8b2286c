package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"toolhost/internal/channel"
	"toolhost/internal/domain"
)

func queryCmd() *cobra.Command {
	var (
		session string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Answer one request and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := buildContainer(ctx, true)
			if err != nil {
				return err
			}
			defer closeContainer(c)

			timeout := time.Duration(c.Config().Server.RequestTimeoutSeconds) * time.Second
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			resp := c.Orchestrator().Handle(ctx, domain.Request{
				UserQuery: strings.Join(args, " "),
				SessionID: session,
			})
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			channel.WriteResponse(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session ID to attach to the request")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw response as JSON")
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := buildContainer(ctx, true)
			if err != nil {
				return err
			}
			defer closeContainer(c)

			cli := channel.NewCLI(channel.CLIConfig{
				Handler:   c.Orchestrator(),
				Catalogue: c.Registry(),
				Logger:    c.Logger(),
				Spinner:   !color.NoColor,
			})
			return cli.Start(ctx)
		},
	}
}

func toolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List registered providers and their tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := buildContainer(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeContainer(c)

			catalogue := c.Registry().AllTools(cmd.Context())
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(catalogue)
			}
			if len(catalogue) == 0 {
				color.New(color.FgYellow).Fprintln(out, "No tools loaded.")
				return nil
			}

			header := color.New(color.FgCyan, color.Bold)
			name := color.New(color.FgGreen)
			for _, provider := range slices.Sorted(maps.Keys(catalogue)) {
				tools := catalogue[provider]
				header.Fprintf(out, "%s (%d)\n", provider, len(tools))
				if len(tools) == 0 {
					fmt.Fprintln(out, "  (no tools; provider not configured)")
				}
				for _, t := range tools {
					name.Fprintf(out, "  %-36s", t.Name)
					fmt.Fprintf(out, " %s\n", t.Description)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalogue as JSON")
	return cmd
}
