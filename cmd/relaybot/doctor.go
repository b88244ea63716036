package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"relaybot/internal/archive"
	"relaybot/internal/config"
	"relaybot/internal/history"
	"relaybot/internal/provider"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and backend reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			gen, err := provider.New(cfg.Generator, config.DefaultInstruction, logger)
			if err != nil {
				logger.Info("generator", "valid", false, "err", err)
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("generator",
				"name", gen.Name(),
				"config_valid", gen.ValidateConfiguration(),
				"reachable", gen.TestConnectivity(ctx),
			)
			return nil
		},
	}
}

// doctorCmd runs the full preflight: config validation, generator
// credentials and reachability, and archive accessibility. Exits
// non-zero when any required check fails.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			failed := 0
			check := func(name string, ok bool, detail string) {
				mark := "ok"
				if !ok {
					mark = "FAIL"
					failed++
				}
				if detail != "" {
					fmt.Printf("%-28s %-4s %s\n", name, mark, detail)
				} else {
					fmt.Printf("%-28s %s\n", name, mark)
				}
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				check("config", false, err.Error())
				return fmt.Errorf("%d check(s) failed", failed)
			}
			check("config", true, cfgPath)

			persona, err := config.LoadPersona(cfg.General.PersonaPath)
			check("persona", err == nil, personaDetail(cfg, persona, err))

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err == nil {
				gen, gerr := provider.New(persona.Apply(cfg.Generator), persona.Instruction, logger)
				if gerr != nil {
					check("generator", false, gerr.Error())
				} else {
					check("generator credentials", gen.ValidateConfiguration(), gen.Name())
					check("generator reachable", gen.TestConnectivity(ctx), "")
				}
			}

			check("transport configured",
				cfg.Channels.Telegram.Enabled || cfg.Channels.Console.Enabled, "")

			if cfg.Archive.Enabled {
				arch, aerr := archive.New(cfg.Archive.DBPath, logger)
				if aerr != nil {
					check("archive", false, aerr.Error())
				} else {
					n, cerr := arch.CountSince(ctx, time.Now().Add(-24*time.Hour))
					check("archive", cerr == nil, fmt.Sprintf("%d messages in last 24h", n))
					_ = arch.Close()
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Println("all checks passed")
			return nil
		},
	}
}

func personaDetail(cfg *config.Config, p *config.Persona, err error) string {
	if err != nil {
		return err.Error()
	}
	if cfg.General.PersonaPath == "" {
		return "default"
	}
	return p.Name
}

// historyCmd inspects exported conversation blobs without a running
// daemon.
func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Work with exported conversation blobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect [file]",
		Short: "Summarize an exported conversation blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			chatID, count, lastUpdatedAt, err := history.DecodeExport(data)
			if err != nil {
				return err
			}
			fmt.Printf("chat:         %s\n", chatID)
			fmt.Printf("messages:     %d\n", count)
			if lastUpdatedAt > 0 {
				fmt.Printf("last updated: %s\n", time.UnixMilli(lastUpdatedAt).Format(time.RFC3339))
			}
			return nil
		},
	})

	return cmd
}
