package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deskagent/core/internal/config"
	"github.com/deskagent/core/internal/loop"
	"github.com/deskagent/core/internal/relay"
	"github.com/deskagent/core/internal/sessions"
	"github.com/deskagent/core/internal/skills"
)

func newRunCmd(configPath *string) *cobra.Command {
	var withRelay bool

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Execute one goal against the local desktop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.close()

			if withRelay {
				srv := relay.New(cfg.Serve.Addr, rt.bus, rt.registry, logger)
				srv.Start()
				defer func() { _ = srv.Shutdown(context.Background()) }()
			}

			// A second interrupt kills the process; the first one asks
			// the loop to stop at the next boundary.
			go func() {
				<-ctx.Done()
				stop()
				rt.orchestrator.Interrupt()
			}()

			goal := strings.Join(args, " ")
			result, err := rt.orchestrator.ExecuteGoal(ctx, goal)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			if result.Outcome == loop.OutcomeFailure {
				return fmt.Errorf("goal failed: %s", result.Reason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withRelay, "relay", false, "expose events and metrics while the goal runs")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the event/metrics endpoint and accept goals over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.close()

			srv := relay.New(cfg.Serve.Addr, rt.bus, rt.registry, logger)

			mux, ok := srv.Handler().(*http.ServeMux)
			if ok {
				mux.HandleFunc("/goal", func(w http.ResponseWriter, r *http.Request) {
					if r.Method != http.MethodPost {
						http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
						return
					}
					var body struct {
						Goal string `json:"goal"`
					}
					if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Goal == "" {
						http.Error(w, "goal required", http.StatusBadRequest)
						return
					}
					go func() {
						if _, err := rt.orchestrator.ExecuteGoal(ctx, body.Goal); err != nil {
							logger.Warn("goal rejected", "error", err)
						}
					}()
					w.WriteHeader(http.StatusAccepted)
				})
			}

			srv.Start()
			<-ctx.Done()
			rt.orchestrator.Interrupt()
			return srv.Shutdown(context.Background())
		},
	}
}

func newSkillsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect user-authored skills",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List skills eligible on this host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			loader := skills.NewLoader(cfg.Skills.Directory, nil, newLogger())
			if err := loader.Reload(); err != nil {
				return err
			}
			list := loader.Skills()
			if len(list) == 0 {
				cmd.Println("no eligible skills found")
				return nil
			}
			for _, s := range list {
				cmd.Printf("%-24s %s\n", skills.ToSnakeCase(s.Name), s.Description)
			}
			return nil
		},
	})
	return cmd
}

func newSessionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and prune the session store",
	}

	openStore := func() (*sessions.Store, error) {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		db, err := sessions.Open(cfg.Memory.DatabasePath, cfg.Memory.Driver)
		if err != nil {
			return nil, err
		}
		store := sessions.NewStore(db, newLogger())
		if err := store.InitSchema(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.DB().Close()
			list, err := store.ListSessions(context.Background())
			if err != nil {
				return err
			}
			for _, s := range list {
				cmd.Printf("%s  messages=%d tokens=%d last_active=%s\n",
					s.SessionKey, s.MessageCount, s.TotalTokens, s.LastActiveAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	})

	var retentionDays int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.DB().Close()
			removed, err := store.DeleteOldSessions(context.Background(), retentionDays)
			if err != nil {
				return err
			}
			cmd.Printf("removed %d sessions\n", removed)
			return nil
		},
	}
	prune.Flags().IntVar(&retentionDays, "older-than-days", sessions.DefaultRetentionDays, "retention window in days")
	cmd.AddCommand(prune)

	return cmd
}

func printResult(cmd *cobra.Command, result *loop.Result) {
	switch result.Outcome {
	case loop.OutcomeSuccess:
		cmd.Printf("done (%d iterations): %s\n", result.Iterations, result.Summary)
	default:
		cmd.Printf("%s (%d iterations): %s\n", result.Outcome, result.Iterations, result.Reason)
	}
}
