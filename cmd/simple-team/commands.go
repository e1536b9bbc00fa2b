package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-team-slim/pkg/auth"
	"github.com/tendant/simple-team-slim/pkg/membership"
	"github.com/tendant/simple-team-slim/pkg/repository"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, activity projector and reconcile scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			kit, cleanup, err := e.buildKit(ctx)
			defer cleanup()
			if err != nil {
				return err
			}

			var scheduler *membership.Scheduler
			if e.cfg.ReconcileSchedule != "" {
				scheduler, err = membership.NewScheduler(kit.Reconciler(), e.cfg.ReconcileSchedule, 0, e.log)
				if err != nil {
					return err
				}
			}

			server := &http.Server{
				Addr:         e.cfg.ListenAddr(),
				Handler:      kit.Router(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				e.log.Info("server starting", "addr", server.Addr, "env", e.cfg.AppEnv, "store", e.cfg.StoreDriver)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				e.log.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server shutdown: %w", err)
				}
				if err := kit.Close(shutdownCtx); err != nil {
					e.log.Error("failed to close kit", "error", err)
				}
				return nil
			})
			g.Go(func() error {
				return kit.RunProjector(gctx)
			})
			if scheduler != nil {
				g.Go(func() error {
					return scheduler.Run(gctx)
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}
			e.log.Info("server stopped")
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.log.Sync()

			db, err := e.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.RunMigrations(db); err != nil {
				return err
			}
			e.log.Info("migrations applied")
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair User.teams back-references once and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.log.Sync()

			kit, cleanup, err := e.buildKit(cmd.Context())
			defer cleanup()
			if err != nil {
				return err
			}
			defer kit.Close(context.Background())

			report, err := kit.Reconciler().Run(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user id (local use)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokenService(auth.TokenConfig{
				Secret: []byte(e.cfg.JWTSecret),
				Issuer: e.cfg.JWTIssuer,
				TTL:    e.cfg.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := tokens.Issue(id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id to put in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
