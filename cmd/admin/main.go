package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sahtee/admin/internal/admin/app"
	"github.com/sahtee/admin/pkg/adminsdk"
	"github.com/sahtee/admin/pkg/audit"
	"github.com/sahtee/admin/pkg/dataset"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "admin",
		Short:         "Sahtee admin console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(licenseCmd())
	rootCmd.AddCommand(auditCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

// withApp builds the application for one command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app.Application) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		return fn(cmd.Context(), a)
	}
}

func describe(err error) string {
	var apiErr *adminsdk.Error
	if !errors.As(err, &apiErr) {
		return err.Error()
	}

	msg := apiErr.Error()
	for _, field := range slices.Sorted(maps.Keys(apiErr.Fields)) {
		msg += fmt.Sprintf("\n  %s: %s", field, strings.Join(apiErr.Fields[field], "; "))
	}
	if apiErr.RetryAfter > 0 {
		msg += fmt.Sprintf("\n  retry after %s", apiErr.RetryAfter.Round(time.Second))
	}
	return msg
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
	}
	email := cmd.Flags().String("email", "", "Admin email address")
	_ = cmd.MarkFlagRequired("email")

	cmd.RunE = withApp(func(ctx context.Context, a *app.Application) error {
		password := os.Getenv("ADMIN_PASSWORD")
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		session, err := a.Client().Login(ctx, *email, password)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", sessionName(session, *email))
		return nil
	})
	return cmd
}

func sessionName(s adminsdk.SessionToken, fallback string) string {
	if s.Subject != "" {
		return s.Subject
	}
	return fallback
}

func logoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withApp(func(ctx context.Context, a *app.Application) error {
		if err := a.Client().Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signed out")
		return nil
	})
	return cmd
}

func whoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withApp(func(ctx context.Context, a *app.Application) error {
		session, err := a.Client().Session(ctx)
		if err != nil {
			return err
		}

		out := map[string]any{
			"subject": session.Subject,
			"role":    session.Role,
			"expired": session.Expired(time.Now()),
		}
		if !session.ExpiresAt.IsZero() {
			out["expires_at"] = session.ExpiresAt.Format(time.RFC3339)
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
	return cmd
}

func entityArg(args []string) (adminsdk.EntityType, error) {
	return adminsdk.ParseEntityType(args[0])
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <hospitals|doctors|nurses|users>",
		Short: "List one page of records, or every record with --all",
		Args:  cobra.ExactArgs(1),
	}
	page := cmd.Flags().Int("page", 1, "Page number")
	perPage := cmd.Flags().Int("per-page", 25, "Records per page")
	all := cmd.Flags().Bool("all", false, "Load every page")

	cmd.RunE = func(c *cobra.Command, args []string) error {
		entity, err := entityArg(args)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.Application) error {
			if *all {
				records, err := a.Cache().Load(ctx, entity)
				if err != nil {
					return err
				}
				return printJSON(c.OutOrStdout(), records)
			}

			result, err := a.Client().ListPage(ctx, entity, *page, *perPage)
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), result)
		})(c, args)
	}
	return cmd
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <entity> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		entity, err := entityArg(args)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.Application) error {
			record, err := a.Client().GetRecord(ctx, entity, args[1])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("%s %s not found", entity, args[1])
			}
			return printJSON(c.OutOrStdout(), record)
		})(c, args)
	}
	return cmd
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <entity> [query]",
		Short: "Search the full dataset of an entity type",
		Long: "Search the full dataset of an entity type. With --watch, each line read\n" +
			"from stdin replaces the query and results print as input settles.",
		Args: cobra.RangeArgs(1, 2),
	}
	watch := cmd.Flags().Bool("watch", false, "Read queries from stdin")

	cmd.RunE = func(c *cobra.Command, args []string) error {
		entity, err := entityArg(args)
		if err != nil {
			return err
		}
		query := ""
		if len(args) == 2 {
			query = args[1]
		}

		return withApp(func(ctx context.Context, a *app.Application) error {
			if !*watch {
				records, err := a.Searcher().Search(ctx, entity, query)
				if err != nil {
					return err
				}
				return printJSON(c.OutOrStdout(), records)
			}
			return watchSearch(ctx, a, entity, c.InOrStdin(), c.OutOrStdout())
		})(c, args)
	}
	return cmd
}

func watchSearch(ctx context.Context, a *app.Application, entity adminsdk.EntityType, in io.Reader, out io.Writer) error {
	a.Start()

	q := a.NewQuery(ctx, entity, func(r dataset.Result) {
		if r.Err != nil {
			fmt.Fprintf(out, "%q: %s\n", r.Query, describe(r.Err))
			return
		}
		fmt.Fprintf(out, "%q: %d match(es)\n", r.Query, len(r.Records))
		for _, rec := range r.Records {
			fmt.Fprintf(out, "  %s\t%s\n", rec.ID(), rec.String("name"))
		}
	})
	defer q.Close()

	last := ""
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		last = scanner.Text()
		q.Set(last)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// Input ended; settle on the final query instead of waiting out the debounce.
	q.Flush(last)
	return nil
}

func licenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license <doctor-id>",
		Short: "Download a doctor's license document",
		Args:  cobra.ExactArgs(1),
	}
	outPath := cmd.Flags().StringP("output", "o", "", "File to write (default: stdout)")

	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.Application) error {
			doc, err := a.Client().DoctorLicense(ctx, args[0])
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("doctor %s has no license on file", args[0])
			}

			if *outPath == "" {
				_, err = c.OutOrStdout().Write(doc.Data)
				return err
			}
			if err := os.WriteFile(*outPath, doc.Data, 0o600); err != nil {
				return fmt.Errorf("writing license: %w", err)
			}
			fmt.Fprintf(c.ErrOrStderr(), "wrote %d bytes (%s) to %s\n", len(doc.Data), doc.ContentType, *outPath)
			return nil
		})(c, args)
	}
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the local audit trail",
	}

	eventsCmd := &cobra.Command{
		Use:   "list",
		Short: "Show recorded audit events, newest first",
		Args:  cobra.NoArgs,
	}
	eventType := eventsCmd.Flags().String("type", "", "Only events of this type (e.g. refresh_failed)")
	since := eventsCmd.Flags().Duration("since", 0, "Only events newer than this (e.g. 24h)")
	limit := eventsCmd.Flags().Int("limit", 50, "Maximum events to show")
	eventsCmd.RunE = withApp(func(ctx context.Context, a *app.Application) error {
		filter := audit.QueryFilter{Type: audit.EventType(*eventType), Limit: *limit}
		if *since > 0 {
			from := time.Now().Add(-*since)
			filter.Since = &from
		}

		events, err := a.Audit().Query(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(eventsCmd.OutOrStdout(), events)
	})

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit events older than AUDIT_RETENTION",
		Args:  cobra.NoArgs,
	}
	pruneCmd.RunE = withApp(func(ctx context.Context, a *app.Application) error {
		deleted, err := a.Housekeeping().RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(pruneCmd.OutOrStdout(), "deleted %d event(s)\n", deleted)
		return nil
	})

	cmd.AddCommand(eventsCmd)
	cmd.AddCommand(pruneCmd)
	return cmd
}
