package commands

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pypydance/roomlog/internal/app"
	"github.com/pypydance/roomlog/pkg/store"
)

// NewUsersCommand creates the users command and its subcommands.
func NewUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage registered users",
		Long: `Manage the users records are saved for.

Records of players without a registered user are skipped when saving.
With consent.from_store enabled, registered users are also the players
whose attendance and music are recorded at all.`,
	}

	cmd.AddCommand(newUsersAddCommand())
	cmd.AddCommand(newUsersListCommand())

	return cmd
}

func newUsersAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <config-file> <nickname>...",
		Short: "Register one or more users by nickname",
		Long: `Register users by their in-world display name.

Registering an existing nickname is not an error; the existing user is kept.

Example:
  roomlog users add roomlog.yaml Alice "Bob (DJ)"`,
		Args: cobra.MinimumNArgs(2),
		RunE: runUsersAdd,
	}
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	w := cmd.OutOrStdout()

	cfg, err := loadConfig(ctx, args[0])
	if err != nil {
		return err
	}

	a := app.New(ctx, cfg, app.Options{FromLine: -1})
	defer a.Close()

	st, err := a.Store()
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	for _, name := range args[1:] {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("nickname must not be empty")
		}
		id, err := st.AddUser(ctx, name)
		if err != nil {
			return fmt.Errorf("adding %q: %w", name, err)
		}
		fmt.Fprintf(w, "Registered %s (id %d)\n", name, id)
	}

	return nil
}

func newUsersListCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list <config-file>",
		Short: "List registered users and their attendance totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersList(cmd, args, format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format (text|json)")

	return cmd
}

func runUsersList(cmd *cobra.Command, args []string, format string) error {
	ctx := commandContext(cmd)
	w := cmd.OutOrStdout()

	if format != "text" && format != "json" {
		return fmt.Errorf("unknown output format %q (use text or json)", format)
	}

	cfg, err := loadConfig(ctx, args[0])
	if err != nil {
		return err
	}

	a := app.New(ctx, cfg, app.Options{FromLine: -1})
	defer a.Close()

	st, err := a.Store()
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	users, err := st.Users(ctx)
	if err != nil {
		return err
	}

	if format == "json" {
		if users == nil {
			users = []store.UserSummary{}
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(users)
	}

	if len(users) == 0 {
		fmt.Fprintln(w, "No registered users.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNICKNAME\tATTENDED\tLAST ATTENDED")
	for _, u := range users {
		last := "-"
		if !u.LastAttended.IsZero() {
			last = u.LastAttended.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", u.ID, u.Nickname, u.TotalCount, last)
	}
	return tw.Flush()
}
