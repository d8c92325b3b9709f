// Command admin is the blango-admin management CLI: account administration,
// the inactive-account sweep and demo data seeding.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"blango/internal/config"
	"blango/internal/database"
	"blango/internal/featureflags"
	"blango/internal/middleware"
	"blango/internal/models"
	"blango/internal/repository"
	"blango/internal/service"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// adminEnv holds what every subcommand needs once the database is open.
type adminEnv struct {
	db     *gorm.DB
	users  *service.UserService
	logger *slog.Logger
}

func newAdminEnv(cfg *config.Config, db *gorm.DB, logger *slog.Logger) *adminEnv {
	users := service.NewUserService(
		repository.NewUserRepository(db),
		repository.NewProfileRepository(db),
		service.NewMailer(cfg, logger),
		featureflags.NewManager(cfg.FeatureFlags),
		service.UserServiceConfig{
			Secret:         cfg.JWTSecret,
			BaseURL:        cfg.BaseURL,
			ActivationDays: cfg.AccountActivationDays,
		},
		logger,
	)
	return &adminEnv{db: db, users: users, logger: logger}
}

// openFunc builds the environment lazily so --help never touches the database.
type openFunc func() (*adminEnv, error)

func openFromConfig() (*adminEnv, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	middleware.InitLogger(cfg.LogLevel, cfg.LogFormat)
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return newAdminEnv(cfg, db, middleware.Logger), nil
}

func newRootCmd(open openFunc) *cobra.Command {
	var env *adminEnv
	root := &cobra.Command{
		Use:           "blango-admin",
		Short:         "Administrative tasks for a Blango deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if env != nil {
				return nil
			}
			var err error
			env, err = open()
			return err
		},
	}
	get := func() *adminEnv { return env }

	root.AddCommand(
		newCreateSuperuserCmd(get),
		newCleanupCmd(get),
		newStaffCmd(get, "promote", true),
		newStaffCmd(get, "demote", false),
		newListStaffCmd(get),
		newSeedCmd(get),
	)
	return root
}

func newCreateSuperuserCmd(env func() *adminEnv) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an active staff account with superuser rights",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("BLANGO_SUPERUSER_PASSWORD")
			}
			u, err := env().users.CreateSuperuser(cmd.Context(), email, password)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Superuser %s created (id %d)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address of the new superuser")
	cmd.Flags().StringVar(&password, "password", "", "password (defaults to $BLANGO_SUPERUSER_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newCleanupCmd(env func() *adminEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-users",
		Short: "Delete accounts that were never activated within the activation window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := env().users.CleanupInactive(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d inactive account(s)\n", n)
			return nil
		},
	}
}

func newStaffCmd(env func() *adminEnv, use string, staff bool) *cobra.Command {
	short := "Grant staff rights to a user"
	if !staff {
		short = "Revoke staff and superuser rights from a user"
	}
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := env().users.GetByEmail(ctx, args[0])
			if err != nil {
				return describe(err)
			}
			if u.IsStaff == staff {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is unchanged (staff=%t)\n", u.Email, staff)
				return nil
			}
			if _, err := env().users.SetStaff(ctx, u.ID, staff); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s staff=%t\n", u.Email, staff)
			return nil
		},
	}
}

func newListStaffCmd(env func() *adminEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "list-staff",
		Short: "List staff accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var staff []models.User
			err := env().db.WithContext(cmd.Context()).
				Where("is_staff = ?", true).
				Order("email").
				Find(&staff).Error
			if err != nil {
				return err
			}
			return printUsers(cmd.OutOrStdout(), staff)
		},
	}
}

func printUsers(w io.Writer, users []models.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tSUPERUSER\tACTIVE\tJOINED")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%t\t%s\n", u.ID, u.Email, u.IsSuperuser, u.IsActive, u.DateJoined.Format(time.DateOnly))
	}
	return tw.Flush()
}

// describe flattens validation errors into one readable line.
func describe(err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) || len(appErr.Fields) == 0 {
		return err
	}
	parts := make([]string, 0, len(appErr.Fields))
	for field, msgs := range appErr.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, " "))
	}
	slices.Sort(parts)
	return errors.New(strings.Join(parts, "; "))
}

func main() {
	root := newRootCmd(openFromConfig)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
