package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jon4hz/chartwise/internal/database"
	"github.com/jon4hz/chartwise/internal/engine"
	"github.com/spf13/cobra"
)

var createAdminCmdFlags struct {
	Name     string
	Email    string
	Password string
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account",
	Long:  `Create an admin account, or promote an existing account to admin and set its password.`,
	Example: `chartwise create-admin --email admin@example.com --password changeme
chartwise create-admin --name "Jane Doe" --email jane@example.com --password s3cret!`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		db, err := database.New(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close() //nolint: errcheck

		eng, err := engine.New(cmd.Context(), cfg, db)
		if err != nil {
			return fmt.Errorf("failed to create engine: %w", err)
		}
		defer eng.Close() //nolint: errcheck

		user, err := eng.EnsureAdmin(cmd.Context(), createAdminCmdFlags.Name, createAdminCmdFlags.Email, createAdminCmdFlags.Password)
		if err != nil {
			return err
		}

		fmt.Printf("Admin %s (ID %d) is ready.\n", user.Email, user.ID)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show platform statistics",
	Long:  `Display user and chart statistics of the platform.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		db, err := database.New(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close() //nolint: errcheck

		eng, err := engine.New(cmd.Context(), cfg, db)
		if err != nil {
			return fmt.Errorf("failed to create engine: %w", err)
		}
		defer eng.Close() //nolint: errcheck

		stats, err := eng.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println("Platform Statistics:")
		fmt.Printf("Total Users: %s\n", humanize.Comma(stats.TotalUsers))
		fmt.Printf("Blocked Users: %s\n", humanize.Comma(stats.BlockedUsers))
		fmt.Printf("Total Charts: %s\n", humanize.Comma(stats.TotalCharts))
		fmt.Printf("Most Used Chart Type: %s\n", stats.MostUsedChartType)

		users, err := eng.ListUsers(cmd.Context())
		if err == nil && len(users) > 0 {
			fmt.Println("\nUsers:")
			for _, u := range users {
				status := "active"
				if u.IsBlocked {
					status = "blocked"
				}
				fmt.Printf("  ID: %d, Email: %s, Role: %s, Status: %s, Joined: %s\n",
					u.ID, u.Email, u.Role, status, u.CreatedAt.Format(time.DateOnly))
			}
		}

		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&createAdminCmdFlags.Name, "name", "Admin", "Display name of the admin")
	createAdminCmd.Flags().StringVar(&createAdminCmdFlags.Email, "email", "", "Email address of the admin")
	createAdminCmd.Flags().StringVar(&createAdminCmdFlags.Password, "password", "", "Password of the admin")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(createAdminCmd, statsCmd)
}
