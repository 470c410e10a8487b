package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schibsted/account-sdk-go/internal/config"
	"github.com/schibsted/account-sdk-go/pkg/auth"
)

func statusCmd(buildInfo string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current login state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), buildInfo, func(_ context.Context, _ *config.Config, a *auth.Authenticator) error {
				state := a.State()
				fmt.Println("State:", state.Kind())

				if user, ok := state.User(); ok {
					fmt.Println("User: ", user.SDRN)
					fmt.Println("Token expires:", user.Tokens.Expiration.Format("2006-01-02 15:04:05 MST"))
				}

				return nil
			})
		},
	}
}

func profileCmd(buildInfo string) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Fetch the logged-in user's profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), buildInfo, func(ctx context.Context, _ *config.Config, a *auth.Authenticator) error {
				profile, err := a.UserProfile(ctx)
				if err != nil {
					return fmt.Errorf("fetching profile: %w", err)
				}

				fmt.Println("User id:", profile.UserID)
				fmt.Println("UUID:   ", profile.UUID)
				fmt.Println("Email:  ", profile.Email)
				fmt.Println("Name:   ", profile.DisplayName)

				return nil
			})
		},
	}
}

func logoutCmd(buildInfo string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log the current user out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), buildInfo, func(ctx context.Context, _ *config.Config, a *auth.Authenticator) error {
				a.Logout(ctx)
				fmt.Println("Logged out")

				return nil
			})
		},
	}
}
