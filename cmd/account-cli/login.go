package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schibsted/account-sdk-go/internal/config"
	"github.com/schibsted/account-sdk-go/pkg/auth"
)

// terminalLogin presents the authorization URL on stdout and reads the
// callback URL the user pastes back after completing login in a browser.
type terminalLogin struct{}

func (terminalLogin) Present(ctx context.Context, authorizationURL string) (string, error) {
	fmt.Println("Open the following URL in a browser and complete the login:")
	fmt.Println()
	fmt.Println("  " + authorizationURL)
	fmt.Println()
	fmt.Print("Paste the URL the browser was redirected to: ")

	line := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		s, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			errc <- err
			return
		}
		line <- strings.TrimSpace(s)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errc:
		return "", err
	case callbackURL := <-line:
		return callbackURL, nil
	}
}

func loginCmd(buildInfo string) *cobra.Command {
	var (
		code         string
		codeVerifier string
		mfa          string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log a user in",
		Long:  "Runs the authorization code flow interactively, or completes it from a code obtained out of band.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), buildInfo, func(ctx context.Context, _ *config.Config, a *auth.Authenticator) error {
				var (
					user *auth.User
					err  error
				)

				if code != "" {
					user, err = a.LoginWithCode(ctx, code, codeVerifier)
				} else {
					var opts []auth.LoginOption
					if mfa != "" {
						opts = append(opts, auth.WithMFA(mfa))
					}
					user, err = a.Login(ctx, terminalLogin{}, opts...)
				}
				if err != nil {
					return fmt.Errorf("logging in: %w", err)
				}

				fmt.Printf("Logged in as %s\n", user.SDRN)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "authorization code obtained out of band")
	cmd.Flags().StringVar(&codeVerifier, "code-verifier", "", "PKCE verifier matching the code")
	cmd.Flags().StringVar(&mfa, "mfa", "", "required authentication method, forwarded as acr_values")

	return cmd
}
