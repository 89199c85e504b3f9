package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	loginUser     string
	loginPassword string
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a system account and store the session token",
	Long: `Authenticate against the Podium server with a system account.

Credentials are taken from --user/--password, then from podium.username and
podium.password in the config. A missing password is read from stdin.`,
	PreRunE: initializeApp,
	RunE:    runLogin,
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Forget the stored session token",
	PreRunE: initializeApp,
	RunE:    runLogout,
}

// whoamiCmd represents the whoami command
var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Short:   "Show the stored session",
	PreRunE: initializeApp,
	RunE:    runWhoami,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "system account name")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "system account password")
}

func runLogin(cmd *cobra.Command, args []string) error {
	user := firstNonEmpty(loginUser, cfg.Podium.Username)
	if user == "" {
		return fmt.Errorf("no user given: pass --user or set podium.username")
	}

	password := firstNonEmpty(loginPassword, cfg.Podium.Password)
	if password == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", user)
		var err error
		password, err = readLine(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Podium.Timeout)
	defer cancel()

	// Identity is written along with the token
	sessions.SetIdentity(user, client.Endpoint())

	result, err := client.Authenticate(ctx, user, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if !result.Found {
		return fmt.Errorf("login failed: server answered %s", result.Code)
	}

	logger.Info().Str("user", user).Str("endpoint", client.Endpoint()).Msg("Logged in")
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as %s\n", user)

	if result.Detail != nil {
		return printJSON(cmd.OutOrStdout(), result.Detail)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if !client.Authenticated() {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
		return nil
	}

	client.Logout()
	logger.Info().Str("session", sessions.Path()).Msg("Session removed")
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	sess, ok := sessions.Session()
	if !ok {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}

	fmt.Fprintf(out, "User:     %s\n", valueOr(sess.Username, "unknown"))
	fmt.Fprintf(out, "Endpoint: %s\n", valueOr(sess.Endpoint, client.Endpoint()))
	if !sess.SavedAt.IsZero() {
		fmt.Fprintf(out, "Since:    %s\n", sess.SavedAt.Local().Format(time.RFC1123))
	}
	fmt.Fprintf(out, "Session:  %s\n", sessions.Path())
	return nil
}

func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
