package cmd

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authhub/internal/client"
	"authhub/internal/config"
	"authhub/internal/flow"
	"authhub/pkg/oauth"
)

var authQuiet bool

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the login session",
	Long: `Manage the login session with the identity service.

Examples:
  authhub auth login                   # Log in through the browser
  authhub auth login --manual          # Paste the callback URL instead
  authhub auth status                  # Show the session
  authhub auth refresh                 # Renew the access token now
  authhub auth whoami                  # Show the user and token claims
  authhub auth logout                  # Forget the local session
  authhub auth logout --global         # Also end the session everywhere`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored authentication tokens",
	Long: `Clear the stored tokens of this machine.

With --global the identity service's logout page is opened as well, ending
the session on every device.`,
	RunE: runAuthLogout,
}

// authRefreshCmd represents the auth refresh command
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force token refresh",
	Long: `Exchange the stored refresh token for a new access token now.

The refresh token is rotated. A rejected refresh token ends the session.`,
	RunE: runAuthRefresh,
}

// authWhoamiCmd represents the auth whoami command
var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show current authenticated identity",
	Long: `Show the logged in user and, when the access token is a JWT, its claims.

Claims are decoded without verifying the signature and are informational only.`,
	RunE: runAuthWhoami,
}

// Logout-specific flags
var (
	logoutGlobal   bool
	logoutReturnTo string
)

// authPrint prints output only if the --quiet flag is not set.
func authPrint(cmd *cobra.Command, format string, args ...any) {
	if !authQuiet {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authWhoamiCmd)

	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress non-essential output")

	authLogoutCmd.Flags().BoolVar(&logoutGlobal, "global", false, "Also end the session on every device")
	authLogoutCmd.Flags().StringVar(&logoutReturnTo, "return-to", "", "Page to show after a global logout")
}

// newAuthClient loads the configuration and returns an initialized client.
// Callers must Close it.
func newAuthClient(ctx context.Context) (*client.Client, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, config.Config{}, err
	}

	c, err := client.New(cfg,
		client.WithUserAgent("authhub/"+GetVersion()),
		client.WithoutWatch(),
	)
	if err != nil {
		return nil, config.Config{}, err
	}
	c.Initialize(ctx)
	return c, cfg, nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	c, cfg, err := newAuthClient(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	wasAuthenticated := c.State().IsAuthenticated
	if err := c.Logout(); err != nil {
		return err
	}

	if logoutGlobal {
		u, err := c.LogoutURL(logoutReturnTo, true)
		if err != nil {
			return err
		}
		if err := flow.OpenBrowser(u); err != nil {
			authPrint(cmd, "Open this URL to end the session everywhere:\n  %s\n", u)
		} else {
			authPrint(cmd, "Opened the logout page of %s\n", cfg.BaseURL)
		}
	}

	if wasAuthenticated {
		authPrint(cmd, "Logged out from %s\n", cfg.BaseURL)
	} else {
		authPrint(cmd, "No active session for %s\n", cfg.BaseURL)
	}
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	c, cfg, err := newAuthClient(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	authPrint(cmd, "Refreshing token for %s...\n", cfg.BaseURL)
	res := c.Refresh(cmd.Context())
	if !res.Success {
		return refreshError(cfg.BaseURL, res.Error)
	}

	authPrint(cmd, "Token refreshed. Expires %s\n", formatExpiryWithDirection(res.ExpiresAt, time.Now()))
	return nil
}

// refreshError maps a failed refresh onto the CLI's error types.
func refreshError(baseURL string, err *oauth.AuthError) error {
	if err == nil {
		return &AuthFailedError{BaseURL: baseURL, Reason: fmt.Errorf("refresh failed")}
	}
	switch err.Code {
	case oauth.ErrSessionExpired, oauth.ErrTokenExpired, oauth.ErrTokenInvalid, oauth.ErrTokenReuseDetected:
		return &AuthExpiredError{BaseURL: baseURL, Reason: err}
	default:
		return &AuthFailedError{BaseURL: baseURL, Reason: err}
	}
}

func runAuthWhoami(cmd *cobra.Command, args []string) error {
	c, cfg, err := newAuthClient(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	st := c.State()
	if !st.IsAuthenticated {
		return &AuthRequiredError{BaseURL: cfg.BaseURL}
	}

	out := cmd.OutOrStdout()
	if st.User != nil {
		fmt.Fprintf(out, "Identity:  %s\n", st.User.DisplayName())
		fmt.Fprintf(out, "User ID:   %s\n", st.User.ID)
	}
	fmt.Fprintf(out, "Service:   %s\n", cfg.BaseURL)
	if !st.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "Expires:   %s\n", formatExpiryWithDirection(st.ExpiresAt, time.Now()))
	}

	token, ok := c.GetAccessToken(cmd.Context())
	if !ok {
		return nil
	}
	claims, err := oauth.DecodeJWTClaims(token)
	if err != nil {
		fmt.Fprintf(out, "Token:     opaque (%s)\n", oauth.NewRedactedToken(token).Fingerprint())
		return nil
	}

	fmt.Fprintln(out, "\nClaims")
	for _, key := range slices.Sorted(maps.Keys(claims)) {
		fmt.Fprintf(out, "  %-10s %s\n", key+":", formatClaim(key, claims[key]))
	}
	return nil
}

// formatClaim renders NumericDate claims as times and everything else as is.
func formatClaim(key string, value any) string {
	switch key {
	case "exp", "iat", "nbf", "auth_time":
		if secs, ok := value.(float64); ok {
			return time.Unix(int64(secs), 0).UTC().Format(time.RFC3339)
		}
	}
	return fmt.Sprint(value)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiryWithDirection formats an expiry time relative to now.
func formatExpiryWithDirection(expiresAt, now time.Time) string {
	remaining := expiresAt.Sub(now)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}
