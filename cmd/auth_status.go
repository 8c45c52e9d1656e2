package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authhub/pkg/auth"
)

var statusJSON bool

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show whether a user is logged in, when the access token expires and
whether it can be renewed.

An expired access token with a refresh token is renewed before the status
is shown.

Examples:
  authhub auth status                  # Table output
  authhub auth status --json           # Machine-readable output`,
	RunE: runAuthStatus,
}

func init() {
	authStatusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	c, _, err := newAuthClient(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	status := c.Status()
	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	renderStatus(cmd.OutOrStdout(), status, time.Now())
	return nil
}

// renderStatus writes status as a two-column table.
func renderStatus(w io.Writer, status *auth.StatusResponse, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("KEY"), text.FgHiCyan.Sprint("VALUE")})

	t.AppendRow(table.Row{"Status", formatState(status.State)})
	t.AppendRow(table.Row{"Service", status.BaseURL})
	t.AppendRow(table.Row{"App", status.App})

	storageMode := status.StorageMode
	if status.CookieMode {
		storageMode += " (token in cookie)"
	}
	t.AppendRow(table.Row{"Storage", storageMode})

	if status.User != nil {
		t.AppendRow(table.Row{"User", formatUser(status.User)})
	}
	if status.ExpiresAt != nil {
		t.AppendRow(table.Row{"Expires", formatExpiryWithDirection(*status.ExpiresAt, now)})
	}
	if status.TokenFingerprint != "" {
		t.AppendRow(table.Row{"Token", status.TokenFingerprint})
	}
	if status.State != auth.StateUnauthenticated {
		t.AppendRow(table.Row{"Refresh", formatAvailability(status.HasRefreshToken)})
	}
	if status.Error != nil {
		t.AppendRow(table.Row{"Error", text.FgRed.Sprintf("%s: %s", status.Error.Code, status.Error.Message)})
	}

	t.Render()
}

func formatState(state string) string {
	switch state {
	case auth.StateAuthenticated:
		return text.FgGreen.Sprint("Authenticated")
	case auth.StateExpired:
		return text.FgYellow.Sprint("Expired")
	case auth.StateUnauthenticated:
		return text.FgYellow.Sprint("Not logged in")
	default:
		return text.FgHiBlack.Sprint(state)
	}
}

func formatUser(u *auth.UserStatus) string {
	switch {
	case u.Email != "" && u.Name != "":
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

func formatAvailability(ok bool) string {
	if ok {
		return text.FgGreen.Sprint("Available")
	}
	return text.FgYellow.Sprint("Not available")
}
