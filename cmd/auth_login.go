package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"authhub/internal/client"
	"authhub/internal/config"
	"authhub/internal/flow"
)

// Login-specific flags
var (
	loginManual    bool
	loginRegister  bool
	loginNoBrowser bool
	loginForce     bool
	loginEmail     string
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in through the browser",
	Long: `Log in with the authorization code flow and PKCE.

A local callback server receives the redirect from the identity service.
When the browser runs on another machine, use --manual and paste the URL the
browser was redirected to.

Examples:
  authhub auth login                   # Open the browser and wait
  authhub auth login --register        # Create an account instead
  authhub auth login --manual          # Paste the callback URL
  authhub auth login --no-browser      # Print the URL instead of opening it`,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().BoolVar(&loginManual, "manual", false, "Paste the callback URL instead of running a local callback server")
	authLoginCmd.Flags().BoolVar(&loginRegister, "register", false, "Open the registration page instead of the login page")
	authLoginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the login URL instead of opening a browser")
	authLoginCmd.Flags().BoolVar(&loginForce, "force", false, "Log in again even when a session exists")
	authLoginCmd.Flags().StringVar(&loginEmail, "email", "", "Prefill the email address on the login page")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, cfg, err := newAuthClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if st := c.State(); st.IsAuthenticated && !loginForce {
		name := cfg.BaseURL
		if st.User != nil {
			name = st.User.DisplayName()
		}
		authPrint(cmd, "Already logged in as %s. Use --force to log in again.\n", name)
		return nil
	}

	opts := flow.LoginOptions{Register: loginRegister, Email: loginEmail}

	var params url.Values
	if loginManual {
		params, err = manualLogin(cmd, c, cfg, opts)
	} else {
		params, err = browserLogin(ctx, cmd, c, cfg, opts)
	}
	if err != nil {
		return &AuthFailedError{BaseURL: cfg.BaseURL, Reason: err}
	}

	res, err := c.HandleCallback(ctx, params)
	if err != nil {
		return &AuthFailedError{BaseURL: cfg.BaseURL, Reason: err}
	}

	authPrint(cmd, "Logged in to %s as %s\n", cfg.BaseURL, res.User.DisplayName())
	return nil
}

// browserLogin runs the loopback callback server, sends the user to the login
// page and waits for the redirect.
func browserLogin(ctx context.Context, cmd *cobra.Command, c *client.Client, cfg config.Config, opts flow.LoginOptions) (url.Values, error) {
	srv := flow.NewCallbackServer(flow.CallbackServerConfig{
		Port:    cfg.Callback.Port,
		Path:    cfg.Callback.Path,
		Timeout: cfg.CallbackTimeout(),
		App:     cfg.App,
	})
	redirectURI, err := srv.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer srv.Stop()

	opts.RedirectURI = redirectURI
	req, err := c.Login(opts)
	if err != nil {
		return nil, err
	}

	if loginNoBrowser || flow.OpenBrowser(req.URL) != nil {
		authPrint(cmd, "Open this URL in your browser to log in:\n  %s\n", req.URL)
	} else {
		authPrint(cmd, "Opened the login page in your browser.\n")
	}

	if !authQuiet {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Writer = cmd.ErrOrStderr()
		s.Suffix = " Waiting for the login to complete..."
		s.Start()
		defer s.Stop()
	}

	return srv.WaitForCallback(ctx)
}

// manualLogin prints the login URL and reads the callback URL from the
// terminal.
func manualLogin(cmd *cobra.Command, c *client.Client, cfg config.Config, opts flow.LoginOptions) (url.Values, error) {
	if cfg.RedirectURI == "" {
		opts.RedirectURI = fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Callback.Port, cfg.Callback.Path)
	}
	req, err := c.Login(opts)
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Open this URL in a browser and log in:\n  %s\n\n", req.URL)
	fmt.Fprintln(out, "The browser then fails to load the callback page. Copy its address.")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Callback URL: ",
		InterruptPrompt: "^C",
		Stdout:          out,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	return readCallbackURL(rl, out)
}

// lineReader is the part of *readline.Instance used by readCallbackURL.
type lineReader interface {
	Readline() (string, error)
}

// readCallbackURL prompts until the user pastes something that parses as a
// callback, or gives up with Ctrl+C or Ctrl+D.
func readCallbackURL(rl lineReader, out io.Writer) (url.Values, error) {
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
			return nil, errors.New("login cancelled")
		case err != nil:
			return nil, fmt.Errorf("readline error: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		params, err := flow.ParseCallbackURL(line)
		if err != nil || !flow.IsCallback(params) {
			fmt.Fprintln(out, "That does not look like a callback URL. It should carry a code or an error parameter.")
			continue
		}
		return params, nil
	}
}
