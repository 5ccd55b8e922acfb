package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/personal-pl/plctl/internal/api"
	"github.com/personal-pl/plctl/internal/buildinfo"
	"github.com/personal-pl/plctl/internal/config"
	"github.com/personal-pl/plctl/internal/gate"
	"github.com/personal-pl/plctl/internal/importer"
	"github.com/personal-pl/plctl/internal/logging"
	"github.com/personal-pl/plctl/internal/session"
)

const (
	// routeKey names the route a command stands for. The root command gates
	// it against the session before running.
	routeKey = "route"
	// offlineKey marks commands that need neither a session nor a client.
	offlineKey = "offline"
)

// app is the state shared by every command of one invocation.
type app struct {
	configPath string
	apiURL     string
	logLevel   string

	cfg     *config.Config
	log     *slog.Logger
	session *session.Session
	client  *api.Client
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "plctl",
		Short:   "Personal P&L from bank statements",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/plctl/config.yaml)")
	flags.StringVar(&a.apiURL, "api-url", "", "backend base URL, overrides api.base_url")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newRegisterCommand(a),
		newWhoamiCommand(a),
		newHealthCommand(a),
		newImportCommand(a),
		newPLCommand(a),
		newTxCommand(a),
		newReviewCommand(a),
		newConfigCommand(a),
	)

	return rootCmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.ExecuteContext(ctx); err != nil {
		reportError(errOut, err)
		return 1
	}
	return 0
}

func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)

	var login *loginRequiredError
	if errors.As(err, &login) || api.IsAuth(err) {
		fmt.Fprintln(w, `Run "plctl login <username>" to sign in.`)
		return
	}
	var vf *importer.ValidationFailure
	if errors.As(err, &vf) && vf.Hint != "" && vf.Hint != vf.Message {
		fmt.Fprintln(w, "Hint:", vf.Hint)
	}
}

// loginRequiredError is returned when a protected command runs without a
// session.
type loginRequiredError struct {
	route string
}

func (e *loginRequiredError) Error() string {
	return fmt.Sprintf("login required for %s", e.route)
}

func annotation(cmd *cobra.Command, key string) (string, bool) {
	for c := cmd; c != nil; c = c.Parent() {
		if v, ok := c.Annotations[key]; ok {
			return v, true
		}
	}
	return "", false
}

func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "help" {
		return nil
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	if a.configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		a.configPath = p
	}
	cfg, err := config.Load(a.configPath, func(c *config.Config) {
		if a.apiURL != "" {
			c.API.BaseURL = a.apiURL
		}
		if a.logLevel != "" {
			c.Log.Level = a.logLevel
		}
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.log = log

	if _, ok := annotation(cmd, offlineKey); ok {
		return nil
	}
	if err := a.connect(); err != nil {
		return err
	}
	return a.gate(cmd)
}

// connect restores the persisted session and builds the API client. The
// session cookie lives in the client's jar.
func (a *app) connect() error {
	base, err := url.Parse(a.cfg.API.BaseURL)
	if err != nil {
		return fmt.Errorf("parsing api.base_url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}

	path := a.cfg.SessionFile(a.configPath)
	a.session = session.New(session.NewFileStore(path),
		session.WithCookieJar(jar, base),
		session.WithLogger(a.log),
	)
	if _, err := a.session.Restore(); err != nil {
		return fmt.Errorf("restoring session from %s: %w", path, err)
	}

	a.client, err = api.New(a.cfg.API.BaseURL, a.session,
		api.WithHTTPClient(&http.Client{Jar: jar, Timeout: a.cfg.API.Timeout}),
		api.WithLogger(a.log),
	)
	return err
}

func (a *app) gate(cmd *cobra.Command) error {
	route, ok := annotation(cmd, routeKey)
	if !ok {
		return nil
	}
	d := gate.Decide(route, a.session.Authenticated())
	if d.Allow {
		return nil
	}
	if from := gate.From(d.Redirect); from != "" {
		return &loginRequiredError{route: from}
	}
	name := "current user"
	if u, ok := a.session.User(); ok {
		name = u.Username
	}
	return fmt.Errorf("already logged in as %s; run \"plctl logout\" first", name)
}

func route(path string) map[string]string {
	return map[string]string{routeKey: path}
}
