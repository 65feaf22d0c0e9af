package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/notify"
	"github.com/kgcorpus/tagging-console/pkg/retry"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
)

var errNotLoggedIn = errors.New("not logged in; run 'annotatectl login' first")

// cliEnv is the environment the command line reads.
type cliEnv struct {
	APIBaseURL string        `env:"API_BASE_URL" env-default:""`
	Timeout    time.Duration `env:"API_TIMEOUT" env-default:"0s"`
	ConfigDir  string        `env:"ANNOTATECTL_CONFIG_DIR" env-default:""`
	PageSize   int           `env:"PAGE_SIZE" env-default:"20"`
	Taxonomy   string        `env:"TAXONOMY_PATH" env-default:""`
}

// app is what a subcommand needs: a backend client, the stored credential
// and where to write.
type app struct {
	env     cliEnv
	creds   *credentialStore
	saved   *savedCredential
	client  *backend.Client
	logger  *zap.Logger
	out     io.Writer
	jsonOut bool
}

func newApp(cmd *cobra.Command) (*app, error) {
	var env cliEnv
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, err := newCLILogger(verbose)
	if err != nil {
		return nil, err
	}

	creds, err := newCredentialStore(env.ConfigDir)
	if err != nil {
		return nil, err
	}
	saved, err := creds.Load()
	if err != nil {
		return nil, err
	}

	apiURL, _ := cmd.Flags().GetString("api")
	if apiURL == "" {
		apiURL = env.APIBaseURL
	}
	if apiURL == "" && saved != nil {
		apiURL = saved.APIBaseURL
	}
	apiURL = strings.TrimRight(apiURL, "/")
	if apiURL == "" {
		return nil, errors.New("no backend URL: pass --api or set API_BASE_URL")
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	return &app{
		env:   env,
		creds: creds,
		saved: saved,
		client: backend.NewClient(apiURL, logger,
			backend.WithTimeout(env.Timeout),
			backend.WithRetry(retry.DefaultConfig())),
		logger:  logger,
		out:     cmd.OutOrStdout(),
		jsonOut: jsonOut,
	}, nil
}

func newCLILogger(verbose bool) (*zap.Logger, error) {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return logConfig.Build()
}

// credential returns the stored credential for the configured backend.
func (a *app) credential() (*backend.Credential, error) {
	if a.saved == nil || a.saved.Credential.Empty() {
		return nil, errNotLoggedIn
	}
	if a.saved.APIBaseURL != a.client.BaseURL() {
		return nil, fmt.Errorf("logged in to %s, not %s; run 'annotatectl login'", a.saved.APIBaseURL, a.client.BaseURL())
	}
	return a.saved.Credential, nil
}

// bound returns the client bound to the stored credential.
func (a *app) bound() (*backend.Bound, error) {
	cred, err := a.credential()
	if err != nil {
		return nil, err
	}
	return a.client.As(cred), nil
}

func (a *app) taxonomy() (*taxonomy.Taxonomy, error) {
	if a.env.Taxonomy == "" {
		return taxonomy.Default()
	}
	return taxonomy.Load(a.env.Taxonomy)
}

// fail turns a backend error into the same message the web console shows.
// An expired credential is forgotten so the next command asks for a login.
func (a *app) fail(action string, err error) error {
	if backend.CategoryOf(err) == backend.CategoryUnauthorized {
		if rmErr := a.creds.Remove(); rmErr != nil {
			a.logger.Warn("Failed to remove stale credential", zap.Error(rmErr))
		}
	}
	n := notify.FromError(action, err)
	if n.Message == "" {
		return errors.New(n.Title)
	}
	return errors.New(n.Message)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
