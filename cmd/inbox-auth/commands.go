package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BearBump/ReturnBox/config"
	"github.com/BearBump/ReturnBox/internal/auth/oauthsession"
	"github.com/BearBump/ReturnBox/internal/cache/rediscache"
	"github.com/BearBump/ReturnBox/internal/integrations/inbox"
	"github.com/BearBump/ReturnBox/internal/storage/filestore"
	"github.com/BearBump/ReturnBox/internal/storage/pgitems"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

type hiddenSet interface {
	Add(ctx context.Context, ids ...string) error
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

type profileClient interface {
	GetProfile(ctx context.Context, token string) (*inbox.Profile, error)
}

type cliDeps struct {
	loadConfig   func(path string) (*config.Config, error)
	sessionStore func(cfg *config.Config) oauthsession.Store
	hidden       func(cfg *config.Config) (hiddenSet, func(), error)
	profiles     func(cfg *config.Config) profileClient
}

func defaultDeps() cliDeps {
	return cliDeps{
		loadConfig: config.LoadConfig,
		sessionStore: func(cfg *config.Config) oauthsession.Store {
			return oauthsession.NewKeyringStore(cfg.Inbox.KeyringService)
		},
		hidden: openHidden,
		profiles: func(cfg *config.Config) profileClient {
			return inbox.New(cfg.Inbox.APIBaseURL, time.Duration(cfg.Inbox.TimeoutSeconds)*time.Second)
		},
	}
}

func openHidden(cfg *config.Config) (hiddenSet, func(), error) {
	if addr := cfg.Redis.Addr(); addr != "" && cfg.Redis.UseForSeen {
		rs := rediscache.NewSeenSet(addr, cfg.Redis.SeenSetKey)
		return rs, func() { _ = rs.Close() }, nil
	}
	if cfg.Storage.Driver == "postgres" {
		pg, err := pgitems.New(cfg.Database.ConnString())
		if err != nil {
			return nil, nil, err
		}
		return pg.SeenSet(), pg.Close, nil
	}
	dir := cfg.Storage.Dir
	if dir == "" {
		dir = "./data"
	}
	fs, err := filestore.New(dir)
	if err != nil {
		return nil, nil, err
	}
	return fs.SeenSet(), fs.Close, nil
}

type cli struct {
	deps       cliDeps
	configPath string
	cfg        *config.Config
}

func newRootCmd(deps cliDeps) *cobra.Command {
	c := &cli{deps: deps}
	root := &cobra.Command{
		Use:               "inbox-auth",
		Short:             "Manage the inbox OAuth session and hidden messages of ReturnBox",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.deps.loadConfig(c.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("configPath"), "Path to the YAML config")

	root.AddCommand(c.urlCmd(), c.loginCmd(), c.statusCmd(), c.logoutCmd(), c.hiddenCmd())
	return root
}

func (c *cli) manager() *oauthsession.Manager {
	return oauthsession.NewManager(oauthsession.Config{
		ClientID:    c.cfg.Inbox.ClientID,
		RedirectURL: c.cfg.Inbox.RedirectURI,
		AuthURL:     c.cfg.Inbox.AuthURL,
		TokenURL:    c.cfg.Inbox.TokenURL,
		Scopes:      c.cfg.Inbox.Scopes,
	}, c.deps.sessionStore(c.cfg))
}

func (c *cli) urlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the consent URL together with its state and PKCE verifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			state := uuid.NewString()
			verifier := oauth2.GenerateVerifier()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, c.manager().AuthCodeURL(state, verifier))
			fmt.Fprintf(out, "state:    %s\n", state)
			fmt.Fprintf(out, "verifier: %s\n", verifier)
			return nil
		},
	}
}

func (c *cli) loginCmd() *cobra.Command {
	var code, verifier string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange an authorization code for tokens and store them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m := c.manager()
			if _, err := m.Exchange(ctx, code, verifier); err != nil {
				return fmt.Errorf("failed to exchange code: %w", err)
			}
			email := ""
			if token, err := m.Token(ctx); err == nil {
				if p, err := c.deps.profiles(c.cfg).GetProfile(ctx, token); err == nil {
					email = p.EmailAddress
					if err := m.SetEmail(email); err != nil {
						return fmt.Errorf("failed to store account email: %w", err)
					}
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: profile lookup failed: %v\n", err)
				}
			}
			if email == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "signed in")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", email)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the redirect")
	cmd.Flags().StringVar(&verifier, "verifier", "", "PKCE verifier printed by the url command")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether an inbox session is stored",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := c.manager()
			if err := m.Load(); err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			printStatus(cmd.OutOrStdout(), m.Session())
			return nil
		},
	}
}

func printStatus(out io.Writer, s *oauthsession.Session) {
	if s == nil {
		fmt.Fprintln(out, "not signed in")
		return
	}
	email := s.Email
	if email == "" {
		email = "(unknown account)"
	}
	fmt.Fprintf(out, "signed in: %s\n", email)
	if !s.Expiry.IsZero() {
		fmt.Fprintf(out, "access token expires: %s\n", s.Expiry.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(out, "refresh token: %t\n", s.RefreshToken != "")
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.manager().Logout(); err != nil {
				return fmt.Errorf("failed to sign out: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func (c *cli) hiddenCmd() *cobra.Command {
	hidden := &cobra.Command{
		Use:   "hidden",
		Short: "Manage messages that are no longer offered as candidates",
	}

	withSet := func(fn func(cmd *cobra.Command, set hiddenSet, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			set, closeFn, err := c.deps.hidden(c.cfg)
			if err != nil {
				return fmt.Errorf("failed to open hidden messages: %w", err)
			}
			defer closeFn()
			return fn(cmd, set, args)
		}
	}

	hidden.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List hidden message ids",
			RunE: withSet(func(cmd *cobra.Command, set hiddenSet, _ []string) error {
				ids, err := set.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "count",
			Short: "Print the number of hidden messages",
			RunE: withSet(func(cmd *cobra.Command, set hiddenSet, _ []string) error {
				n, err := set.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "hide <message-id>...",
			Short: "Hide messages so they are never offered",
			Args:  cobra.MinimumNArgs(1),
			RunE: withSet(func(cmd *cobra.Command, set hiddenSet, args []string) error {
				return set.Add(cmd.Context(), args...)
			}),
		},
		&cobra.Command{
			Use:   "unhide <message-id>",
			Short: "Offer a message again on the next scan",
			Args:  cobra.ExactArgs(1),
			RunE: withSet(func(cmd *cobra.Command, set hiddenSet, args []string) error {
				return set.Remove(cmd.Context(), args[0])
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget every hidden message",
			RunE: withSet(func(cmd *cobra.Command, set hiddenSet, _ []string) error {
				return set.Clear(cmd.Context())
			}),
		},
	)
	return hidden
}
