package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/propmanage/propsync/internal/config"
	"github.com/propmanage/propsync/internal/gateway"
	"github.com/propmanage/propsync/internal/logging"
	"github.com/propmanage/propsync/internal/syncstore"
	"github.com/propmanage/propsync/internal/tokenfile"
	"github.com/propmanage/propsync/internal/transport"
)

// app holds the client stack one command runs against.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	client    *transport.Client
	gateway   *gateway.Gateway
	store     *syncstore.Store
	mutations *syncstore.Coordinator
	tokenFile string
	out       io.Writer
	json      bool
}

func newApp(opts *rootOptions, out io.Writer) (*app, error) {
	switch opts.output {
	case "table", "json":
	default:
		return nil, fmt.Errorf("unknown output format %q", opts.output)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.baseURL != "" {
		cfg.Client.BaseURL = opts.baseURL
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tokenFile := opts.tokenFile
	if tokenFile == "" {
		tokenFile = cfg.Client.TokenFile
	}
	if tokenFile == "" {
		tokenFile = defaultTokenFile()
	}
	session := transport.NewSession()
	if tokenFile != "" {
		tokens, err := tokenfile.Load(tokenFile)
		switch {
		case err == nil:
			session.SetTokens(tokens)
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, tokenfile.ErrNoToken):
		default:
			return nil, err
		}
	}

	client := transport.NewClient(transport.Options{
		BaseURL:    strings.TrimRight(cfg.Client.BaseURL, "/"),
		Session:    session,
		Timeout:    cfg.Client.Timeout,
		MaxRetries: cfg.Client.MaxRetries,
		RateLimit:  cfg.Client.RateLimit,
		Burst:      cfg.Client.Burst,
		Logger:     logger,
	})
	gw := gateway.New(client, logger)
	store := syncstore.New(gw, syncstore.Options{
		MaxAge:          cfg.Store.MaxAge,
		RefetchObserved: cfg.Store.RefetchObserved,
		Logger:          logger,
	})
	return &app{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		gateway:   gw,
		store:     store,
		mutations: syncstore.NewCoordinator(store),
		tokenFile: tokenFile,
		out:       out,
		json:      opts.output == "json",
	}, nil
}

func (a *app) close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// requireSession fails fast when no login has been saved.
func (a *app) requireSession() error {
	if a.client.Session().Authenticated() {
		return nil
	}
	return transport.Validationf("not logged in; run `propsync login` first")
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "propsync", "token.json")
}
