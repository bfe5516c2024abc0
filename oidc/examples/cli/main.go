// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/ozwillo/oauth2-client/instrument"
	"github.com/ozwillo/oauth2-client/oidc"
	"github.com/ozwillo/oauth2-client/oidc/callback"
	"github.com/ozwillo/oauth2-client/providers/ozwillo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const successHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Authentication succeeded</title></head>
<body><p>Authentication succeeded. You can close this window and return to the terminal.</p></body>
</html>`

func main() {
	usePKCE := flag.Bool("pkce", true, "use PKCE (S256)")
	maxAge := flag.Int("max-age", -1, "max age of user authentication")
	scopes := flag.String("scopes", "", "comma separated list of additional scopes to request")
	prompt := flag.String("prompt", "", "comma separated list of prompts (none, login, consent, select_account)")
	dismiss := flag.String("dismiss-instance", "", "dismiss the pending instance with this id and exit")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n\n", err)
		os.Exit(1)
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "ozwillo-cli",
		Level:  hclog.LevelFromString(cfg.LogLevel),
		Output: os.Stderr,
	})

	// handle ctrl-c while waiting for the callback
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := prometheus.NewRegistry()
	client, err := newClient(ctx, cfg, splitList(*scopes), reg, logger)
	if err != nil {
		logger.Error("unable to create client", "error", err)
		os.Exit(1)
	}

	if *dismiss != "" {
		ok, err := ozwillo.DismissInstance(ctx, client, *dismiss)
		if err != nil {
			logger.Error("unable to dismiss instance", "instance_id", *dismiss, "error", err)
			os.Exit(1)
		}
		logger.Info("dismissed instance", "instance_id", *dismiss, "sent", ok)
		return
	}

	var requestOptions []oidc.Option
	if *usePKCE {
		v, err := oidc.NewCodeVerifier()
		if err != nil {
			logger.Error("unable to create code verifier", "error", err)
			os.Exit(1)
		}
		requestOptions = append(requestOptions, oidc.WithPKCE(v))
	}
	if *maxAge >= 0 {
		requestOptions = append(requestOptions, oidc.WithMaxAge(uint(*maxAge)))
	}
	if ps := splitList(*prompt); len(ps) > 0 {
		prompts := make([]oidc.Prompt, 0, len(ps))
		for _, p := range ps {
			prompts = append(prompts, oidc.Prompt(p))
		}
		requestOptions = append(requestOptions, oidc.WithPrompts(prompts...))
	}

	oidcRequest, err := oidc.NewRequest(cfg.AttemptExp, cfg.redirectURL(), requestOptions...)
	if err != nil {
		logger.Error("unable to create request", "error", err)
		os.Exit(1)
	}
	requests := callback.NewRequestCache()
	if err := requests.Add(oidcRequest); err != nil {
		logger.Error("unable to cache request", "error", err)
		os.Exit(1)
	}

	successFn, successCh := success()
	errorFn, failedCh := failed()
	handler, err := callback.AuthCode(ctx, client, requests, successFn, errorFn)
	if err != nil {
		logger.Error("error creating auth code handler", "error", err)
		os.Exit(1)
	}

	authURL, err := client.AuthURLForRequest(ctx, oidcRequest)
	if err != nil {
		logger.Error("error getting auth url", "error", err)
		os.Exit(1)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", cfg.Port))
	if err != nil {
		logger.Error("unable to listen", "error", err)
		os.Exit(1)
	}
	srv := &http.Server{
		Handler:           newRouter(handler, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// Open the default browser to the callback URL.
	fmt.Fprintf(os.Stderr, "Complete the login via your provider. Launching browser to:\n\n    %s\n\n\n", authURL)
	if err := openURL(authURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error attempting to automatically open browser: '%s'.\nPlease visit the authorization URL manually.", err)
	}

	// Wait for either the callback to finish, SIGINT to be received or the
	// request to expire
	select {
	case err := <-srvCh:
		logger.Error("server closed with error", "error", err)
	case resp := <-successCh:
		if resp.Error != nil {
			logger.Error("callback succeeded with error", "error", resp.Error)
			return
		}
		printToken(resp.Token)
		printClaims(resp.Token.IDToken())
		printUser(ctx, client, resp.Token)
	case err := <-failedCh:
		logger.Error("callback failed", "error", err)
	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "Interrupted")
	case <-time.After(cfg.AttemptExp):
		fmt.Fprintf(os.Stderr, "Timed out waiting for response from provider")
	}
}

// newClient creates the Client with an instrumented transport. The
// descriptor is discovered when an issuer is configured, otherwise the
// Ozwillo descriptor is used.
func newClient(ctx context.Context, cfg *config, scopes []string, reg prometheus.Registerer, logger hclog.Logger) (*oidc.Client, error) {
	const op = "newClient"
	oidcCfg, err := oidc.NewConfig(
		cfg.ClientID,
		oidc.ClientSecret(cfg.ClientSecret),
		cfg.redirectURL(),
		oidc.WithScopes(scopes...),
		oidc.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	hc, err := oidcCfg.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	base, err := oidc.NewHTTPTransport(hc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tr, err := instrument.NewTransport(base, instrument.WithMetrics(instrument.NewMetrics(reg)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d := ozwillo.Descriptor(ozwillo.WithBaseURL(cfg.BaseURL))
	if cfg.Issuer != "" {
		if d, err = oidc.DiscoverDescriptor(ctx, cfg.Issuer, oidc.WithTimeout(cfg.Timeout)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	client, err := oidc.NewClient(d, oidcCfg, oidc.WithTransport(tr), oidc.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

// newRouter serves the callback and the metrics of reg.
func newRouter(cb http.HandlerFunc, reg prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/callback", cb)
	r.Post("/callback", cb)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type successResp struct {
	Token oidc.Token // Token is populated when the callback successfully exchanges the auth code.
	Error error      // Error is populated when there's an error during the callback
}

func success() (callback.SuccessResponseFunc, <-chan successResp) {
	const op = "success"
	doneCh := make(chan successResp, 1)
	var once sync.Once
	return func(state string, t oidc.Token, w http.ResponseWriter, req *http.Request) {
		var responseErr error
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(successHTML)); err != nil {
			responseErr = fmt.Errorf("%s: %w", op, err)
		}
		once.Do(func() { doneCh <- successResp{t, responseErr} })
	}, doneCh
}

func failed() (callback.ErrorResponseFunc, <-chan error) {
	const op = "failed"
	doneCh := make(chan error, 1)
	var once sync.Once
	return func(state string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
		var responseErr error
		switch {
		case e != nil:
			responseErr = fmt.Errorf("%s: callback error: %w", op, e)
			w.WriteHeader(http.StatusInternalServerError)
		case r != nil:
			responseErr = fmt.Errorf("%s: callback error from provider: %w", op, r.ProviderError())
			w.WriteHeader(http.StatusUnauthorized)
		default:
			responseErr = fmt.Errorf("%s: unknown error from callback", op)
			w.WriteHeader(http.StatusInternalServerError)
		}
		_, _ = w.Write([]byte(responseErr.Error()))
		once.Do(func() { doneCh <- responseErr })
	}, doneCh
}

type respToken struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scopes       []string
}

func printClaims(t oidc.IDToken) {
	const op = "printClaims"
	if t == "" {
		return
	}
	var tokenClaims map[string]interface{}
	if err := t.Claims(&tokenClaims); err != nil {
		fmt.Fprintf(os.Stderr, "IDToken claims: error parsing: %s", err)
		return
	}
	idData, err := json.MarshalIndent(tokenClaims, "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "IDToken claims:%s\n", idData)
}

func printUser(ctx context.Context, c *oidc.Client, t oidc.Token) {
	const op = "printUser"
	u, err := ozwillo.FetchUser(ctx, c, t)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: channel received success, but error getting user: %s", op, err)
		return
	}
	infoData, err := json.MarshalIndent(u.ToMap(), "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "User %s:%s\n", u.ID(), infoData)
}

func printToken(t oidc.Token) {
	const op = "printToken"
	tokenData, err := json.MarshalIndent(printableToken(t), "", "    ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s", op, err)
		return
	}
	fmt.Fprintf(os.Stderr, "channel received success.\nToken:%s\n", tokenData)
}

// printableToken is needed because the oidc.Token redacts the IDToken,
// AccessToken and RefreshToken
func printableToken(t oidc.Token) respToken {
	return respToken{
		IDToken:      string(t.IDToken()),
		AccessToken:  string(t.AccessToken()),
		RefreshToken: string(t.RefreshToken()),
		Expiry:       t.Expiry(),
		Scopes:       t.Scopes(),
	}
}
