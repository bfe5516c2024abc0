// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/ozwillo/oauth2-client/oidc/internal/base62"
	"github.com/ozwillo/oauth2-client/oidc/internal/strutils"
	"github.com/stretchr/testify/require"
)

// Test provider endpoint paths. They follow the Ozwillo kernel's layout.
const (
	TestAuthPath        = "/a/auth"
	TestTokenPath       = "/a/token"
	TestUserInfoPath    = "/a/userinfo"
	TestKeysPath        = "/a/keys"
	TestDeprovisionPath = "/apps/pending-instance/"
)

// TestProvider is a local OAuth2/OIDC identity provider which makes writing
// tests much easier. It serves discovery, authorization, token, userinfo,
// JWKS and pending-instance deprovisioning endpoints over TLS.
//
// Token requests are accepted form or JSON encoded. Errors are written flat
// ({"error": "invalid_grant"}) unless SetStructuredErrors is used.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks *jose.JSONWebKeySet

	mu                  sync.Mutex
	allowedRedirectURIs []string
	clientID            string
	clientSecret        string
	subject             string
	expectedAuthCode    string
	expectedAuthNonce   string
	customClaims        map[string]interface{}
	userInfoReply       map[string]interface{}
	expiry              time.Duration
	structuredErrors    bool
	replyStatus         int
	replyBody           string
	challenge           string
	challengeMethod     string
	lastNonce           string
	lastAuthRequest     url.Values
	lastTokenRequest    map[string]string
	issuedAccessTokens  map[string]struct{}
	issuedRefreshTokens map[string]struct{}
	dismissedInstances  []string
	dismissStatus       int

	ecdsaPublicKey  string
	ecdsaPrivateKey string
}

// StartTestProvider creates a disposable TestProvider which is stopped when
// the test ends.
//
// Supported options: WithTestPort
func StartTestProvider(t *testing.T, opt ...Option) *TestProvider {
	t.Helper()
	require := require.New(t)
	opts := getTestProviderOpts(opt...)

	p := &TestProvider{
		allowedRedirectURIs: []string{
			"https://example.com",
		},
		clientID:            "test-client-id",
		clientSecret:        "test-client-secret",
		subject:             "5f2a8b34-6a9f-4c2b-8d0e-0c1b7a1e3f10",
		expectedAuthCode:    "test-auth-code",
		expiry:              time.Hour,
		issuedAccessTokens:  map[string]struct{}{},
		issuedRefreshTokens: map[string]struct{}{},
		userInfoReply: map[string]interface{}{
			"email":          "alice@example.com",
			"email_verified": true,
			"name":           "Alice Martin",
			"given_name":     "Alice",
			"family_name":    "Martin",
			"locale":         "fr-FR",
		},
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	if opts.withPort != 0 {
		p.httpServer = httptestNewUnstartedServerWithPort(t, p, opts.withPort)
	} else {
		p.httpServer = httptest.NewUnstartedServer(p)
	}
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http.Client which trusts the test provider.
func (p *TestProvider) HTTPClient() *http.Client { return p.httpServer.Client() }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// Descriptor returns an OIDC Descriptor for the test provider.
func (p *TestProvider) Descriptor() *Descriptor {
	return &Descriptor{
		Name:           "test-provider",
		AuthURL:        p.Addr() + TestAuthPath,
		TokenURL:       p.Addr() + TestTokenPath,
		UserInfoURL:    p.Addr() + TestUserInfoPath,
		DeprovisionURL: p.Addr() + TestDeprovisionPath + InstanceIDPlaceholder,
		DefaultScopes:  []string{"openid", "email", "profile"},
		ResponseMode:   "query",
		OIDC:           true,
	}
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows. An empty secret accepts public clients.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// ClientCreds returns the configured client credentials.
func (p *TestProvider) ClientCreds() (clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetExpectedAuthCode configures the auth code to return from the
// authorization endpoint and the allowed auth code for the token endpoint.
// An empty code makes the authorization endpoint deny every request.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce value required by the
// authorization endpoint and embedded in id_tokens.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs for
// the OIDC workflow. If not configured a sample of "https://example.com" is
// used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject sets the sub of issued id_tokens and userinfo replies.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject = sub
}

// SetCustomClaims lets you set claims to return in the JWT issued by the OIDC
// workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetUserInfoReply sets the claims returned by the userinfo endpoint. The
// sub is always added.
func (p *TestProvider) SetUserInfoReply(reply map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoReply = reply
}

// SetExpectedExpiry sets the expires_in of issued tokens. Zero omits it.
func (p *TestProvider) SetExpectedExpiry(exp time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiry = exp
}

// SetStructuredErrors switches the token endpoint between flat errors and
// {"error": {"code": ..., "message": ...}} errors.
func (p *TestProvider) SetStructuredErrors(structured bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.structuredErrors = structured
}

// SetTokenReply forces the token endpoint to reply with the raw status and
// body. A zero status restores the normal behavior.
func (p *TestProvider) SetTokenReply(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyStatus = status
	p.replyBody = body
}

// SetPKCEVerifier sets the verifier the token endpoint requires with
// authorization codes. Normally the challenge is learnt from the
// authorization request.
func (p *TestProvider) SetPKCEVerifier(v CodeVerifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v == nil {
		p.challenge, p.challengeMethod = "", ""
		return
	}
	p.challenge, p.challengeMethod = v.Challenge(), string(v.Method())
}

// SetDismissStatus sets the status replied by the deprovisioning endpoint.
// Zero means 204.
func (p *TestProvider) SetDismissStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissStatus = status
}

// LastAuthRequest returns the query of the last authorization request.
func (p *TestProvider) LastAuthRequest() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuthRequest
}

// LastTokenRequest returns the decoded body of the last token request.
func (p *TestProvider) LastTokenRequest() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make(map[string]string, len(p.lastTokenRequest))
	for k, v := range p.lastTokenRequest {
		cp[k] = v
	}
	return cp
}

// DismissedInstances returns the ids received by the deprovisioning
// endpoint.
func (p *TestProvider) DismissedInstances() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dismissedInstances...)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case req.URL.Path == "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer           string   `json:"issuer"`
			AuthEndpoint     string   `json:"authorization_endpoint"`
			TokenEndpoint    string   `json:"token_endpoint"`
			JWKSURI          string   `json:"jwks_uri"`
			UserinfoEndpoint string   `json:"userinfo_endpoint"`
			ChallengeMethods []string `json:"code_challenge_methods_supported"`
			ResponseModes    []string `json:"response_modes_supported"`
			Algs             []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:           p.Addr(),
			AuthEndpoint:     p.Addr() + TestAuthPath,
			TokenEndpoint:    p.Addr() + TestTokenPath,
			JWKSURI:          p.Addr() + TestKeysPath,
			UserinfoEndpoint: p.Addr() + TestUserInfoPath,
			ChallengeMethods: []string{string(S256)},
			ResponseModes:    []string{"query"},
			Algs:             []string{string(jose.ES256)},
		}
		_ = p.writeJSON(w, &reply)

	case req.URL.Path == TestAuthPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.handleAuth(w, req)

	case req.URL.Path == TestTokenPath:
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.handleToken(w, req)

	case req.URL.Path == TestUserInfoPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.handleUserInfo(w, req)

	case req.URL.Path == TestKeysPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case strings.HasPrefix(req.URL.Path, TestDeprovisionPath):
		if req.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(req.URL.Path, TestDeprovisionPath)
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		p.dismissedInstances = append(p.dismissedInstances, id)
		if p.dismissStatus != 0 && p.dismissStatus != http.StatusNoContent {
			p.writeTokenError(w, p.dismissStatus, "invalid_request", "unable to dismiss instance")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) handleAuth(w http.ResponseWriter, req *http.Request) {
	qv := req.URL.Query()
	p.lastAuthRequest = qv

	redirectURI := qv.Get("redirect_uri")
	switch {
	case redirectURI == "":
		w.WriteHeader(http.StatusBadRequest)
		return
	case !strutils.StrListContains(p.allowedRedirectURIs, redirectURI):
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch {
	case qv.Get("response_type") != "code":
		p.writeAuthError(w, req, "unsupported_response_type", "")
		return
	case qv.Get("client_id") != p.clientID:
		p.writeAuthError(w, req, "unauthorized_client", "unknown client_id")
		return
	case qv.Get("state") == "":
		p.writeAuthError(w, req, "invalid_request", "missing state parameter")
		return
	case p.expectedAuthCode == "":
		p.writeAuthError(w, req, "access_denied", "")
		return
	case p.expectedAuthNonce != "" && p.expectedAuthNonce != qv.Get("nonce"):
		p.writeAuthError(w, req, "access_denied", "unexpected nonce")
		return
	case qv.Get("code_challenge") != "" && qv.Get("code_challenge_method") == "":
		p.writeAuthError(w, req, "invalid_request", "missing code_challenge_method")
		return
	}
	p.challenge = qv.Get("code_challenge")
	p.challengeMethod = qv.Get("code_challenge_method")
	p.lastNonce = qv.Get("nonce")

	u, _ := url.Parse(redirectURI)
	rq := u.Query()
	rq.Set("state", qv.Get("state"))
	rq.Set("code", p.expectedAuthCode)
	u.RawQuery = rq.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func (p *TestProvider) handleToken(w http.ResponseWriter, req *http.Request) {
	params, err := p.readTokenRequest(req)
	if err != nil {
		p.writeTokenError(w, http.StatusBadRequest, "invalid_request", "unable to read body")
		return
	}
	p.lastTokenRequest = params

	if p.replyStatus != 0 {
		w.WriteHeader(p.replyStatus)
		_, _ = w.Write([]byte(p.replyBody))
		return
	}

	if params["client_id"] != p.clientID ||
		(p.clientSecret != "" && subtle.ConstantTimeCompare([]byte(params["client_secret"]), []byte(p.clientSecret)) != 1) {
		p.writeTokenError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	withIDToken := false
	switch params["grant_type"] {
	case GrantTypeAuthorizationCode:
		switch {
		case !strutils.StrListContains(p.allowedRedirectURIs, params["redirect_uri"]):
			p.writeTokenError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case p.expectedAuthCode == "" || params["code"] != p.expectedAuthCode:
			p.writeTokenError(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		case p.challenge != "" && !p.verifierMatches(params["code_verifier"]):
			p.writeTokenError(w, http.StatusBadRequest, "invalid_grant", "code_verifier doesn't match")
			return
		}
		withIDToken = true
	case GrantTypeRefreshToken:
		if _, ok := p.issuedRefreshTokens[params["refresh_token"]]; !ok {
			p.writeTokenError(w, http.StatusBadRequest, "invalid_grant", "unknown refresh_token")
			return
		}
		withIDToken = true
	case GrantTypeClientCredentials:
	default:
		p.writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type "+params["grant_type"]+" is not supported")
		return
	}

	at, err := base62.Random(32)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	p.issuedAccessTokens[at] = struct{}{}
	reply := map[string]interface{}{
		"access_token": at,
		"token_type":   "Bearer",
	}
	if p.expiry > 0 {
		reply["expires_in"] = int64(p.expiry.Seconds())
	}
	if s := params["scope"]; s != "" {
		reply["scope"] = s
	}
	if withIDToken {
		rt, err := base62.Random(32)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		p.issuedRefreshTokens[rt] = struct{}{}
		reply["refresh_token"] = rt

		idt, err := p.idToken()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		reply["id_token"] = idt
	}
	_ = p.writeJSON(w, reply)
}

func (p *TestProvider) handleUserInfo(w http.ResponseWriter, req *http.Request) {
	at := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	if _, ok := p.issuedAccessTokens[at]; !ok {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		p.writeTokenError(w, http.StatusUnauthorized, "invalid_token", "unknown access_token")
		return
	}
	reply := make(map[string]interface{}, len(p.userInfoReply)+1)
	for k, v := range p.userInfoReply {
		reply[k] = v
	}
	reply["sub"] = p.subject
	_ = p.writeJSON(w, reply)
}

func (p *TestProvider) idToken() (string, error) {
	now := time.Now()
	claims := jwt.Claims{
		Subject:   p.subject,
		Issuer:    p.Addr(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(5 * time.Minute)),
		Audience:  jwt.Audience{p.clientID},
	}
	private := map[string]interface{}{}
	switch {
	case p.expectedAuthNonce != "":
		private["nonce"] = p.expectedAuthNonce
	case p.lastNonce != "":
		private["nonce"] = p.lastNonce
	}
	for k, v := range p.customClaims {
		private[k] = v
	}
	return signJWT(p.ecdsaPrivateKey, claims, private)
}

func (p *TestProvider) verifierMatches(verifier string) bool {
	if verifier == "" {
		return false
	}
	switch ChallengeMethod(p.challengeMethod) {
	case Plain:
		return verifier == p.challenge
	default:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]) == p.challenge
	}
}

// readTokenRequest decodes a form or JSON token request body.
func (p *TestProvider) readTokenRequest(req *http.Request) (map[string]string, error) {
	params := map[string]string{}
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
			return nil, err
		}
		return params, nil
	}
	if err := req.ParseForm(); err != nil {
		return nil, err
	}
	for k := range req.PostForm {
		params[k] = req.PostForm.Get(k)
	}
	return params, nil
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthError(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	u, _ := url.Parse(qv.Get("redirect_uri"))
	rq := u.Query()
	rq.Set("state", qv.Get("state"))
	rq.Set("error", errorCode)
	if errorMessage != "" {
		rq.Set("error_description", errorMessage)
	}
	u.RawQuery = rq.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func (p *TestProvider) writeTokenError(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	var body interface{}
	switch {
	case p.structuredErrors:
		body = map[string]interface{}{
			"error": map[string]interface{}{
				"code":    statusCode,
				"message": errorCode,
			},
			"error_description": errorMessage,
		}
	default:
		body = map[string]interface{}{
			"error":             errorCode,
			"error_description": errorMessage,
		}
	}
	w.WriteHeader(statusCode)
	_ = p.writeJSON(w, body)
}

// testProviderOptions is the set of available options for StartTestProvider.
type testProviderOptions struct {
	withPort int
}

// testProviderDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func testProviderDefaults() testProviderOptions {
	return testProviderOptions{}
}

// getTestProviderOpts gets the defaults and applies the opt overrides passed
// in.
func getTestProviderOpts(opt ...Option) testProviderOptions {
	opts := testProviderDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTestPort provides an optional port for the test provider. The default
// is a random free port.
//
// Valid for: StartTestProvider
func WithTestPort(port int) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withPort = port
		}
	}
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)
	require.NotEmpty(port)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
