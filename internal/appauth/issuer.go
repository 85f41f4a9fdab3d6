package appauth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"authcore/internal/audit"
	"authcore/internal/config"
	"authcore/pkg/logging"
)

// ErrNotConfigured is returned when the issuer is used without an app ID
// or signing key.
var ErrNotConfigured = errors.New("app issuer is not configured: missing app id or private key")

const (
	// assertionBackdate shifts iat into the past to tolerate clock skew
	// between this process and the app platform.
	assertionBackdate = 60 * time.Second

	// assertionLifetime is how long a minted assertion stays valid. Short
	// enough that caching one is never worthwhile.
	assertionLifetime = 10 * time.Minute

	// refreshSkew is the guard window before expiry: a cached credential
	// inside this window is treated as a miss and refetched.
	refreshSkew = 60 * time.Second
)

// Issuer mints JWT assertions for the application and exchanges them for
// installation-scoped tokens, caching each installation's credential until
// shortly before expiry. Concurrent fetches for the same installation are
// coalesced so a cold cache costs one upstream call, not one per waiter.
type Issuer struct {
	cfg        config.AppConfig
	privateKey *rsa.PrivateKey
	sink       audit.Sink
	httpClient *http.Client
	clock      func() time.Time

	mu       sync.Mutex
	cache    map[int64]*InstallationCredential
	evictors map[int64]*time.Timer

	fetchGroup singleflight.Group
}

// Option configures the Issuer.
type Option func(*Issuer)

// WithHTTPClient overrides the HTTP client used for platform API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(i *Issuer) {
		i.httpClient = client
	}
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(i *Issuer) {
		i.clock = clock
	}
}

// NewIssuer creates an installation credential issuer from configuration.
// The private key is loaded eagerly so a bad key surfaces at startup, not
// on the first request.
func NewIssuer(cfg config.AppConfig, sink audit.Sink, opts ...Option) (*Issuer, error) {
	i := &Issuer{
		cfg:        cfg,
		sink:       sink,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		clock:      time.Now,
		cache:      make(map[int64]*InstallationCredential),
		evictors:   make(map[int64]*time.Timer),
	}
	for _, opt := range opts {
		opt(i)
	}

	pem := cfg.PrivateKeyPEM
	if pem == "" && cfg.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read app private key from %s: %w", cfg.PrivateKeyPath, err)
		}
		pem = string(data)
	}

	if pem != "" {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("failed to parse app private key: %w", err)
		}
		i.privateKey = key
	}

	return i, nil
}

func (i *Issuer) configured() bool {
	return i.cfg.AppID != "" && i.privateKey != nil
}

// MintAssertion signs a fresh RS256 JWT identifying the application.
// Assertions are recomputed on every call and never cached; their
// lifetime is too short to amortize.
func (i *Issuer) MintAssertion() (string, error) {
	if !i.configured() {
		return "", ErrNotConfigured
	}

	now := i.clock()
	claims := jwt.RegisteredClaims{
		Issuer:    i.cfg.AppID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(i.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign app assertion: %w", err)
	}
	return signed, nil
}

// InstallationToken returns a valid credential for the installation,
// serving from cache unless the cached entry is within the refresh-skew
// window of expiry.
func (i *Issuer) InstallationToken(ctx context.Context, installationID int64) (*InstallationCredential, error) {
	if !i.configured() {
		return nil, ErrNotConfigured
	}

	if cred := i.cachedCredential(installationID); cred != nil {
		return cred, nil
	}

	// Coalesce concurrent cold-cache fetches per installation.
	key := strconv.FormatInt(installationID, 10)
	v, err, _ := i.fetchGroup.Do(key, func() (interface{}, error) {
		// Another waiter may have populated the cache while this call
		// queued on the group.
		if cred := i.cachedCredential(installationID); cred != nil {
			return cred, nil
		}
		return i.fetchInstallationToken(ctx, installationID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*InstallationCredential), nil
}

// cachedCredential returns the cached credential unless it is absent or
// within the refresh-skew window of expiry.
func (i *Issuer) cachedCredential(installationID int64) *InstallationCredential {
	i.mu.Lock()
	defer i.mu.Unlock()

	cred, ok := i.cache[installationID]
	if !ok {
		return nil
	}
	if cred.ExpiresAt.Sub(i.clock()) < refreshSkew {
		return nil
	}
	return cred
}

func (i *Issuer) fetchInstallationToken(ctx context.Context, installationID int64) (*InstallationCredential, error) {
	assertion, err := i.MintAssertion()
	if err != nil {
		i.emitToken(installationID, audit.OutcomeFailure, err.Error())
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/app/installations/%d/access_tokens",
		strings.TrimSuffix(i.cfg.APIBaseURL, "/"), installationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		i.emitToken(installationID, audit.OutcomeFailure, err.Error())
		return nil, fmt.Errorf("installation token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		i.emitToken(installationID, audit.OutcomeFailure, err.Error())
		return nil, fmt.Errorf("failed to read installation token response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		logging.Debug("AppAuth", "Installation token rejected: installation=%d status=%d body=%s",
			installationID, resp.StatusCode, string(body))
		err := fmt.Errorf("installation token endpoint returned %d %s",
			resp.StatusCode, http.StatusText(resp.StatusCode))
		i.emitToken(installationID, audit.OutcomeFailure, err.Error())
		return nil, err
	}

	var tr installationTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		i.emitToken(installationID, audit.OutcomeFailure, err.Error())
		return nil, fmt.Errorf("failed to parse installation token response: %w", err)
	}

	cred := &InstallationCredential{
		InstallationID:  installationID,
		Value:           tr.Token,
		ExpiresAt:       tr.ExpiresAt,
		Permissions:     tr.Permissions,
		RepositoryScope: tr.RepositorySelection,
		Repositories:    tr.Repositories,
	}

	i.storeCredential(cred)
	i.emitToken(installationID, audit.OutcomeSuccess, "")
	logging.Debug("AppAuth", "Fetched installation token (installation=%d, expires %v)",
		installationID, cred.ExpiresAt)

	return cred, nil
}

// storeCredential replaces the cache entry and schedules its eviction at
// the start of the refresh-skew window. The eviction timer is a memory
// bound, not a correctness mechanism: reads independently re-check expiry.
func (i *Issuer) storeCredential(cred *InstallationCredential) {
	i.mu.Lock()
	defer i.mu.Unlock()

	id := cred.InstallationID
	i.cache[id] = cred

	if t, ok := i.evictors[id]; ok {
		t.Stop()
	}

	evictIn := cred.ExpiresAt.Sub(i.clock()) - refreshSkew
	if evictIn < 0 {
		evictIn = 0
	}
	i.evictors[id] = time.AfterFunc(evictIn, func() {
		i.evict(id, cred)
	})
}

// evict removes the entry only if it is still the same credential; a
// racing refresh wins over a stale timer.
func (i *Issuer) evict(installationID int64, cred *InstallationCredential) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cache[installationID] == cred {
		delete(i.cache, installationID)
		delete(i.evictors, installationID)
	}
}

// ListInstallations enumerates the application's installations using a
// fresh assertion.
func (i *Issuer) ListInstallations(ctx context.Context) ([]Installation, error) {
	if !i.configured() {
		return nil, ErrNotConfigured
	}

	var installations []Installation
	if err := i.getWithAssertion(ctx, "/app/installations", &installations); err != nil {
		return nil, err
	}
	return installations, nil
}

// Installation fetches a single installation by ID.
func (i *Issuer) Installation(ctx context.Context, installationID int64) (*Installation, error) {
	if !i.configured() {
		return nil, ErrNotConfigured
	}

	var installation Installation
	path := fmt.Sprintf("/app/installations/%d", installationID)
	if err := i.getWithAssertion(ctx, path, &installation); err != nil {
		return nil, err
	}
	return &installation, nil
}

// ValidatePermissions checks that the installation's token grants every
// required permission. An absent or "none" permission fails closed.
func (i *Issuer) ValidatePermissions(ctx context.Context, installationID int64, required []string) (bool, error) {
	cred, err := i.InstallationToken(ctx, installationID)
	if err != nil {
		return false, err
	}

	for _, name := range required {
		level, ok := cred.Permissions[name]
		if !ok || level == "" || level == "none" {
			logging.Debug("AppAuth", "Permission %q not granted for installation %d", name, installationID)
			return false, nil
		}
	}
	return true, nil
}

// ValidateRepositoryAccess reports whether the installation can reach the
// given repository. All-repository installations short-circuit true;
// selected-scope installations consult the cached repository list, falling
// back to a live listing when the token response did not enumerate it.
func (i *Issuer) ValidateRepositoryAccess(ctx context.Context, installationID int64, owner, repo string) (bool, error) {
	cred, err := i.InstallationToken(ctx, installationID)
	if err != nil {
		return false, err
	}

	if cred.RepositoryScope == RepositoryScopeAll {
		return true, nil
	}

	repos := cred.Repositories
	if len(repos) == 0 {
		repos, err = i.listAccessibleRepositories(ctx, cred)
		if err != nil {
			return false, err
		}
	}

	fullName := owner + "/" + repo
	for _, r := range repos {
		if r.FullName == fullName || (r.Owner.Login == owner && r.Name == repo) {
			return true, nil
		}
	}
	return false, nil
}

// listAccessibleRepositories lists the repositories reachable with an
// installation token.
func (i *Issuer) listAccessibleRepositories(ctx context.Context, cred *InstallationCredential) ([]Repository, error) {
	endpoint := strings.TrimSuffix(i.cfg.APIBaseURL, "/") + "/installation/repositories"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository listing request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Value)
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("repository listing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository listing returned %d %s",
			resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var list repositoryListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to parse repository listing: %w", err)
	}
	return list.Repositories, nil
}

// getWithAssertion performs an assertion-authenticated GET and decodes the
// JSON response into out.
func (i *Issuer) getWithAssertion(ctx context.Context, path string, out interface{}) error {
	assertion, err := i.MintAssertion()
	if err != nil {
		return err
	}

	endpoint := strings.TrimSuffix(i.cfg.APIBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request for %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d %s", path, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return nil
}

// Stop cancels all pending eviction timers. The issuer must not be used
// afterwards.
func (i *Issuer) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	for id, t := range i.evictors {
		t.Stop()
		delete(i.evictors, id)
	}
}

func (i *Issuer) emitToken(installationID int64, outcome audit.Outcome, errMsg string) {
	if i.sink == nil {
		return
	}

	var details map[string]string
	if errMsg != "" {
		details = map[string]string{"error": errMsg}
	}

	i.sink.Log(audit.Event{
		Action:   "app.installation_token",
		Outcome:  outcome,
		Resource: fmt.Sprintf("installation/%d", installationID),
		Details:  details,
		Source:   "app-issuer",
	})
}
