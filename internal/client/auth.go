package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cli/go-gh/v2/pkg/auth"

	"github.com/markis/gh-coverletter/internal/logger"
)

// Endpoints of the Copilot provider.
const (
	CopilotAPIBase = "https://api.githubcopilot.com"
	GitHubAPI      = "https://api.github.com"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("API key is not set: run `gh-coverletter config set api_key <key>`")

// TokenSource supplies the authentication headers for a request.
type TokenSource interface {
	Headers(ctx context.Context) (http.Header, error)
}

// StaticToken authenticates with a fixed bearer API key.
type StaticToken string

func (t StaticToken) Headers(context.Context) (http.Header, error) {
	key := strings.TrimSpace(string(t))
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+key)
	return h, nil
}

// AuthorizationResponse represents the structure of the response from the GitHub API for authorization.
type AuthorizationResponse struct {
	Token string `json:"token"`
}

// CopilotToken exchanges the local GitHub OAuth token for a short-lived
// Copilot API token on every call.
type CopilotToken struct {
	// GitHubAPI overrides the token exchange host.
	GitHubAPI string
	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client
	// OAuthToken returns the GitHub token; defaults to GitHubOAuthToken.
	OAuthToken func() (string, error)
	// Logger defaults to a discarding logger.
	Logger *log.Logger
}

// editorHeaders identify the integration to the Copilot API.
func editorHeaders() http.Header {
	h := http.Header{}
	h.Set("Editor-Version", "vscode/1.100.2")
	h.Set("Copilot-Integration-Id", "vscode-chat")
	return h
}

func (t CopilotToken) Headers(ctx context.Context) (http.Header, error) {
	lookup := t.OAuthToken
	if lookup == nil {
		lookup = GitHubOAuthToken
	}
	token, err := lookup()
	if err != nil {
		return nil, fmt.Errorf("failed to get GitHub token: %w", err)
	}

	base := t.GitHubAPI
	if base == "" {
		base = GitHubAPI
	}
	hc := t.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/copilot_internal/v2/token", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	headers := editorHeaders()
	for k := range headers {
		req.Header.Set(k, headers.Get(k))
	}
	req.Header.Set("Authorization", "Token "+token)

	l := t.Logger
	if l == nil {
		l = logger.Discard()
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			l.Warn("failed to close token response body", "err", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request failed with status code: %d", resp.StatusCode)
	}

	var auth AuthorizationResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if auth.Token == "" {
		return nil, errors.New("received empty token in response")
	}

	headers.Set("Authorization", "Bearer "+auth.Token)
	return headers, nil
}

// GitHubOAuthToken finds the GitHub token in the environment, the Copilot
// editor plugin's hosts.json/apps.json, or the gh CLI's stored login.
func GitHubOAuthToken() (string, error) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" && os.Getenv("CODESPACES") != "" {
		return token, nil
	}

	if dir, err := copilotConfigDir(); err == nil {
		for _, name := range []string{"hosts.json", "apps.json"} {
			data, err := os.ReadFile(filepath.Join(dir, "github-copilot", name))
			if err != nil {
				continue
			}
			var hosts map[string]map[string]any
			if err := json.Unmarshal(data, &hosts); err != nil {
				continue
			}
			if token := oauthTokenFor(hosts); token != "" {
				return token, nil
			}
		}
	}

	if token, _ := auth.TokenForHost("github.com"); token != "" {
		return token, nil
	}

	return "", errors.New("GitHub token not found in environment, config files or gh login")
}

func oauthTokenFor(hosts map[string]map[string]any) string {
	for host, entry := range hosts {
		if !strings.Contains(host, "github.com") {
			continue
		}
		if token, ok := entry["oauth_token"].(string); ok && token != "" {
			return token
		}
	}
	return ""
}

// copilotConfigDir determines the directory the Copilot plugins write to.
func copilotConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); isDir(xdg) {
		return xdg, nil
	}

	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); isDir(local) {
			return local, nil
		}
		if home := os.Getenv("HOME"); home != "" && isDir(filepath.Join(home, "AppData", "Local")) {
			return filepath.Join(home, "AppData", "Local"), nil
		}
	}

	usr, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	if dir := filepath.Join(usr.HomeDir, ".config"); isDir(dir) {
		return dir, nil
	}

	return "", errors.New("no valid config path found")
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
