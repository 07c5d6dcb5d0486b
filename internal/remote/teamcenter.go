package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"tcprefs-go/internal/tc"
)

// Teamcenter REST service paths. The login call establishes a JSESSIONID
// cookie that scopes the rest of the session.
const (
	loginPath          = "/tc/JsonRestServices/Core-2011-06-Session/login"
	getPreferencesPath = "/tc/JsonRestServices/Administration-2012-09-PreferenceManagement/getPreferences"
)

const defaultTimeout = 5 * time.Minute

// Client implements tc.RemoteSource against a Teamcenter server's JSON REST
// services.
type Client struct {
	httpClient *http.Client
}

var _ tc.RemoteSource = (*Client)(nil)

// NewClient creates a Teamcenter client with the default timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Login authenticates against the server and returns a session carrying the
// server's session cookie.
func (c *Client) Login(ctx context.Context, baseURL, username, password string) (tc.RemoteSession, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	httpClient := &http.Client{
		Timeout: c.httpClient.Timeout,
		Jar:     jar,
	}

	body := map[string]any{
		"header": map[string]any{"state": map[string]any{}, "policy": map[string]any{}},
		"body": map[string]any{
			"credentials": map[string]string{
				"user":        username,
				"password":    password,
				"group":       "",
				"role":        "",
				"locale":      "",
				"descrimator": "tcprefs", // field name as Teamcenter spells it
			},
		},
	}

	var result struct {
		QName      string            `json:"QName"`
		ServerInfo map[string]string `json:"serverInfo"`
	}
	if err := postJSON(ctx, httpClient, base.String()+loginPath, body, &result); err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	if strings.Contains(result.QName, "Exception") {
		return nil, fmt.Errorf("login rejected by server")
	}

	return &session{httpClient: httpClient, baseURL: base.String()}, nil
}

// session is an authenticated connection to one Teamcenter server.
type session struct {
	httpClient *http.Client
	baseURL    string
}

var _ tc.RemoteSession = (*session)(nil)

// Wire shapes of the getPreferences response.
type preferencesResponse struct {
	QName    string              `json:"QName"`
	Response []rawPreferenceWire `json:"response"`
}

type rawPreferenceWire struct {
	Definition struct {
		Name             string `json:"name"`
		Category         string `json:"category"`
		Description      string `json:"description"`
		Type             int    `json:"type"`
		IsArray          bool   `json:"isArray"`
		IsDisabled       bool   `json:"isDisabled"`
		ProtectionScope  string `json:"protectionScope"`
		IsEnvEnabled     bool   `json:"isEnvEnabled"`
		IsOOTBPreference bool   `json:"isOOTBPreference"`
	} `json:"definition"`
	Values *struct {
		ValueOrigination string   `json:"valueOrigination"`
		Values           []string `json:"values"`
	} `json:"values"`
}

// FetchPreferences retrieves all preferences matching the given name
// patterns.
func (s *session) FetchPreferences(ctx context.Context, namePatterns []string, includeDescriptions bool) ([]tc.RawPreference, error) {
	body := map[string]any{
		"header": map[string]any{"state": map[string]any{}, "policy": map[string]any{}},
		"body": map[string]any{
			"preferenceNames":     namePatterns,
			"includeDescriptions": includeDescriptions,
		},
	}

	var result preferencesResponse
	if err := postJSON(ctx, s.httpClient, s.baseURL+getPreferencesPath, body, &result); err != nil {
		return nil, fmt.Errorf("getPreferences request: %w", err)
	}
	if strings.Contains(result.QName, "Exception") {
		return nil, fmt.Errorf("getPreferences rejected by server")
	}

	out := make([]tc.RawPreference, 0, len(result.Response))
	for _, w := range result.Response {
		p := tc.RawPreference{
			Definition: tc.RawDefinition{
				Name:             w.Definition.Name,
				Category:         w.Definition.Category,
				Description:      w.Definition.Description,
				Type:             w.Definition.Type,
				IsArray:          w.Definition.IsArray,
				IsDisabled:       w.Definition.IsDisabled,
				ProtectionScope:  w.Definition.ProtectionScope,
				IsEnvEnabled:     w.Definition.IsEnvEnabled,
				IsOOTBPreference: w.Definition.IsOOTBPreference,
			},
		}
		if w.Values != nil {
			p.Values = &tc.RawValues{
				ValueOrigination: w.Values.ValueOrigination,
				Values:           w.Values.Values,
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("unauthorized (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
