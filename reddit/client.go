package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAuthBase = "https://www.reddit.com"
	defaultAPIBase  = "https://oauth.reddit.com"
)

// Client talks to the Reddit API as a script app (password grant).
type Client struct {
	cli       *http.Client
	authBase  string
	apiBase   string
	userAgent string
	subreddit string

	clientID     string
	clientSecret string
	username     string
	password     string

	token       string
	tokenExpiry time.Time
}

type ClientArgs struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	Subreddit    string

	// Overridable for tests. Empty means the real Reddit endpoints.
	AuthBase string
	APIBase  string
}

func NewClient(args ClientArgs) *Client {
	if args.AuthBase == "" {
		args.AuthBase = defaultAuthBase
	}
	if args.APIBase == "" {
		args.APIBase = defaultAPIBase
	}

	return &Client{
		cli: &http.Client{
			Timeout: 15 * time.Second,
		},
		authBase:     args.AuthBase,
		apiBase:      args.APIBase,
		userAgent:    args.UserAgent,
		subreddit:    args.Subreddit,
		clientID:     args.ClientID,
		clientSecret: args.ClientSecret,
		username:     args.Username,
		password:     args.Password,
	}
}

func (c *Client) Subreddit() string {
	return c.subreddit
}

// Authenticate performs the password-grant token fetch. The caller is
// expected to treat a failure here as fatal.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, "POST", c.authBase+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("token request returned non-200 status: %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("token response contained no access token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*http.Response, error) {
	if c.token != "" && time.Until(c.tokenExpiry) < time.Minute {
		if err := c.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("failed to refresh token: %w", err)
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, err
	}

	if err := statusError(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusForbidden:
		return ErrPermission
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimit
	case code != http.StatusOK:
		return fmt.Errorf("received non-200 response code: %d", code)
	}
	return nil
}

// Me returns the authenticated account's username, for startup confirmation.
func (c *Client) Me(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, "GET", "/api/v1/me", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var me struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return "", err
	}

	return me.Name, nil
}

// FetchRecentPosts returns up to limit newest submissions, newest first.
func (c *Client) FetchRecentPosts(ctx context.Context, limit int) ([]Post, error) {
	path := "/r/" + c.subreddit + "/new.json?raw_json=1&limit=" + strconv.Itoa(limit)

	resp, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		posts = append(posts, child.Data.post())
	}

	return posts, nil
}

// SendDirectMessage sends a private message to the named account. A deleted
// or unmessageable recipient yields ErrDelivery.
func (c *Client) SendDirectMessage(ctx context.Context, author, subject, body string) error {
	if author == "" {
		return fmt.Errorf("%w: author account is deleted", ErrDelivery)
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("to", author)
	form.Set("subject", subject)
	form.Set("text", body)

	resp, err := c.do(ctx, "POST", "/api/compose", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeAPIErrors(resp.Body)
}

// RemovePost removes the submission identified by its fullname as a
// moderator action.
func (c *Client) RemovePost(ctx context.Context, fullname string) error {
	form := url.Values{}
	form.Set("id", fullname)
	form.Set("spam", "false")

	resp, err := c.do(ctx, "POST", "/api/remove", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return nil
}

// ReplyPublic posts a top-level comment on the submission.
func (c *Client) ReplyPublic(ctx context.Context, fullname, body string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", fullname)
	form.Set("text", body)

	resp, err := c.do(ctx, "POST", "/api/comment", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeAPIErrors(resp.Body)
}

// decodeAPIErrors reads the api_type=json response envelope, which reports
// failures in the body of a 200 response.
func decodeAPIErrors(r io.Reader) error {
	var envelope struct {
		JSON struct {
			Errors [][]any `json:"errors"`
		} `json:"json"`
	}
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return err
	}

	if len(envelope.JSON.Errors) == 0 {
		return nil
	}

	first := envelope.JSON.Errors[0]
	if len(first) == 0 {
		return fmt.Errorf("api returned an unnamed error")
	}

	code, _ := first[0].(string)
	switch code {
	case "USER_DOESNT_EXIST", "NOT_WHITELISTED_BY_USER", "MUTED_FROM_SUBREDDIT":
		return fmt.Errorf("%w: %s", ErrDelivery, code)
	case "RATELIMIT":
		return fmt.Errorf("%w: %s", ErrRateLimit, code)
	case "THREAD_LOCKED", "DELETED_LINK":
		return fmt.Errorf("%w: %s", ErrNotFound, code)
	default:
		return fmt.Errorf("api returned error: %s", code)
	}
}
