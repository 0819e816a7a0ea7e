package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ObjectInfo is the subscription record returned by the auth server for
// a registered installation.
type ObjectInfo struct {
	Result     int    `json:"result"`
	ObjectID   string `json:"objectid"`
	ExpireDate string `json:"expiredate"`
	Active     bool   `json:"active"`
	Message    string `json:"message"`
}

const expireDateLayout = "2006-01-02"

// Expiry parses the subscription expiry date. A missing or malformed
// date yields the zero time.
func (o ObjectInfo) Expiry() time.Time {
	ts, err := time.Parse(expireDateLayout, o.ExpireDate)
	if err != nil {
		return time.Time{}
	}
	return ts
}

var (
	ErrObjectNotFound = errors.New("subscription: object not found")
	ErrRejected       = errors.New("subscription: validation rejected")
)

// Query carries the locally known descriptive fields of a session.
type Query struct {
	ObjectID   string
	ObjectName string
	AppType    string
	AppVersion string
	DBType     string
}

// Validator is implemented by the auth-server client; the TCP server
// depends on this interface so tests can substitute a fake.
type Validator interface {
	Validate(ctx context.Context, q Query) (*ObjectInfo, error)
}

// Client talks to the auth server's /objectinfo endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Validate asks the auth server whether the installation is registered
// and its subscription active. result == 0 denotes success; any
// transport failure or non-zero result is an authentication failure for
// the caller, never a fatal condition.
func (c *Client) Validate(ctx context.Context, q Query) (*ObjectInfo, error) {

	params := url.Values{}
	params.Set("objectid", q.ObjectID)
	params.Set("objectname", q.ObjectName)
	params.Set("apptype", q.AppType)
	params.Set("version", q.AppVersion)
	params.Set("dbtype", q.DBType)

	endpoint := c.baseURL + "/objectinfo?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("subscription: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscription: auth server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subscription: auth server returned %d", resp.StatusCode)
	}

	var info ObjectInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("subscription: failed to decode response: %w", err)
	}

	if info.Result != 0 {
		if info.ObjectID == "" {
			return &info, ErrObjectNotFound
		}
		return &info, ErrRejected
	}

	return &info, nil
}
