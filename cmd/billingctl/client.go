package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/tenant"
)

var (
	errUsage         = errors.New("invalid usage")
	errInvalidTenant = errors.New("a tenant UUID is required")
	errRequestFailed = errors.New("request failed")
)

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, hc *http.Client) *client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *client) cancel(ctx context.Context, tenantID uuid.UUID, out io.Writer) error {
	return c.do(ctx, http.MethodPost, "/billing/cancel-subscription", tenantID, out)
}

func (c *client) check(ctx context.Context, tenantID uuid.UUID, out io.Writer) error {
	return c.do(ctx, http.MethodGet, "/billing/check-subscription", tenantID, out)
}

// do prints the response body indented. A non-2xx status is still printed,
// then reported as an error so scripts see a non-zero exit.
func (c *client) do(ctx context.Context, method, path string, tenantID uuid.UUID, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set(tenant.DefaultHeader, tenantID.String())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	if _, err := fmt.Fprintln(out, string(body)); err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s returned %d", errRequestFailed, method, path, resp.StatusCode)
	}
	return nil
}
