// Package main implements pubctl, a CLI for the contentd publishing API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/contentd/internal/http"
)

var (
	// serverURL is the base URL for the contentd HTTP server
	serverURL string
	actorID   string
	actorRole string
	asJSON    bool
	timeout   time.Duration

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pubctl",
	Short: "CLI for the contentd publishing API",
	Long: `pubctl drives the contentd publishing engine over HTTP: create content,
publish it (the server picks a strategy), cancel scheduled publications, and
record review decisions.

The acting identity is sent in the X-Actor-ID and X-Actor-Role headers and
defaults to $PUBCTL_ACTOR / $PUBCTL_ROLE.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverURL, "server", envOr("PUBCTL_SERVER", "http://localhost:8420"), "contentd server URL")
	pf.StringVar(&actorID, "actor", os.Getenv("PUBCTL_ACTOR"), "acting user id")
	pf.StringVar(&actorRole, "role", envOr("PUBCTL_ROLE", "editor"), "acting user role")
	pf.BoolVar(&asJSON, "json", false, "Output raw JSON")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(createCmd, publishCmd, cancelCmd, reviewCmd, decideCmd, withdrawCmd, statsCmd, healthCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   httpserver.ErrorResponse
}

func (e *apiError) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Body.Kind != "" {
		return fmt.Sprintf("%s (%d %s)", msg, e.Status, e.Body.Kind)
	}
	return fmt.Sprintf("%s (%d)", msg, e.Status)
}

// client calls the contentd API as one actor.
type client struct {
	base  string
	actor string
	role  string
	http  *http.Client
}

func newClient() *client {
	return &client{
		base:  strings.TrimRight(serverURL, "/"),
		actor: actorID,
		role:  actorRole,
		http:  &http.Client{Timeout: timeout},
	}
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.actor != "" {
		req.Header.Set(httpserver.HeaderActorID, c.actor)
	}
	if c.role != "" {
		req.Header.Set(httpserver.HeaderActorRole, c.role)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", c.base+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		ae := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, &ae.Body)
		return ae
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
