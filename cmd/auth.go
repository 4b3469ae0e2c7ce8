package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pageview-counter/internal/counter"
	"github.com/JakeFAU/pageview-counter/internal/credential"
)

const remoteTimeout = 10 * time.Second

func newAuthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspects or revokes the analytics credential",
		Long: `Without --addr the commands act on the credential loaded from config in
this process. With --addr they call a running server's /v1/auth routes, which is
the only way to revoke the credential a server holds.`,
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "", "base URL of a running server, e.g. http://localhost:8080")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Prints the credential state without exposing tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if addr == "" {
				return printJSON(cmd, a.Credentials.Status())
			}
			var status credential.Status
			if err := callServer(cmd.Context(), http.MethodGet, addr, "/v1/auth/status", a.Config.Auth.APIKey, &status); err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke",
		Short: "Forgets the held credential; live imports fail until it is replaced",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if addr == "" {
				a.Credentials.Revoke()
			} else if err := callServer(cmd.Context(), http.MethodPost, addr, "/v1/auth/revoke", a.Config.Auth.APIKey, nil); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "credential revoked")
			return err
		},
	})
	return cmd
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Lists the analytics views the credential can read, grouped by web property",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			props := []counter.Property{}
			if a.Profiles != nil {
				if props, err = a.Profiles.ListProfiles(cmd.Context()); err != nil {
					return err
				}
			}
			return printJSON(cmd, props)
		},
	}
}

// callServer issues one request against a running server and decodes the
// JSON response into out when out is non-nil.
func callServer(ctx context.Context, method, addr, path, apiKey string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(addr, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
