package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func apiBaseURL() string {
	if v := os.Getenv("MAKERD_URL"); v != "" {
		return v
	}
	return "http://127.0.0.1:8090"
}

func apiRequest(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, apiBaseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", apiBaseURL(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("makerd returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func newRunCmd() *cobra.Command {
	var domain string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "submit a new session to a running makerd daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := apiRequest(http.MethodPost, "/v1/sessions", map[string]any{
				"domain":  domain,
				"prompt":  args[0],
				"dry_run": dryRun,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "domain configuration to run under")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "build the step plan without applying or verifying")
	cmd.MarkFlagRequired("domain")
	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [session-id]",
		Short: "resume a paused or failed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := apiRequest(http.MethodPost, "/v1/sessions/"+args[0]+"/resume", nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list known sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := apiRequest(http.MethodGet, "/v1/sessions", nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
}
