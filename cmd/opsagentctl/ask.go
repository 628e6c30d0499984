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
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a running opsagent server a question",
	Long: `Send a query to POST /agent on a running server and print the answer.

Example:
  opsagentctl ask "How many tasks are still To Do?"
  opsagentctl ask --session standup "And which of them are High priority?"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url, _ := cmd.Flags().GetString("url")
		session, _ := cmd.Flags().GetString("session")
		token, _ := cmd.Flags().GetString("token")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		answer, err := ask(ctx, http.DefaultClient, url, strings.Join(args, " "), session, token)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().String("url", fmt.Sprintf("http://localhost:%d", defaultPort()), "Server base URL")
	askCmd.Flags().String("session", "", "Session id for multi-turn conversations")
	askCmd.Flags().String("token", os.Getenv("OPSAGENT_TOKEN"), "Bearer token (default $OPSAGENT_TOKEN)")
	askCmd.Flags().Duration("timeout", 3*time.Minute, "Request timeout")
}

type askRequest struct {
	Query     string  `json:"query"`
	SessionID *string `json:"session_id"`
}

func ask(ctx context.Context, client *http.Client, baseURL, query, session, token string) (string, error) {
	reqBody := askRequest{Query: query}
	if session != "" {
		reqBody.SessionID = &session
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/agent", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%d: %s", resp.StatusCode, parsed.Error)
	}
	return parsed.Response, nil
}
