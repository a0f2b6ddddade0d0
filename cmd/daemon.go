package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ponytojas/go-freezer-control/internal/models"
)

// errUnknownActivation is returned by a one-shot stop that was refused
// because this process cannot know when the compressor was switched on.
var errUnknownActivation = errors.New("compressor activation time unknown to this process: " +
	"stop through the running controller with --daemon, or pass --force")

func addDaemonFlag(cmd *cobra.Command, url *string) {
	cmd.Flags().StringVar(url, "daemon", "", "base URL of a running controller's HTTP API, e.g. http://localhost:8080")
}

// daemonOutcome is the subset of the API's outcome response the CLI needs.
type daemonOutcome struct {
	Outcome     models.OutcomeKind `json:"outcome"`
	WaitSeconds float64            `json:"wait_seconds"`
	Error       string             `json:"error"`
}

// forward sends command to the running controller so its minimum run
// guard, which knows the activation time, decides.
func forward(ctx context.Context, baseURL, command string) (models.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/api/v1/compressor/" + command
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("build %s request: %w", command, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("reach controller: %w", err)
	}
	defer resp.Body.Close()

	var body daemonOutcome
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Outcome{}, fmt.Errorf("decode %s response (status %d): %w", command, resp.StatusCode, err)
	}
	out := models.Outcome{
		Kind: body.Outcome,
		Wait: time.Duration(body.WaitSeconds * float64(time.Second)),
	}
	if body.Error != "" {
		return out, fmt.Errorf("controller: %s", body.Error)
	}
	return out, nil
}
