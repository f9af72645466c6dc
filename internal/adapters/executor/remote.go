package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

// Remote implements ports.Executor against the queue-announcer HTTP
// protocol (spec §6): a remote host exposes a token-scoped queue that
// hands out task hashes and accepts completion reports. Remote does not
// itself run the command. Execute only waits until the queue hands out the
// requested hash; completion reports are sent separately through Report.
type Remote struct {
	client *http.Client
	host   string
	token  string
	logger ports.Logger

	queueID  string
	queueURL string
}

// QueueURL returns the URL the queue-announcer assigned this queue, the
// value `submit` records to <cafdir>/LAST_QUEUE.
func (r *Remote) QueueURL() string { return r.queueURL }

// NewRemote creates a Remote executor against host, creating a queue
// scoped to token via POST {host}/token/{token}.
func NewRemote(ctx context.Context, client *http.Client, host, token string, logger ports.Logger) (*Remote, error) {
	if client == nil {
		client = http.DefaultClient
	}
	r := &Remote{client: client, host: host, token: token, logger: logger}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/token/%s", host, token), nil)
	if err != nil {
		return nil, zerr.Wrap(err, "remote executor: build queue request")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, zerr.Wrap(err, "remote executor: create queue")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, zerr.With(zerr.New("remote executor: create queue failed"), "status", resp.StatusCode)
	}

	var body struct {
		URL string `json:"url"`
		ID  string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, zerr.Wrap(err, "remote executor: decode queue response")
	}
	r.queueID = body.ID
	r.queueURL = body.URL

	return r, nil
}

// Execute takes the task's hash in place of the command (remote tasks are
// addressed by identity, not by invocation string) and polls the queue
// every two seconds until the queue hands out that hash, then returns nil.
// It posts nothing to the queue and does not inspect the returned state.
func (r *Remote) Execute(ctx context.Context, _ string, taskHash string, _ []string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			next, err := r.pollNext(ctx)
			if err != nil {
				return err
			}
			if next != taskHash {
				continue
			}
			return nil
		}
	}
}

// PollNext returns the next task hash the queue-announcer hands out, for
// callers (e.g. a `go` worker loop) driving the queue directly rather than
// waiting on one specific hash through Execute.
func (r *Remote) PollNext(ctx context.Context) (string, error) {
	return r.pollNext(ctx)
}

func (r *Remote) pollNext(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/queue/%s", r.host, r.queueID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", zerr.Wrap(err, "remote executor: build poll request")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	resp, err := r.client.Do(req)
	if err != nil {
		return "", zerr.Wrap(err, "remote executor: poll queue")
	}
	defer resp.Body.Close()

	var body struct {
		Hash  string `json:"hash"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", zerr.Wrap(err, "remote executor: decode poll response")
	}
	return body.Hash, nil
}

// Report posts a completion notice for hash back to the queue: POST
// .../queue/{id} {hash, state}.
func (r *Remote) Report(ctx context.Context, hash, state string) error {
	payload, err := json.Marshal(struct {
		Hash  string `json:"hash"`
		State string `json:"state"`
	}{Hash: hash, State: state})
	if err != nil {
		return zerr.Wrap(err, "remote executor: encode report")
	}

	url := fmt.Sprintf("%s/queue/%s", r.host, r.queueID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return zerr.Wrap(err, "remote executor: build report request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := r.client.Do(req)
	if err != nil {
		return zerr.Wrap(err, "remote executor: send report")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return zerr.With(zerr.New("remote executor: report rejected"), "status", resp.StatusCode)
	}
	return nil
}
