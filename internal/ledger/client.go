package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"ecogame/internal/types"
)

// LeaderboardPath is the REST resource served by the leaderboard service.
const LeaderboardPath = "/api/leaderboard"

// DefaultTimeout bounds every remote ledger call.
const DefaultTimeout = 5 * time.Second

// Client is a Ledger backed by a remote leaderboard service. The server
// applies best-of merging, so UpsertAndAdd submits the running session
// score rather than a delta.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient returns a client for the leaderboard at baseURL. A
// non-positive timeout means DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type submission struct {
	Name  string `json:"name"`
	Total int64  `json:"total"`
}

func (c *Client) fetch(ctx context.Context) ([]types.PlayerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+LeaderboardPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("leaderboard GET returned %d", resp.StatusCode)
	}
	var records []types.PlayerRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	Sort(records)
	return records, nil
}

// FetchAll implements Ledger.
func (c *Client) FetchAll(ctx context.Context) []types.PlayerRecord {
	records, err := c.fetch(ctx)
	if err != nil {
		log.Printf("[WARN] Remote leaderboard unavailable: %v", err)
		return []types.PlayerRecord{}
	}
	return records
}

func (c *Client) submit(ctx context.Context, name string, total int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(submission{Name: name, Total: total})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LeaderboardPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("leaderboard POST returned %d", resp.StatusCode)
	}
	return nil
}

// Records fetches the remote leaderboard.
func (c *Client) Records(ctx context.Context) ([]types.PlayerRecord, error) {
	return c.fetch(ctx)
}

// Upsert submits value and reads back the merged record.
func (c *Client) Upsert(ctx context.Context, name string, value int64) (types.PlayerRecord, error) {
	name = NormalizeName(name)
	if err := c.submit(ctx, name, value); err != nil {
		return types.PlayerRecord{}, fmt.Errorf("submit score: %w", err)
	}
	records, err := c.fetch(ctx)
	if err != nil {
		return types.PlayerRecord{}, fmt.Errorf("refresh leaderboard: %w", err)
	}
	rec, ok := Find(records, name)
	if !ok {
		return types.PlayerRecord{}, fmt.Errorf("player %q missing after submit", name)
	}
	return rec, nil
}

// UpsertAndAdd implements Ledger. On any failure, or if the player cannot be
// found afterwards, the submitted value is echoed back as the total.
func (c *Client) UpsertAndAdd(ctx context.Context, name string, delta int64) types.PlayerRecord {
	rec, err := c.Upsert(ctx, name, delta)
	if err != nil {
		log.Printf("[WARN] Remote score for %q not confirmed: %v", NormalizeName(name), err)
		return types.PlayerRecord{Name: NormalizeName(name), Total: delta, LastPlayed: types.NewTimestamp(time.Now())}
	}
	return rec
}
