package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roby2358/oblique/internal/engine"
	"github.com/roby2358/oblique/internal/task"
)

type options struct {
	baseURL     string
	acct        string
	count       int
	interDelay  time.Duration
	waitTimeout time.Duration
	texts       []string
	verbose     bool
}

type injectRequest struct {
	Acct     string `json:"acct"`
	StatusID string `json:"status_id,omitempty"`
	Text     string `json:"text"`
}

type injectResponse struct {
	TaskID string `json:"task_id"`
}

type wsEnvelope struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
	Status string `json:"status,omitempty"`
}

type chainResult struct {
	taskID string
	status string
	at     time.Time
}

type summary struct {
	min time.Duration
	p50 time.Duration
	max time.Duration
	avg time.Duration
}

var defaultTexts = []string{
	"I keep rewriting the same verse. What would you try?",
	"Our team ships late every sprint. Any angle we are missing?",
	"This painting feels finished but wrong. Thoughts?",
	"Stuck choosing between two endings for my story.",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "replyprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "replyprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interMS int
	var waitMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "oblique base URL")
	flag.StringVar(&cfg.acct, "acct", "probe", "author account for the synthetic mentions")
	flag.IntVar(&cfg.count, "count", 10, "number of mentions to inject")
	flag.IntVar(&interMS, "inter-ms", 100, "delay between injections in milliseconds")
	flag.IntVar(&waitMS, "wait-ms", 30000, "timeout waiting for all chains to finish in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "mention texts separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print probe progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.count <= 0 {
		return options{}, fmt.Errorf("count must be > 0")
	}
	if interMS < 0 {
		interMS = 0
	}
	if waitMS < 1000 {
		waitMS = 1000
	}
	cfg.interDelay = time.Duration(interMS) * time.Millisecond
	cfg.waitTimeout = time.Duration(waitMS) * time.Millisecond

	cfg.texts = parseTexts(textsRaw)
	if len(cfg.texts) == 0 {
		return options{}, fmt.Errorf("texts produced no non-empty mentions")
	}
	return cfg, nil
}

func parseTexts(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultTexts...)
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, res, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()
	if res != nil {
		res.Body.Close()
	}

	resultCh := make(chan chainResult, 256)
	readErrCh := make(chan error, 1)
	go readLoop(conn, resultCh, readErrCh)

	httpClient := &http.Client{Timeout: 15 * time.Second}
	submitted := make(map[string]time.Time, cfg.count)
	for i := 0; i < cfg.count; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		taskID, err := injectMention(ctx, httpClient, cfg, i, text)
		if err != nil {
			return fmt.Errorf("inject mention %d: %w", i+1, err)
		}
		submitted[taskID] = time.Now()
		if cfg.verbose {
			fmt.Printf("replyprobe: submitted %d/%d task=%s text=%q\n", i+1, cfg.count, taskID, text)
		}
		if cfg.interDelay > 0 && i < cfg.count-1 {
			time.Sleep(cfg.interDelay)
		}
	}

	latencies, failed, err := awaitChains(submitted, resultCh, readErrCh, cfg)
	if err != nil {
		return err
	}

	if len(latencies) > 0 {
		s := summarize(latencies)
		fmt.Printf("replyprobe: finished=%d min=%s p50=%s avg=%s max=%s\n",
			len(latencies), s.min, s.p50, s.avg, s.max)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d chains did not succeed: %s", len(failed), cfg.count, strings.Join(failed, ", "))
	}
	return nil
}

func awaitChains(submitted map[string]time.Time, resultCh <-chan chainResult, readErrCh <-chan error, cfg options) ([]time.Duration, []string, error) {
	timer := time.NewTimer(cfg.waitTimeout)
	defer timer.Stop()

	latencies := make([]time.Duration, 0, len(submitted))
	var failed []string
	pending := len(submitted)
	for pending > 0 {
		select {
		case res := <-resultCh:
			start, ok := submitted[res.taskID]
			if !ok {
				continue
			}
			delete(submitted, res.taskID)
			pending--
			elapsed := res.at.Sub(start)
			if res.status == string(task.StatusSucceeded) {
				latencies = append(latencies, elapsed)
			} else {
				failed = append(failed, fmt.Sprintf("%s=%s", res.taskID, res.status))
			}
			if cfg.verbose {
				fmt.Printf("replyprobe: finished task=%s status=%s latency=%s\n", res.taskID, res.status, elapsed)
			}
		case err := <-readErrCh:
			return nil, nil, fmt.Errorf("ws read: %w", err)
		case <-timer.C:
			return nil, nil, fmt.Errorf("timeout after %s with %d chains unfinished", cfg.waitTimeout, pending)
		}
	}
	return latencies, failed, nil
}

func injectMention(ctx context.Context, client *http.Client, cfg options, seq int, text string) (string, error) {
	payload, err := json.Marshal(injectRequest{
		Acct:     cfg.acct,
		StatusID: fmt.Sprintf("probe-%d-%d", time.Now().UnixMilli(), seq),
		Text:     text,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/mentions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out injectResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.TaskID) == "" {
		return "", fmt.Errorf("missing task_id in response")
	}
	return out.TaskID, nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/events/ws"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, resultCh chan<- chainResult, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type != string(engine.EventFinished) {
			continue
		}
		select {
		case resultCh <- chainResult{taskID: env.TaskID, status: env.Status, at: time.Now()}:
		default:
		}
	}
}

func summarize(durations []time.Duration) summary {
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return summary{
		min: sorted[0],
		p50: sorted[len(sorted)/2],
		max: sorted[len(sorted)-1],
		avg: total / time.Duration(len(sorted)),
	}
}
