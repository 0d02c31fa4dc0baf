//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestComicModerationLifecycle(t *testing.T) {
	author := registerUser(t, "author")
	moderator := registerUser(t, "moderator")
	setRole(t, moderator.username, "moderator")

	var submitted struct {
		Comic struct {
			ID           int    `json:"id"`
			PublicStatus string `json:"public_status"`
		} `json:"comic"`
		Moderation struct {
			ID     int    `json:"id"`
			Status string `json:"status"`
		} `json:"moderation"`
	}
	status, body := call(t, http.MethodPost, "/comics", author.token, map[string]string{
		"title":       "Lighthouse Keeper",
		"description": "A quiet story about a loud storm.",
	}, &submitted)
	if status != http.StatusCreated {
		t.Fatalf("submit comic status %d: %s", status, body)
	}
	if submitted.Moderation.Status != "pending" || submitted.Comic.PublicStatus != "unpublished" {
		t.Fatalf("unexpected submission state: %+v", submitted)
	}

	path := fmt.Sprintf("/moderation/%d", submitted.Moderation.ID)
	if status, body := call(t, http.MethodPost, path+"/approve", author.token, nil, nil); status != http.StatusForbidden {
		t.Fatalf("author approve status %d: %s", status, body)
	}
	if status, body := call(t, http.MethodPost, path+"/approve", moderator.token, nil, nil); status != http.StatusOK {
		t.Fatalf("approve status %d: %s", status, body)
	}

	var conflict struct {
		Error   string `json:"error"`
		Current struct {
			Status string `json:"status"`
		} `json:"current"`
	}
	status, body = call(t, http.MethodPost, path+"/reject", moderator.token, map[string]string{"reason": "late"}, &conflict)
	if status != http.StatusConflict {
		t.Fatalf("second decision status %d: %s", status, body)
	}
	if conflict.Current.Status != "approved" {
		t.Fatalf("conflict should carry the approved record, got %q", conflict.Current.Status)
	}

	var comic struct {
		PublicStatus string `json:"public_status"`
	}
	if status, body := call(t, http.MethodGet, fmt.Sprintf("/comics/%d", submitted.Comic.ID), moderator.token, nil, &comic); status != http.StatusOK {
		t.Fatalf("get comic status %d: %s", status, body)
	}
	if comic.PublicStatus != "published" {
		t.Fatalf("expected published comic, got %q", comic.PublicStatus)
	}

	waitForNotification(t, author.token, "approved")
}

func TestReportBanLifecycle(t *testing.T) {
	reporter := registerUser(t, "reporter")
	target := registerUser(t, "target")
	moderator := registerUser(t, "reviewer")
	setRole(t, moderator.username, "moderator")

	var report struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	}
	status, body := call(t, http.MethodPost, "/reports", reporter.token, map[string]any{
		"target_id": target.id,
		"reason":    "spam",
	}, &report)
	if status != http.StatusCreated {
		t.Fatalf("create report status %d: %s", status, body)
	}

	if status, body := call(t, http.MethodPost, "/reports", reporter.token, map[string]any{
		"target_id": target.id,
		"reason":    "spam again",
	}, nil); status != http.StatusConflict {
		t.Fatalf("duplicate report status %d: %s", status, body)
	}

	path := fmt.Sprintf("/reports/%d", report.ID)
	if status, body := call(t, http.MethodPost, path+"/process", moderator.token, map[string]string{
		"action": "ban",
		"note":   "repeat offender",
	}, &report); status != http.StatusOK {
		t.Fatalf("process report status %d: %s", status, body)
	}
	if report.Status != "resolved" {
		t.Fatalf("expected resolved report, got %q", report.Status)
	}

	if status, body := call(t, http.MethodGet, "/auth/me", target.token, nil, nil); status != http.StatusForbidden {
		t.Fatalf("banned account status %d: %s", status, body)
	}

	if status, body := call(t, http.MethodPost, path+"/reject", moderator.token, nil, nil); status != http.StatusConflict {
		t.Fatalf("reject processed report status %d: %s", status, body)
	}

	waitForNotification(t, reporter.token, "resolved")
}

func TestConcurrentDuplicateReports(t *testing.T) {
	reporter := registerUser(t, "racer")
	target := registerUser(t, "raced")

	payload, err := json.Marshal(map[string]any{"target_id": target.id, "reason": "spam"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	const callers = 8
	statuses := make([]int, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			statuses[i], errs[i] = post(baseURL+"/reports", reporter.token, payload)
		}()
	}
	close(start)
	wg.Wait()

	created := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("post report: %v", errs[i])
		}
		switch statuses[i] {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
		default:
			t.Fatalf("unexpected report status %d", statuses[i])
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one report created, got %d", created)
	}

	conn, err := openDB()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	var pending int
	if err := conn.QueryRow(
		"SELECT COUNT(*) FROM reports WHERE reporter_id = $1 AND target_id = $2 AND status = 'pending'",
		reporter.id, target.id,
	).Scan(&pending); err != nil {
		t.Fatalf("count reports: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected one pending report, got %d", pending)
	}
}

func post(url, token string, payload []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

type account struct {
	id       int
	username string
	token    string
}

func registerUser(t *testing.T, prefix string) account {
	t.Helper()

	username := fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	var parsed struct {
		Token string `json:"token"`
		User  struct {
			ID int `json:"id"`
		} `json:"user"`
	}
	status, body := call(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"name":     "Test " + prefix,
		"password": "testpass123!",
	}, &parsed)
	if status != http.StatusCreated {
		t.Fatalf("register status %d: %s", status, body)
	}
	if parsed.Token == "" {
		t.Fatalf("missing token in register response")
	}
	return account{id: parsed.User.ID, username: username, token: parsed.Token}
}

func setRole(t *testing.T, username, role string) {
	t.Helper()

	conn, err := openDB()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := conn.ExecContext(ctx, "UPDATE users SET role = $1, updated_at = NOW() WHERE username = $2", role, username); err != nil {
		t.Fatalf("set role: %v", err)
	}
}

func waitForNotification(t *testing.T, token, contains string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var items []struct {
			Title   string `json:"title"`
			Message string `json:"message"`
		}
		if status, _ := call(t, http.MethodGet, "/notifications", token, nil, &items); status == http.StatusOK {
			for _, item := range items {
				text := strings.ToLower(item.Title + " " + item.Message)
				if strings.Contains(text, contains) {
					return
				}
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("no notification mentioning %q", contains)
}

func call(t *testing.T, method, path, token string, payload, out any) (int, string) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && len(data) > 0 {
		_ = json.Unmarshal(data, out)
	}
	return resp.StatusCode, strings.TrimSpace(string(data))
}
