//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/server"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	setTestEnv()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAccountLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	email := fmt.Sprintf("user_%d@example.com", time.Now().UnixNano())
	password := "testpass123!"

	token, err := signUp(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if token == "" {
		t.Fatalf("expected sign-up token")
	}

	// Duplicate sign-up with the same email must be rejected without
	// creating a second account.
	if _, err := signUp(t, baseURL, email, password); err == nil {
		t.Fatalf("expected duplicate sign-up to fail")
	}

	// Wrong password and unknown email fail identically.
	if _, err := signIn(t, baseURL, email, "wrongpass"); err == nil {
		t.Fatalf("expected sign-in with wrong password to fail")
	}

	accessToken, err := signIn(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if accessToken == token {
		t.Fatalf("expected sign-in to issue a fresh token")
	}

	profile, err := getProfile(t, baseURL, accessToken)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile["email"] != email || profile["name"] != "Test User" {
		t.Fatalf("unexpected profile: %v", profile)
	}

	if err := patchProfile(t, baseURL, accessToken, map[string]any{"name": "Renamed", "age": 31}); err != nil {
		t.Fatalf("patch profile: %v", err)
	}

	updated, err := getProfile(t, baseURL, accessToken)
	if err != nil {
		t.Fatalf("get updated profile: %v", err)
	}
	if updated["name"] != "Renamed" {
		t.Fatalf("expected updated name, got %v", updated["name"])
	}
	if age, ok := updated["age"].(float64); !ok || int(age) != 31 {
		t.Fatalf("expected age 31, got %v", updated["age"])
	}

	if err := expectUnauthorized(t, baseURL, "garbage-token"); err != nil {
		t.Fatalf("expected unauthorized for garbage token: %v", err)
	}
}

func signUp(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	payload := map[string]any{
		"email":    email,
		"password": password,
		"name":     "Test User",
		"age":      30,
	}
	status, body, err := postJSON(baseURL+"/users/sign-up", payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("sign-up status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if !parsed.Success || parsed.Token == "" {
		return "", fmt.Errorf("missing token in sign-up response")
	}
	return parsed.Token, nil
}

func signIn(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	status, body, err := postJSON(baseURL+"/users/sign-in", payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("sign-in status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Success     bool   `json:"success"`
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if !parsed.Success || parsed.AccessToken == "" {
		return "", fmt.Errorf("missing access token in sign-in response")
	}
	return parsed.AccessToken, nil
}

func getProfile(t *testing.T, baseURL, token string) (map[string]any, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("me status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func patchProfile(t *testing.T, baseURL, token string, fields map[string]any) error {
	t.Helper()

	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPatch, baseURL+"/users/me", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("patch status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func expectUnauthorized(t *testing.T, baseURL, token string) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/users/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("expected 401, got %d", resp.StatusCode)
	}
	return nil
}

func postJSON(url string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func setTestEnv() {
	_ = os.Setenv("ACCESS_TOKEN_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "userhub")
	_ = os.Setenv("DB_PASSWORD", "userhub")
	_ = os.Setenv("DB_NAME", "userhub")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("BROKER_KIND", "none")
	_ = os.Setenv("STORAGE_KIND", "none")
}

func startServer() (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
