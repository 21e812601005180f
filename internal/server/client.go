package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/Fabrica/internal/domain"
)

// Таймаут HTTP-запросов к серверу по умолчанию.
const defaultHTTPTimeout = 30 * time.Second

// Ошибки клиентов сервера.
var (
	// ErrUnauthorized — сервер отклонил учётные данные.
	ErrUnauthorized = errors.New("server rejected credentials")

	// ErrNotFound — ресурс не найден на сервере.
	ErrNotFound = errors.New("resource not found")
)

// client — базовый HTTP-клиент с авторизацией из параметров
// сервисного подключения. Общий для JobServer и TaskServer.
type client struct {
	baseURL    *url.URL
	auth       domain.Authorization
	httpClient *http.Client
}

// newClient создаёт клиент для указанного адреса сервера.
func newClient(serverURL string, auth domain.Authorization) (*client, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server url %q has no scheme or host", serverURL)
	}

	return &client{
		baseURL: base,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}, nil
}

// do выполняет запрос с авторизацией. in сериализуется в JSON body
// (nil — без body), ответ декодируется в out (nil — тело игнорируется).
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// get выполняет GET-запрос и возвращает тело ответа.
func (c *client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: GET %s", ErrNotFound, path)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// authorize выставляет заголовок Authorization из параметров подключения.
func (c *client) authorize(req *http.Request) {
	switch c.auth.Scheme {
	case domain.AuthSchemeOAuth:
		if token := c.auth.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case domain.AuthSchemeBasic:
		req.SetBasicAuth(c.auth.Parameters["username"], c.auth.Parameters["password"])
	}
}

// resolve строит абсолютный URL из пути относительно базового адреса.
func (c *client) resolve(path string) string {
	ref := &url.URL{Path: strings.TrimLeft(path, "/")}
	base := *c.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref).String()
}
