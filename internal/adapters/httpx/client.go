// Package httpx es el cliente HTTP JSON compartido por los adapters:
// rate limiting por endpoint, reintentos con backoff exponencial y timeout.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRetries   = 3
	defaultRetryWait = 500 * time.Millisecond
)

// StatusError es una respuesta 4xx que no se reintenta.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.Code, e.Body)
}

// Client ejecuta requests JSON con retries. Es seguro para uso concurrente.
type Client struct {
	HTTP       *http.Client
	MaxRetries int
	RetryWait  time.Duration
	Name       string // prefijo para logs
}

// New crea un Client con los valores por defecto.
func New(name string) *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: defaultTimeout},
		MaxRetries: defaultRetries,
		RetryWait:  defaultRetryWait,
		Name:       name,
	}
}

// GetJSON hace un GET con rate limiting y retries y decodifica en out.
func (c *Client) GetJSON(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.Do(ctx, limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// PostJSON hace un POST JSON con rate limiting y retries.
func (c *Client) PostJSON(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.Do(ctx, limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// Do ejecuta el request construido por newReq con backoff exponencial.
// newReq se invoca en cada intento para que headers firmados (timestamps)
// se regeneren. 429 y 5xx se reintentan; 4xx devuelve *StatusError.
// Si out es nil el body se descarta.
func (c *Client) Do(ctx context.Context, limiter *rate.Limiter, newReq func() (*http.Request, error), out any) error {
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		req, err := newReq()
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if attempt == c.MaxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("rate limited by API", "api", c.Name, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			if attempt == c.MaxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, c.MaxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			return &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		if readErr != nil {
			return fmt.Errorf("read response: %w", readErr)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", c.MaxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.RetryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
