package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrSchemaMismatch is wrapped by PageFetchFailed when a search response is not the expected JSON.
var ErrSchemaMismatch = errors.New("unexpected search response schema")

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403), usually the anti-bot layer.
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrClientStatus is any other 4xx response. Retrying it does not help.
type ErrClientStatus struct {
	Status int
	Err    error
}

func (e ErrClientStatus) Error() string {
	return fmt.Errorf("client_status %d: %w", e.Status, e.Err).Error()
}

func (e ErrClientStatus) Unwrap() error {
	return e.Err
}

// ErrServerStatus is a 5xx response.
type ErrServerStatus struct {
	Status int
	Err    error
}

func (e ErrServerStatus) Error() string {
	return fmt.Errorf("server_status %d: %w", e.Status, e.Err).Error()
}

func (e ErrServerStatus) Unwrap() error {
	return e.Err
}

// BootstrapError reports the session setup step that failed. The crawl cannot continue without a session.
type BootstrapError struct {
	Step string
	Err  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Step, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// PageFetchFailed aborts a keyword's crawl; later positions would be wrong without the page.
type PageFetchFailed struct {
	Keyword string
	Page    int
	Err     error
}

func (e *PageFetchFailed) Error() string {
	return fmt.Sprintf("keyword %q page %d: %v", e.Keyword, e.Page, e.Err)
}

func (e *PageFetchFailed) Unwrap() error {
	return e.Err
}

// ImageFetchFailed means every attempt to download a listing image failed.
type ImageFetchFailed struct {
	ListingID string
	URL       string
	Attempts  int
	Err       error
}

func (e *ImageFetchFailed) Error() string {
	return fmt.Sprintf("image for listing %s after %d attempt(s): %v", e.ListingID, e.Attempts, e.Err)
}

func (e *ImageFetchFailed) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var client ErrClientStatus
	if errors.As(err, &client) {
		return "client_status"
	}
	var server ErrServerStatus
	if errors.As(err, &server) {
		return "server_status"
	}
	if errors.Is(err, ErrSchemaMismatch) {
		return "schema"
	}
	return "other"
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= 500:
			return ErrServerStatus{Status: statusCode, Err: wrapped}
		case statusCode >= 400:
			return ErrClientStatus{Status: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}

// isPermanent reports failures that will not change on retry.
func isPermanent(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return true
	}
	var client ErrClientStatus
	return errors.As(err, &client)
}
