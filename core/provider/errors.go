package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"

	"pcb-cost/internal/errors"
)

// ClassifyError maps an SDK or transport failure to a typed error that
// tells the retry policy and the orchestrator how to react.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := errors.As(err); ok {
		return err
	}

	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Transport("request timeout", err)
	}

	var oaAPI *openai.APIError
	if stderrors.As(err, &oaAPI) {
		return fromStatus(oaAPI.HTTPStatusCode, err)
	}
	var oaReq *openai.RequestError
	if stderrors.As(err, &oaReq) {
		return fromStatus(oaReq.HTTPStatusCode, err)
	}

	var anAPI *anthropic.APIError
	if stderrors.As(err, &anAPI) {
		switch anAPI.Type {
		case anthropic.ErrTypeAuthentication, anthropic.ErrTypePermission:
			return errors.Auth("authentication failed", err)
		case anthropic.ErrTypeRateLimit:
			return errors.RateLimited("rate limited", err)
		case anthropic.ErrTypeApi, anthropic.ErrTypeOverloaded:
			return errors.Transport("server error", err)
		case anthropic.ErrTypeInvalidRequest, anthropic.ErrTypeNotFound, anthropic.ErrTypeTooLarge:
			return errors.BadRequest("request rejected", err)
		}
	}
	var anReq *anthropic.RequestError
	if stderrors.As(err, &anReq) {
		return fromStatus(anReq.StatusCode, err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.Transport("network error", err)
	}

	return fromMessage(err)
}

func fromStatus(status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return errors.Auth(fmt.Sprintf("authentication failed (HTTP %d)", status), err)
	case status == 429:
		return errors.RateLimited("rate limited (HTTP 429)", err)
	case status == 408 || status >= 500:
		return errors.Transport(fmt.Sprintf("server error (HTTP %d)", status), err)
	case status >= 400:
		return errors.BadRequest(fmt.Sprintf("request rejected (HTTP %d)", status), err)
	}
	return fromMessage(err)
}

// fromMessage classifies by the error text when no structured detail exists
func fromMessage(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key"):
		return errors.Auth("authentication failed", err)
	case strings.Contains(msg, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests"):
		return errors.RateLimited("rate limited", err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") || strings.HasSuffix(lower, "eof"):
		return errors.Transport("connection failed", err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") ||
		strings.Contains(lower, "overloaded"):
		return errors.Transport("server error", err)
	case strings.Contains(msg, "400") || strings.Contains(msg, "404"):
		return errors.BadRequest("request rejected", err)
	}
	return errors.Wrap(errors.TypeInternal, "provider error", err)
}
