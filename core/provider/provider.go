// Package provider adapts external text generation services to the three
// enrichment questions the estimator asks: what is this part, is this price
// plausible, and is this part going obsolete.
package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pcb-cost/core/prompts"
	"pcb-cost/core/types"
	"pcb-cost/internal/errors"
	"pcb-cost/internal/logging"
)

// Adapter answers enrichment questions. Failures other than context
// cancellation are *errors.Error values whose type tells the caller whether
// a retry can help.
type Adapter interface {
	Name() string
	Classify(ctx context.Context, item types.LineItem) (types.ClassificationResult, types.Usage, error)
	CheckPrice(ctx context.Context, q PriceQuery) (types.PriceReasonablenessResult, types.Usage, error)
	CheckObsolescence(ctx context.Context, item types.LineItem) (types.ObsolescenceResult, types.Usage, error)
}

// PriceQuery is a price estimate submitted for review
type PriceQuery struct {
	Item     types.LineItem
	Category types.Category
	Package  types.PackageType
	Band     types.PriceBand

	// Quantity is the order quantity the band applies to
	Quantity int
}

// Request is one completion call
type Request struct {
	System      string
	User        string
	JSON        bool
	MaxTokens   int
	Temperature float32
}

// Response is the raw text of a completion
type Response struct {
	Text  string
	Usage types.Usage
}

// Completer sends a prompt pair to a text generation endpoint
type Completer interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// Options configures a Client
type Options struct {
	MaxTokens   int
	Temperature float32

	// Timeout bounds one completion call; zero means no bound
	Timeout time.Duration

	// Versions selects a prompt version per kind
	Versions map[types.RequestKind]string
}

// Client is an Adapter that renders prompt templates, calls a Completer in
// JSON mode and strictly validates the reply.
type Client struct {
	completer Completer
	prompts   *prompts.Manager
	opts      Options
	logger    *zap.Logger
}

// NewClient creates a prompt-driven adapter over completer
func NewClient(completer Completer, pm *prompts.Manager, opts Options, logger *zap.Logger) *Client {
	if pm == nil {
		pm = prompts.NewManager("")
	}
	if logger == nil {
		logger = logging.Named("provider")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Client{
		completer: completer,
		prompts:   pm,
		opts:      opts,
		logger:    logger.With(zap.String("provider", completer.Name()), zap.String("model", completer.Model())),
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return c.completer.Name()
}

func (c *Client) version(kind types.RequestKind) string {
	if v := c.opts.Versions[kind]; v != "" {
		return v
	}
	return prompts.DefaultVersion
}

// call renders kind's template with vars and returns the extracted JSON
func (c *Client) call(ctx context.Context, kind types.RequestKind, vars map[string]interface{}) (string, types.Usage, error) {
	system, user, err := c.prompts.Render(string(kind), c.version(kind), vars)
	if err != nil {
		return "", types.Usage{}, err
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.completer.Complete(ctx, Request{
		System:      system,
		User:        user,
		JSON:        true,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		classified := ClassifyError(err)
		c.logger.Debug("completion failed",
			zap.String("kind", string(kind)),
			zap.Duration("elapsed", time.Since(start)),
			logging.RedactedError(classified))
		return "", types.Usage{}, classified
	}

	c.logger.Debug("completion finished",
		zap.String("kind", string(kind)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	raw, err := ExtractJSON(resp.Text)
	if err != nil {
		return "", resp.Usage, errors.Parse(fmt.Sprintf("%s response is not JSON", kind), err)
	}
	return raw, resp.Usage, nil
}

// Classify asks for the category of an item
func (c *Client) Classify(ctx context.Context, item types.LineItem) (types.ClassificationResult, types.Usage, error) {
	raw, usage, err := c.call(ctx, types.KindClassification, map[string]interface{}{
		"mpn":                  orUnknown(item.MPN),
		"manufacturer":         orUnknown(item.Manufacturer),
		"description":          orDefault(item.Description, "No description"),
		"reference_designator": orUnknown(item.ReferenceDesignator),
		"package":              orUnknown(item.Package),
	})
	if err != nil {
		return types.ClassificationResult{}, usage, err
	}
	res, err := ParseClassification([]byte(raw))
	return res, usage, err
}

// CheckPrice asks whether q.Band is plausible
func (c *Client) CheckPrice(ctx context.Context, q PriceQuery) (types.PriceReasonablenessResult, types.Usage, error) {
	raw, usage, err := c.call(ctx, types.KindPriceCheck, map[string]interface{}{
		"mpn":               orUnknown(q.Item.MPN),
		"description":       orDefault(q.Item.Description, "No description"),
		"category":          string(q.Category),
		"package_type":      string(q.Package),
		"quantity":          q.Quantity,
		"currency":          orDefault(string(q.Band.Currency), string(types.CurrencyUSD)),
		"unit_cost_low":     q.Band.Low.StringFixed(types.MoneyPlaces),
		"unit_cost_typical": q.Band.Typical.StringFixed(types.MoneyPlaces),
		"unit_cost_high":    q.Band.High.StringFixed(types.MoneyPlaces),
	})
	if err != nil {
		return types.PriceReasonablenessResult{}, usage, err
	}
	res, err := ParsePriceCheck([]byte(raw), q.Band)
	return res, usage, err
}

// CheckObsolescence asks for the lifecycle risk of an item's MPN
func (c *Client) CheckObsolescence(ctx context.Context, item types.LineItem) (types.ObsolescenceResult, types.Usage, error) {
	raw, usage, err := c.call(ctx, types.KindObsolescence, map[string]interface{}{
		"mpn":          orUnknown(item.MPN),
		"manufacturer": orUnknown(item.Manufacturer),
		"description":  orDefault(item.Description, "No description"),
		"category":     orUnknown(string(item.Category)),
		"quantity":     item.Quantity,
	})
	if err != nil {
		return types.ObsolescenceResult{}, usage, err
	}
	res, err := ParseObsolescence([]byte(raw), item.NormalizedMPN())
	return res, usage, err
}

func orUnknown(s string) string {
	return orDefault(s, "Unknown")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
