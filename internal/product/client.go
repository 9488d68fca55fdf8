package product

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stockledger-api/internal/model"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Authority answers whether a product exists and returns its metadata.
type Authority interface {
	Exists(ctx context.Context, productID int64) (bool, error)
	Fetch(ctx context.Context, productID int64) (*model.Product, error)
	FetchBatch(ctx context.Context, productIDs []int64) ([]model.Product, error)
}

// ClientConfig holds settings for the HTTP product client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the product service over HTTP.
// It never retries; retries and breaking belong to the guard.
type Client struct {
	http   *resty.Client
	tracer trace.Tracer
}

// NewClient creates a product service client.
func NewClient(cfg ClientConfig) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/vnd.api+json").
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		rc.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &Client{
		http:   rc,
		tracer: otel.Tracer("stockledger-api/product"),
	}
}

type resourceData struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes productAttributes `json:"attributes"`
}

type productAttributes struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type productDocument struct {
	Data *resourceData `json:"data"`
}

type batchDocument struct {
	Data []resourceData `json:"data"`
}

type existsDocument struct {
	Exists bool `json:"exists"`
}

func (d resourceData) toModel() (*model.Product, error) {
	id, err := strconv.ParseInt(d.ID, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid product id %q", d.ID)
	}
	a := d.Attributes
	return &model.Product{
		ID:          id,
		Name:        a.Name,
		Description: a.Description,
		Price:       a.Price,
		Category:    a.Category,
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}, nil
}

// Exists calls GET /api/v1/products/{id}/exists.
// A 404 is an explicit negative answer, not an error.
func (c *Client) Exists(ctx context.Context, productID int64) (bool, error) {
	ctx, span := c.start(ctx, "product.exists", productID)
	defer span.End()

	var out existsDocument
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(productID, 10)).
		SetResult(&out).
		Get("/api/v1/products/{id}/exists")
	if err != nil {
		return false, c.fail(span, errors.Wrapf(err, "check product %d", productID))
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		span.SetAttributes(attribute.Bool("product.exists", false))
		return false, nil
	case resp.IsError():
		return false, c.fail(span, &StatusError{StatusCode: resp.StatusCode(), Op: "exists"})
	}

	span.SetAttributes(attribute.Bool("product.exists", out.Exists))
	return out.Exists, nil
}

// Fetch calls GET /api/v1/products/{id}.
func (c *Client) Fetch(ctx context.Context, productID int64) (*model.Product, error) {
	ctx, span := c.start(ctx, "product.fetch", productID)
	defer span.End()

	var out productDocument
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(productID, 10)).
		SetResult(&out).
		Get("/api/v1/products/{id}")
	if err != nil {
		return nil, c.fail(span, errors.Wrapf(err, "fetch product %d", productID))
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, ErrProductNotFound
	case resp.IsError():
		return nil, c.fail(span, &StatusError{StatusCode: resp.StatusCode(), Op: "fetch"})
	case out.Data == nil:
		return nil, ErrProductNotFound
	}

	p, err := out.Data.toModel()
	if err != nil {
		return nil, c.fail(span, err)
	}
	return p, nil
}

// FetchBatch calls GET /api/v1/products/batch?ids=1,2,3. Unknown ids are omitted.
func (c *Client) FetchBatch(ctx context.Context, productIDs []int64) ([]model.Product, error) {
	if len(productIDs) == 0 {
		return []model.Product{}, nil
	}

	ctx, span := c.tracer.Start(ctx, "product.fetch_batch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("product.count", len(productIDs))))
	defer span.End()

	ids := make([]string, len(productIDs))
	for i, id := range productIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	var out batchDocument
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(ids, ",")).
		SetResult(&out).
		Get("/api/v1/products/batch")
	if err != nil {
		return nil, c.fail(span, errors.Wrap(err, "fetch product batch"))
	}
	if resp.IsError() {
		return nil, c.fail(span, &StatusError{StatusCode: resp.StatusCode(), Op: "fetch_batch"})
	}

	products := make([]model.Product, 0, len(out.Data))
	for _, d := range out.Data {
		p, err := d.toModel()
		if err != nil {
			continue
		}
		products = append(products, *p)
	}
	return products, nil
}

func (c *Client) start(ctx context.Context, name string, productID int64) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("product.id", productID)))
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

var _ Authority = (*Client)(nil)
