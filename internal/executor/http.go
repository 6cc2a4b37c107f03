package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

const placeOrderPath = "/orders"

// HTTPExecutor places orders through a venue order proxy. The proxy owns
// venue authentication and order signing; requests are optionally signed
// with a shared HMAC secret.
type HTTPExecutor struct {
	venue   domain.Venue
	baseURL string
	signer  *crypto.RequestSigner
	client  *http.Client
}

var _ VenueExecutor = (*HTTPExecutor)(nil)

// NewHTTPExecutor creates an executor for venue. A zero timeout means 10s.
// signer may be nil.
func NewHTTPExecutor(venue domain.Venue, baseURL string, signer *crypto.RequestSigner, timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPExecutor{
		venue:   venue,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		client:  &http.Client{Timeout: timeout},
	}
}

// Venue returns the venue this executor trades on.
func (h *HTTPExecutor) Venue() domain.Venue { return h.venue }

// PlaceOrder posts req to the proxy and decodes the fill.
func (h *HTTPExecutor) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
	req, err := h.normalize(req)
	if err != nil {
		return domain.OrderFill{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("executor: %s: marshal order: %w", h.venue, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+placeOrderPath, bytes.NewReader(body))
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("executor: %s: create request: %w", h.venue, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if h.signer != nil {
		for k, v := range h.signer.Headers(http.MethodPost, h.requestPath(), body) {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("executor: %s: send order: %w", h.venue, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("executor: %s: read response: %w", h.venue, err)
	}
	if err := h.checkStatus(resp.StatusCode, respBody); err != nil {
		return domain.OrderFill{}, err
	}

	var fill domain.OrderFill
	if err := json.Unmarshal(respBody, &fill); err != nil {
		return domain.OrderFill{}, fmt.Errorf("executor: %s: decode fill: %w", h.venue, err)
	}
	return fill, nil
}

// normalize applies venue order constraints. Kalshi trades whole contracts
// at whole-cent prices; limits are rounded in the direction that keeps the
// order marketable.
func (h *HTTPExecutor) normalize(req domain.OrderRequest) (domain.OrderRequest, error) {
	if req.MarketID == "" {
		return req, fmt.Errorf("executor: %s: empty market id", h.venue)
	}
	if h.venue != domain.VenueKalshi {
		return req, nil
	}

	req.Quantity = math.Floor(req.Quantity)
	if req.Quantity < 1 {
		return req, fmt.Errorf("executor: kalshi: quantity below one contract")
	}
	cents := req.Price * 100
	if req.Action == domain.ActionBuy {
		cents = math.Ceil(cents - 1e-9)
	} else {
		cents = math.Floor(cents + 1e-9)
	}
	req.Price = min(max(cents, 1), 99) / 100
	return req, nil
}

func (h *HTTPExecutor) requestPath() string {
	u, err := url.Parse(h.baseURL + placeOrderPath)
	if err != nil {
		return placeOrderPath
	}
	return u.Path
}

func (h *HTTPExecutor) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("executor: %s: unauthorized: %s", h.venue, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("executor: %s: rate limited: %s", h.venue, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("executor: %s: bad request: %s", h.venue, msg)
	default:
		return fmt.Errorf("executor: %s: HTTP %d: %s", h.venue, statusCode, msg)
	}
}
