package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hourglass-app/kotonoiro-backend/internal/dto"
)

// APIClient is a bearer-token HTTP client for the quota and subscription
// endpoints.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIClient(baseURL, accessToken string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   accessToken,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken swaps the bearer token after a refresh.
func (c *APIClient) SetToken(accessToken string) {
	c.token = accessToken
}

func (c *APIClient) Reserve(ctx context.Context, yearMonth string, requestedSeconds float64) (*dto.ReserveQuotaResponse, error) {
	var out dto.ReserveQuotaResponse
	err := c.post(ctx, "/api/quota/reserve", dto.ReserveQuotaRequest{
		YearMonth:        yearMonth,
		RequestedSeconds: requestedSeconds,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Consume(ctx context.Context, yearMonth string, actualSeconds float64, releasedSeconds *float64) error {
	var out dto.ConsumeQuotaResponse
	return c.post(ctx, "/api/quota/consume", dto.ConsumeQuotaRequest{
		YearMonth:       yearMonth,
		ActualSeconds:   actualSeconds,
		ReleasedSeconds: releasedSeconds,
	}, &out)
}

func (c *APIClient) QuotaStatus(ctx context.Context, yearMonth string) (*dto.QuotaStatusResponse, error) {
	var out dto.QuotaStatusResponse
	if err := c.get(ctx, "/api/quota/status?yearMonth="+yearMonth, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Entitlements(ctx context.Context) (*dto.EntitlementsResponse, error) {
	var out dto.EntitlementsResponse
	if err := c.get(ctx, "/api/subscription/entitlements", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) VerifyReceipt(ctx context.Context, receipt, platform, productID string) (*dto.VerifyReceiptResponse, error) {
	var out dto.VerifyReceiptResponse
	err := c.post(ctx, "/api/subscription/verify", dto.VerifyReceiptRequest{
		Receipt:   receipt,
		Platform:  platform,
		ProductID: productID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) SubscriptionStatus(ctx context.Context, receipt, productID string) (*dto.SubscriptionStatusResponse, error) {
	var out dto.SubscriptionStatusResponse
	err := c.post(ctx, "/api/subscription/status", dto.SubscriptionStatusRequest{
		Receipt:   receipt,
		ProductID: productID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) AuthorizeAnalysis(ctx context.Context) (*dto.AuthorizeAnalysisResponse, error) {
	var out dto.AuthorizeAnalysisResponse
	err := c.post(ctx, "/api/analysis/authorize", struct{}{}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *APIClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr dto.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("api error %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("api error %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
