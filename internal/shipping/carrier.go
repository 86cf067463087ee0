package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Address struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	District string `json:"district"`
	Province string `json:"province"`
}

type CarrierOrderRequest struct {
	OrderID string `json:"order_id"`

	From Address `json:"from"`

	ToName  string `json:"to_name"`
	ToPhone string `json:"to_phone"`
	ToAddr  string `json:"to_address"`

	WeightGrams int `json:"weight_grams"`
	LengthCM    int `json:"length_cm"`
	WidthCM     int `json:"width_cm"`
	HeightCM    int `json:"height_cm"`

	// Amount the carrier collects from the receiver. Zero for prepaid.
	CODAmount int64 `json:"cod_amount"`
}

// CarrierClient is the third-party shipping provider boundary.
type CarrierClient interface {
	GetShopAddress(ctx context.Context, shopID string) (*Address, error)
	CreateOrder(ctx context.Context, req CarrierOrderRequest) (carrierOrderCode string, err error)
	CancelOrder(ctx context.Context, orderID string) error
}

// HTTPCarrierClient talks to the carrier gateway over JSON/HTTP.
type HTTPCarrierClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPCarrierClient(baseURL, token string) *HTTPCarrierClient {
	return &HTTPCarrierClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPCarrierClient) GetShopAddress(ctx context.Context, shopID string) (*Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v2/shops/%s/address", c.BaseURL, shopID), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier shop address: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("carrier shop address: status %d", resp.StatusCode)
	}

	var addr Address
	if err := json.NewDecoder(resp.Body).Decode(&addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

func (c *HTTPCarrierClient) CreateOrder(ctx context.Context, co CarrierOrderRequest) (string, error) {
	body, err := json.Marshal(co)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v2/shipping-orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("carrier create order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("carrier create order: status %d", resp.StatusCode)
	}

	var out struct {
		OrderCode string `json:"order_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.OrderCode, nil
}

func (c *HTTPCarrierClient) CancelOrder(ctx context.Context, orderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v2/shipping-orders/%s/cancel", c.BaseURL, orderID), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("carrier cancel order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("carrier cancel order: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPCarrierClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}
