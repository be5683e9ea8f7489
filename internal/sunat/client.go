package sunat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RUCInfo is the subset of the tax-registry record the back office needs
// to prefill a supplier form.
type RUCInfo struct {
	RUC     string `json:"ruc"`
	Name    string `json:"razon_social"`
	Address string `json:"direccion,omitempty"`
	Status  string `json:"estado,omitempty"`
}

// Client queries an external SUNAT proxy API for company records by RUC.
// When base URL or token are unconfigured it answers with a demo record
// so development environments work without credentials.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

func New(baseURL string, token string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 8 * time.Second},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
	}
}

// Demo reports whether the client is running without real credentials.
func (c *Client) Demo() bool {
	return c.baseURL == "" || c.token == ""
}

func (c *Client) LookupRUC(ctx context.Context, ruc string) (*RUCInfo, error) {
	ruc = strings.TrimSpace(ruc)
	if len(ruc) != 11 || !allDigits(ruc) {
		return nil, fmt.Errorf("ruc must be 11 digits")
	}

	if c.Demo() {
		return &RUCInfo{
			RUC:     ruc,
			Name:    "Proveedor de Prueba S.A.C.",
			Address: "Av. Siempre Viva 123",
			Status:  "ACTIVO",
		}, nil
	}

	endpoint := fmt.Sprintf("%s/v2/sunat/ruc?numero=%s", c.baseURL, url.QueryEscape(ruc))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sunat lookup failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Field names vary by API provider; accept the common aliases.
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("sunat lookup failed: %w", err)
	}

	info := RUCInfo{
		RUC:     ruc,
		Name:    firstString(raw, "razonSocial", "nombre"),
		Address: firstString(raw, "direccion", "domicilioFiscal"),
		Status:  firstString(raw, "estado"),
	}
	if info.Name == "" {
		return nil, fmt.Errorf("sunat lookup returned no company name")
	}
	return &info, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := raw[key].(string); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func allDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
