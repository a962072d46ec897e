package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atmosync/atmosync/internal/netatmo"
)

// TokenResponse is the OAuth token grant payload. ExpiresIn is a pointer so
// callers can tell an absent field from a zero lifetime.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    *float64 `json:"expires_in"`
}

// PasswordGrant requests a fresh token pair with user credentials.
func (c *Client) PasswordGrant(ctx context.Context, clientID, clientSecret, username, password string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, map[string]any{
		"grant_type":    "password",
		"client_id":     clientID,
		"client_secret": clientSecret,
		"username":      username,
		"password":      password,
	})
}

// RefreshGrant exchanges a refresh token for a new token pair.
func (c *Client) RefreshGrant(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, map[string]any{
		"grant_type":    "refresh_token",
		"client_id":     clientID,
		"client_secret": clientSecret,
		"refresh_token": refreshToken,
	})
}

func (c *Client) tokenRequest(ctx context.Context, args map[string]any) (*TokenResponse, error) {
	data, err := c.post(ctx, "/oauth2/token", args)
	if err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &resp, nil
}

// DeviceListResponse is the devicelist payload: the account's stations and
// the modules attached to them.
type DeviceListResponse struct {
	Body struct {
		Devices []DeviceEntry `json:"devices"`
		Modules []ModuleEntry `json:"modules"`
	} `json:"body"`
}

// DeviceEntry is one station in a devicelist response.
type DeviceEntry struct {
	ID   string `json:"_id"`
	Name string `json:"station_name"`
	Type string `json:"type"`
}

// ModuleEntry is one module in a devicelist response. MainDevice is the
// parent station id.
type ModuleEntry struct {
	ID         string `json:"_id"`
	Name       string `json:"module_name"`
	Type       string `json:"type"`
	MainDevice string `json:"main_device"`
}

// DeviceList fetches the stations and modules known to the account.
func (c *Client) DeviceList(ctx context.Context, accessToken string) (*DeviceListResponse, error) {
	data, err := c.post(ctx, "/api/devicelist", map[string]any{
		"access_token": accessToken,
	})
	if err != nil {
		return nil, err
	}

	var resp DeviceListResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", netatmo.ErrCatalogParse, err)
	}
	return &resp, nil
}

// MeasureParams identifies one device measurement window. ModuleID is empty
// when querying the station's own sensors.
type MeasureParams struct {
	AccessToken string
	DeviceID    string
	ModuleID    string
	Types       []netatmo.MeasureType
	Begin       time.Time
	End         time.Time
}

// MeasureResponse is the getmeasure payload: blocks of positional value rows
// starting at BegTime and advancing StepTime seconds per row.
type MeasureResponse struct {
	Body []MeasureBlock `json:"body"`
}

// MeasureBlock is one run of samples. Value rows are positional against the
// device's ordered measurement type list; slots may be null. A missing
// step_time decodes as 0.
type MeasureBlock struct {
	BegTime  int64   `json:"beg_time"`
	StepTime int64   `json:"step_time"`
	Value    [][]any `json:"value"`
}

// GetMeasure fetches raw samples for one device window.
func (c *Client) GetMeasure(ctx context.Context, p MeasureParams) (*MeasureResponse, error) {
	args := map[string]any{
		"access_token": p.AccessToken,
		"device_id":    p.DeviceID,
		"type":         netatmo.TypeCodesCSV(p.Types),
		"scale":        "max",
		"optimize":     "true",
		"date_begin":   p.Begin.Unix(),
		"date_end":     p.End.Unix(),
	}
	if p.ModuleID != "" {
		args["module_id"] = p.ModuleID
	}

	data, err := c.post(ctx, "/api/getmeasure", args)
	if err != nil {
		return nil, err
	}

	var resp MeasureResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", netatmo.ErrMeasurementParse, err)
	}
	return &resp, nil
}
