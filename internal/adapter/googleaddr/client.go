// Package googleaddr implements address validation against the Google
// Address Validation API.
package googleaddr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
)

// Client implements domain.AddressValidator using the Google Address
// Validation API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a validation client.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://addressvalidation.googleapis.com/v1:validateAddress",
		logger:  logger,
		metrics: metrics,
	}
}

// Validate geocodes one raw address. The result uses the English/Latin
// rendering of the address for text, merged with the confirmation levels
// Google reports on the original-script components; the English rendering
// omits them.
func (c *Client) Validate(ctx context.Context, address string) (domain.ValidatedAddress, error) {
	payload := request{
		Address:         postalAddress{AddressLines: []string{address}},
		LanguageOptions: languageOptions{ReturnEnglishLatinAddress: true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ValidatedAddress{}, &domain.GeocodingError{Address: address, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"?key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return domain.ValidatedAddress{}, &domain.GeocodingError{Address: address, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.ValidatedAddress{}, &domain.GeocodingError{Address: address, Err: fmt.Errorf("validation request: %w", err)}
	}
	defer resp.Body.Close()
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.ValidatedAddress{}, &domain.GeocodingError{
			Address: address,
			Err:     fmt.Errorf("validation API error: status %d: %s", resp.StatusCode, errBody),
		}
	}

	var vr response
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.ValidatedAddress{}, &domain.GeocodingError{Address: address, Err: fmt.Errorf("decode response: %w", err)}
	}

	english := vr.Result.EnglishLatinAddress
	if english.FormattedAddress == "" {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.ValidatedAddress{}, &domain.GeocodingError{Address: address, Err: fmt.Errorf("empty validation result")}
	}
	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()

	confirmations := make(map[string]string, len(vr.Result.Address.AddressComponents))
	for _, comp := range vr.Result.Address.AddressComponents {
		confirmations[comp.ComponentType] = comp.ConfirmationLevel
	}

	components := make([]domain.AddressComponent, 0, len(english.AddressComponents))
	for _, comp := range english.AddressComponents {
		components = append(components, domain.AddressComponent{
			Type:              comp.ComponentType,
			Value:             comp.ComponentName.Text,
			ConfirmationLevel: confirmations[comp.ComponentType],
		})
	}

	return domain.ValidatedAddress{
		FormattedAddress: english.FormattedAddress,
		Components:       components,
		Lat:              vr.Result.Geocode.Location.Latitude,
		Lng:              vr.Result.Geocode.Location.Longitude,
	}, nil
}

// Address Validation API wire types.

type request struct {
	Address         postalAddress   `json:"address"`
	LanguageOptions languageOptions `json:"languageOptions"`
}

type postalAddress struct {
	AddressLines []string `json:"addressLines"`
}

type languageOptions struct {
	ReturnEnglishLatinAddress bool `json:"returnEnglishLatinAddress"`
}

type response struct {
	Result struct {
		Address             validatedAddress `json:"address"`
		EnglishLatinAddress validatedAddress `json:"englishLatinAddress"`
		Geocode             struct {
			Location struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"location"`
		} `json:"geocode"`
	} `json:"result"`
}

type validatedAddress struct {
	FormattedAddress  string      `json:"formattedAddress"`
	AddressComponents []component `json:"addressComponents"`
}

type component struct {
	ComponentName struct {
		Text string `json:"text"`
	} `json:"componentName"`
	ComponentType     string `json:"componentType"`
	ConfirmationLevel string `json:"confirmationLevel,omitempty"`
}
