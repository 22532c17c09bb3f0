package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/touchlog/touchlog/internal/app/model"
	infraProm "github.com/touchlog/touchlog/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	defaultGeoBaseURL = "http://ip-api.com/json"
	defaultGeoTimeout = 3 * time.Second
)

// GeoResolver looks up a coarse location for a public address. Resolution
// is best-effort: implementations never return an error, only an empty
// result.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) model.GeoInfo
}

// IPAPIResolver resolves locations through the ip-api.com JSON endpoint.
// One bounded attempt per event; timeouts, transport errors, and explicit
// "fail" responses all collapse to the empty result.
type IPAPIResolver struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

type ipAPIResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// NewIPAPIResolver builds a resolver. Empty baseURL or non-positive
// timeout fall back to the provider defaults.
func NewIPAPIResolver(baseURL string, timeout time.Duration, logger *zap.Logger) *IPAPIResolver {
	if baseURL == "" {
		baseURL = defaultGeoBaseURL
	}
	if timeout <= 0 {
		timeout = defaultGeoTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IPAPIResolver{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve returns the location for a public address, or the zero GeoInfo.
// Private and loopback addresses short-circuit without a network call.
func (r *IPAPIResolver) Resolve(ctx context.Context, ip string) model.GeoInfo {
	if ip == "" || IsPrivateIP(ip) {
		return model.GeoInfo{}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s?fields=status,message,country,regionName,city", r.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return model.GeoInfo{}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		infraProm.GeoLookupFailures.Inc()
		r.logger.Debug("geo lookup failed", zap.Error(err))
		return model.GeoInfo{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		infraProm.GeoLookupFailures.Inc()
		return model.GeoInfo{}
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		infraProm.GeoLookupFailures.Inc()
		return model.GeoInfo{}
	}
	if body.Status != "success" {
		infraProm.GeoLookupFailures.Inc()
		r.logger.Debug("geo provider rejected lookup", zap.String("message", body.Message))
		return model.GeoInfo{}
	}

	return model.GeoInfo{
		City:    optional(body.City),
		Country: optional(body.Country),
		Region:  optional(body.RegionName),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
