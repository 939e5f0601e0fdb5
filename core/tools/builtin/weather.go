package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koscakluka/ema-realtime/core/tools"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultWeatherURL = "https://wttr.in"
	// location, condition and temperature on one line
	weatherFormat  = "%l: %C %t"
	maxWeatherBody = 1 << 12
)

type WeatherOption func(*weather)

// WithWeatherURL points the tool at a different wttr.in compatible service.
func WithWeatherURL(baseURL string) WeatherOption {
	return func(w *weather) {
		w.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) WeatherOption {
	return func(w *weather) {
		w.client = client
	}
}

type weather struct {
	baseURL string
	client  *http.Client
}

// Weather is the get_weather tool. It reports current conditions for a
// location.
func Weather(opts ...WeatherOption) tools.Tool {
	w := &weather{
		baseURL: defaultWeatherURL,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Host
			}),
		)},
	}
	for _, opt := range opts {
		opt(w)
	}

	return tools.NewTool("get_weather", "Get the current weather for a location.", w.call,
		tools.Required("location", tools.TypeString, "City or place name, e.g. Cairo"),
	).WithTimeout(8 * time.Second)
}

func (w *weather) call(ctx context.Context, args tools.Args) (string, error) {
	location := strings.TrimSpace(args.String("location"))
	if location == "" {
		return "", fmt.Errorf("location is empty")
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("weather.location", location))

	query := url.Values{"format": {weatherFormat}}
	endpoint := fmt.Sprintf("%s/%s?%s", w.baseURL, url.PathEscape(location), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create weather request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch weather: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWeatherBody))
	if err != nil {
		return "", fmt.Errorf("failed to read weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("weather service returned an error", "status", resp.StatusCode, "location", location)
		return "", fmt.Errorf("weather service returned %s", resp.Status)
	}

	report := strings.TrimSpace(string(body))
	if report == "" {
		return "", fmt.Errorf("weather service returned no data for %s", location)
	}
	return report, nil
}
