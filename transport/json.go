package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// PostJSON encodes payload, posts it through doer and treats any non-2xx
// status as an external failure carrying a trimmed response snippet.
func PostJSON(ctx context.Context, doer Doer, url string, headers map[string]string, payload any) (Response, error) {
	if doer == nil {
		return Response{}, transportError(
			"transport: doer is required",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: encode json payload",
			http.StatusBadRequest,
			nil,
		)
	}
	merged := map[string]string{"Content-Type": "application/json", "Accept": "application/json"}
	for key, value := range headers {
		merged[key] = value
	}
	res, err := doer.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     url,
		Headers: merged,
		Body:    body,
	})
	if err != nil {
		return Response{}, err
	}
	if err := checkStatus(res); err != nil {
		return res, err
	}
	return res, nil
}

// GetJSON fetches url and decodes a 2xx body into out.
func GetJSON(ctx context.Context, doer Doer, url string, headers map[string]string, out any) (Response, error) {
	if doer == nil {
		return Response{}, transportError(
			"transport: doer is required",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	merged := map[string]string{"Accept": "application/json"}
	for key, value := range headers {
		merged[key] = value
	}
	res, err := doer.Do(ctx, Request{
		Method:  http.MethodGet,
		URL:     url,
		Headers: merged,
	})
	if err != nil {
		return Response{}, err
	}
	if err := checkStatus(res); err != nil {
		return res, err
	}
	if out == nil {
		return res, nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return res, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode json response",
			http.StatusBadGateway,
			map[string]any{"body": snippet(res.Body, 256)},
		)
	}
	return res, nil
}

func checkStatus(res Response) error {
	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}
	return transportError(
		fmt.Sprintf("transport: upstream responded with status %d", res.StatusCode),
		goerrors.CategoryExternal,
		http.StatusBadGateway,
		map[string]any{
			"status_code": res.StatusCode,
			"body":        snippet(res.Body, 256),
		},
	)
}

func snippet(body []byte, limit int) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
