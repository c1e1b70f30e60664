package reddit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Markers the older jquery-style responses carry instead of structured errors.
const (
	legacyCaptchaMarker   = ".error.BAD_CAPTCHA.field-captcha"
	legacyRateLimitMarker = ".error.RATELIMIT.field-ratelimit"
	legacyPasswordMarker  = "invalid password"
)

// APIError is one entry of the json.errors array returned with api_type=json.
type APIError struct {
	Code    string
	Message string
	Field   string
}

func (e APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// APIResponse is the api_type=json envelope of the write endpoints.
type APIResponse struct {
	JSON struct {
		Errors [][]string `json:"errors"`
		Data   struct {
			Modhash string `json:"modhash"`
			Cookie  string `json:"cookie"`
			ID      string `json:"id"`
			Name    string `json:"name"`
			URL     string `json:"url"`
		} `json:"data"`
	} `json:"json"`
}

// APIErrors converts the raw error triples to APIError values.
func (r APIResponse) APIErrors() []APIError {
	out := make([]APIError, 0, len(r.JSON.Errors))
	for _, raw := range r.JSON.Errors {
		var e APIError
		if len(raw) > 0 {
			e.Code = raw[0]
		}
		if len(raw) > 1 {
			e.Message = raw[1]
		}
		if len(raw) > 2 {
			e.Field = raw[2]
		}
		out = append(out, e)
	}
	return out
}

// CheckLogin inspects a raw login response body. Structured error codes
// are checked first; the loose "invalid password" marker is kept for sites
// that answer in the older format.
func CheckLogin(body []byte) (APIResponse, error) {
	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("%w: decode login response: %v", ErrAuth, err)
	}
	if errs := resp.APIErrors(); len(errs) > 0 {
		return resp, fmt.Errorf("%w: %v", ErrAuth, errs[0])
	}
	if strings.Contains(string(body), legacyPasswordMarker) {
		return resp, fmt.Errorf("%w: %s", ErrAuth, legacyPasswordMarker)
	}
	return resp, nil
}

// CheckSubmit inspects a raw submit response body and returns an error
// wrapping ErrCaptchaRequired, ErrRateLimited or ErrSubmitFailed.
func CheckSubmit(body []byte) (Submitted, error) {
	raw := string(body)
	if strings.Contains(raw, legacyCaptchaMarker) {
		return Submitted{}, ErrCaptchaRequired
	}
	if strings.Contains(raw, legacyRateLimitMarker) {
		return Submitted{}, ErrRateLimited
	}

	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Submitted{}, fmt.Errorf("%w: %w: %v", ErrSubmitFailed, ErrMalformedResponse, err)
	}
	return ClassifyAPIErrors(resp)
}

// ClassifyAPIErrors turns the structured errors of a submit response into
// the matching sentinel.
func ClassifyAPIErrors(resp APIResponse) (Submitted, error) {
	for _, e := range resp.APIErrors() {
		switch strings.ToUpper(e.Code) {
		case "BAD_CAPTCHA":
			return Submitted{}, fmt.Errorf("%w: %v", ErrCaptchaRequired, e)
		case "RATELIMIT":
			return Submitted{}, fmt.Errorf("%w: %v", ErrRateLimited, e)
		default:
			return Submitted{}, fmt.Errorf("%w: %v", ErrSubmitFailed, e)
		}
	}
	return Submitted{ID: resp.JSON.Data.ID, URL: resp.JSON.Data.URL}, nil
}

// ClassifyMessage maps free-form error text (as surfaced by third-party
// clients) to a submit sentinel.
func ClassifyMessage(msg string) error {
	upper := strings.ToUpper(msg)
	switch {
	case strings.Contains(upper, "BAD_CAPTCHA"):
		return ErrCaptchaRequired
	case strings.Contains(upper, "RATELIMIT"), strings.Contains(upper, "DOING THAT TOO MUCH"), strings.Contains(upper, "TOO MANY REQUESTS"):
		return ErrRateLimited
	default:
		return ErrSubmitFailed
	}
}
