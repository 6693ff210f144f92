package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MessageFor is the summary of error for each HTTP status code range.
type MessageFor map[StatusCodeRange]string

// UnmarshalJSON unmarshals http response which has json content.
//
// args:
//   - resp: http response to be processed.
//   - v: value which response should be.
//   - messageFor: title of error message for HTTP status code range.
//
// return:
//
//	CUIError if...
//	- can not read response body
//	- response body is not shaped of v
//	- status code is not 2xx
func UnmarshalJSON[T any](resp *http.Response, v *T, messageFor MessageFor) error {
	defer resp.Body.Close()
	if StatusCodeRangeOf(resp) == Status2xx {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			message := fmt.Sprintf("unexpected error: %s (status code = %d)", err.Error(), resp.StatusCode)
			return NewCuiError(message, WithCause(err), WithStatusCode(resp.StatusCode))
		}
		return nil
	}
	return errorOf(resp, messageFor)
}

// Stream returns the body of response as is when its status is 2xx.
//
// The caller should close the body.
func Stream(resp *http.Response, messageFor MessageFor) (io.ReadCloser, error) {
	if StatusCodeRangeOf(resp) == Status2xx {
		return resp.Body, nil
	}
	defer resp.Body.Close()
	return nil, errorOf(resp, messageFor)
}

// Discard reads out the body of response, and reports whether its status is 2xx.
func Discard(resp *http.Response, messageFor MessageFor) error {
	rc, err := Stream(resp, messageFor)
	if rc != nil {
		io.Copy(io.Discard, rc)
		rc.Close()
	}
	return err
}

func errorOf(resp *http.Response, messageFor MessageFor) error {
	scr := StatusCodeRangeOf(resp)
	message, ok := messageFor[scr]
	if !ok {
		message = scr.String()
	}
	message = fmt.Sprintf("%s (status code = %d)", message, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewCuiError(
			fmt.Sprintf("%s\ncannot read server message: %s", message, err.Error()),
			WithCause(err),
			WithStatusCode(resp.StatusCode),
		)
	}

	detail := parseErrorMessage(body)
	if detail == "" {
		return NewCuiError(message, WithStatusCode(resp.StatusCode))
	}
	return NewCuiError(
		message,
		WithDetail(func(summary string) (string, error) {
			return summary + "\n" + detail, nil
		}),
		WithStatusCode(resp.StatusCode),
	)
}

// parseErrorMessage extracts the server message from error response body.
//
// The platform services answer errors in one of
// {"message": "..."}, {"Error": "..."}, {"error": "..."} or {"reason": "..."}.
// Other bodies are returned as is.
func parseErrorMessage(body []byte) string {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"message", "Error", "error", "reason"} {
			raw, ok := fields[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				return s
			}
			if detail, err := json.MarshalIndent(raw, "", "    "); err == nil {
				return string(detail)
			}
		}
	}
	return strings.TrimSpace(string(body))
}
