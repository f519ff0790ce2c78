package dataquery

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	apperrors "macrosynergy/internal/errors"
)

// Info is the status block of heartbeat and error payloads. Code arrives
// as either a number or a string.
type Info struct {
	Code        any    `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

// CodeString normalises Code.
func (i *Info) CodeString() string {
	if i == nil || i.Code == nil {
		return ""
	}
	return fmt.Sprint(i.Code)
}

// Attribute is one expression inside an instrument.
type Attribute struct {
	Expression string  `json:"expression"`
	Label      string  `json:"label,omitempty"`
	TimeSeries [][]any `json:"time-series"`
}

// Instrument carries either time-series attributes or catalogue fields.
type Instrument struct {
	Attributes     []Attribute `json:"attributes,omitempty"`
	InstrumentID   string      `json:"instrument-id,omitempty"`
	InstrumentName string      `json:"instrument-name,omitempty"`
	Item           int         `json:"item,omitempty"`
}

// Response is a page returned by the API.
type Response struct {
	Info        *Info               `json:"info,omitempty"`
	Links       []map[string]string `json:"links,omitempty"`
	Instruments []Instrument        `json:"instruments"`

	hasInstruments bool
}

// UnmarshalJSON records whether the instruments key was present.
func (r *Response) UnmarshalJSON(data []byte) error {
	type plain Response
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Response(p)
	_, r.hasInstruments = raw["instruments"]
	return nil
}

// Next returns the link to the following page, or "".
func (r *Response) Next() string {
	for _, l := range r.Links {
		if next, ok := l["next"]; ok && next != "" {
			return next
		}
	}
	return ""
}

// ValidateResponse maps an HTTP response to the package's error types and
// decodes its body.
func ValidateResponse(resp *http.Response, body []byte) (*Response, error) {
	path := ""
	if resp.Request != nil && resp.Request.URL != nil {
		path = resp.Request.URL.Path
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apperrors.NewAuthenticationError(
			fmt.Sprintf("request to %s was not authorised", path), nil)
	case resp.StatusCode == http.StatusForbidden && strings.HasSuffix(path, HeartbeatEndpoint):
		return nil, apperrors.NewHeartbeatError("heartbeat rejected the session", nil)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.NewInvalidResponseError(
			fmt.Sprintf("request to %s returned status %d", path, resp.StatusCode), nil).
			WithContext("body", truncate(string(body), 200))
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, apperrors.NewInvalidResponseError(fmt.Sprintf("empty response from %s", path), nil)
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperrors.NewInvalidResponseError(fmt.Sprintf("response from %s is not JSON", path), err)
	}
	return &out, nil
}

// checkContent rejects payloads without instruments.
func checkContent(r *Response) error {
	if r == nil {
		return apperrors.NewInvalidResponseError("empty response", nil)
	}
	if !r.hasInstruments {
		if r.Info.CodeString() == "204" {
			return apperrors.NewNoContentError(r.Info.Message)
		}
		return apperrors.NewInvalidResponseError("response has no instruments", nil)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// TimeSeries is a downloaded expression. Values are NaN where the API
// returned null.
type TimeSeries struct {
	Expression string
	Dates      []time.Time
	Values     []float64
}

// Empty reports whether the series has no usable value.
func (ts TimeSeries) Empty() bool {
	for _, v := range ts.Values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// parseAttribute converts the [[date, value], ...] pairs of an attribute.
func parseAttribute(a Attribute) (TimeSeries, error) {
	ts := TimeSeries{Expression: a.Expression}
	if a.Expression == "" {
		return ts, apperrors.NewInvalidResponseError("attribute without expression", nil)
	}
	for _, pair := range a.TimeSeries {
		if len(pair) != 2 {
			return ts, apperrors.NewInvalidResponseError(
				fmt.Sprintf("malformed observation in %s", a.Expression), nil)
		}
		ds, ok := pair[0].(string)
		if !ok {
			return ts, apperrors.NewInvalidResponseError(
				fmt.Sprintf("malformed date in %s", a.Expression), nil)
		}
		d, err := time.Parse(DateFormat, ds)
		if err != nil {
			return ts, apperrors.NewParsingError(fmt.Sprintf("date %q in %s", ds, a.Expression), err)
		}
		v := math.NaN()
		if f, ok := pair[1].(float64); ok {
			v = f
		}
		ts.Dates = append(ts.Dates, d)
		ts.Values = append(ts.Values, v)
	}
	return ts, nil
}

// UnavailableExpressions lists the expected expressions that did not come
// back with any value, in the order given.
func UnavailableExpressions(expected []string, got []TimeSeries) []string {
	have := make(map[string]bool, len(got))
	for _, ts := range got {
		if !ts.Empty() {
			have[ts.Expression] = true
		}
	}
	var out []string
	for _, e := range expected {
		if !have[e] {
			out = append(out, e)
		}
	}
	return out
}
