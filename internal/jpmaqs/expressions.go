// Package jpmaqs turns JPMaQS tickers into DataQuery expressions and the
// downloaded series back into a quantamental data frame.
package jpmaqs

import (
	"fmt"
	"slices"
	"strings"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

const expressionPrefix = "DB(JPMAQS,"

// Expression returns "DB(JPMAQS,<ticker>,<metric>)".
func Expression(ticker, metric string) string {
	return expressionPrefix + ticker + "," + metric + ")"
}

// Deconstruct splits an expression into its ticker and metric.
func Deconstruct(expression string) (ticker, metric string, err error) {
	body, ok := strings.CutPrefix(expression, expressionPrefix)
	if !ok || !strings.HasSuffix(body, ")") {
		return "", "", apperrors.Validationf("not a JPMaQS expression: %q", expression)
	}
	body = strings.TrimSuffix(body, ")")
	i := strings.LastIndex(body, ",")
	if i <= 0 || i == len(body)-1 {
		return "", "", apperrors.Validationf("not a JPMaQS expression: %q", expression)
	}
	return body[:i], body[i+1:], nil
}

// DefaultCids is the standard cross-section set used when categories are
// requested without cross-sections.
func DefaultCids() []string {
	dmca := []string{"AUD", "CAD", "CHF", "EUR", "GBP", "JPY", "NOK", "NZD", "SEK", "USD"}
	dmec := []string{"DEM", "ESP", "FRF", "ITL", "NLG"}
	latm := []string{"BRL", "COP", "CLP", "MXN", "PEN"}
	emea := []string{"HUF", "ILS", "PLN", "RON", "RUB", "TRY", "ZAR"}
	emas := []string{"CZK", "CNY", "IDR", "INR", "KRW", "MYR", "PHP", "SGD", "THB", "TWD"}
	out := slices.Concat(dmca, dmec, latm, emea, emas)
	slices.Sort(out)
	return out
}

// ValidateMetrics rejects unknown metric names.
func ValidateMetrics(metrics []string) error {
	if len(metrics) == 0 {
		return apperrors.NewAppValidationError("at least one metric is required")
	}
	for _, m := range metrics {
		if !qdf.IsMetric(m) {
			return apperrors.Validationf("incorrect metric passed: %s", m)
		}
	}
	return nil
}

// Tickers joins explicit tickers with the cids x xcats product, dropping
// duplicates while keeping the first occurrence.
func Tickers(tickers, cids, xcats []string) []string {
	out := make([]string, 0, len(tickers)+len(cids)*len(xcats))
	seen := make(map[string]bool)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range tickers {
		add(t)
	}
	for _, c := range cids {
		for _, x := range xcats {
			add(qdf.Ticker(c, x))
		}
	}
	return out
}

// ConstructExpressions builds one expression per ticker and metric. When
// xcats are given without cids, DefaultCids is used.
func ConstructExpressions(tickers, cids, xcats, metrics []string) ([]string, error) {
	if err := ValidateMetrics(metrics); err != nil {
		return nil, err
	}
	if len(xcats) > 0 && len(cids) == 0 {
		cids = DefaultCids()
	}
	all := Tickers(tickers, cids, xcats)
	if len(all) == 0 {
		return nil, apperrors.NewAppValidationError("no tickers requested")
	}
	out := make([]string, 0, len(all)*len(metrics))
	for _, t := range all {
		if _, _, err := qdf.SplitTicker(t); err != nil {
			return nil, fmt.Errorf("construct expressions: %w", err)
		}
		for _, m := range metrics {
			out = append(out, Expression(t, m))
		}
	}
	return out, nil
}
