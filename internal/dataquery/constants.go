// Package dataquery is a client for the JPMorgan DataQuery REST API: OAuth or
// certificate authentication, heartbeat checks, batched time-series
// downloads with pagination and retries, and catalogue listings.
package dataquery

import "time"

const (
	OAuthBaseURL      = "https://api-developer.jpmorgan.com/research/dataquery-authe/api/v2"
	OAuthTokenURL     = "https://authe.jpmorgan.com/as/token.oauth2"
	OAuthDQResourceID = "JPMC:URI:RS-06785-DataQueryExternalApi-PROD"
	CertBaseURL       = "https://platform.jpmorgan.com/research/dataquery/api/v2"

	HeartbeatEndpoint  = "/services/heartbeat"
	TimeseriesEndpoint = "/expressions/time-series"
	CatalogueEndpoint  = "/group/instruments"

	JPMaQSGroupID = "JPMAQS"

	// BatchLimit is the largest number of expressions the API accepts per
	// request.
	BatchLimit = 20
	APIDelay   = 300 * time.Millisecond
	MaxRetries = 5

	// DateFormat is the layout of dates in requests and time series.
	DateFormat = "20060102"
)

// Request defaults for time-series downloads.
const (
	CalendarAllDays      = "CAL_ALLDAYS"
	FrequencyDaily       = "FREQ_DAY"
	ConversionLastBusAbs = "CONV_LASTBUS_ABS"
	NanTreatmentNothing  = "NA_NOTHING"
	NoReferenceData      = "NO_REFERENCE_DATA"
)
