package httpclient

import (
	"encoding/json"

	"github.com/meridiandb/meridian-go/internal/retry"
)

// queryProblem is one entry of a query/analytics response's top-level
// "errors" array, grounded on document_query.hxx's query_problem /
// document_analytics.hxx's analytics_problem shape:
// {"code":<uint>,"msg":<string>}.
type queryProblem struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type serviceErrorEnvelope struct {
	Errors []queryProblem `json:"errors"`
}

// ClassifyResult is the outcome of classifying a non-2xx HTTP response:
// the retry.Reason it maps to, plus the first service-reported numeric
// error code (0 if the body carried none or wasn't the query/analytics
// JSON shape), for errors.go's structured ErrorCode mapping.
type ClassifyResult struct {
	Reason retry.Reason
	Code   int
}

// Classify maps a non-2xx HTTP response from service to a retry
// Reason, mirroring kvengine.Classify's role on the KV side (spec.md
// §7). Query and analytics responses carry a JSON "errors" array of
// numeric codes (document_query.hxx lines ~368-422,
// document_analytics.hxx lines ~248-311); search, views, and
// management only distinguish failures by HTTP status.
func Classify(service Service, statusCode int, body []byte) ClassifyResult {
	switch service {
	case ServiceQuery:
		if code, ok := firstErrorCode(body); ok {
			return classifyQueryCode(code)
		}
	case ServiceAnalytics, ServiceAnalyticsPriority:
		if code, ok := firstErrorCode(body); ok {
			return classifyAnalyticsCode(code)
		}
	}
	return classifyByStatus(service, statusCode)
}

func firstErrorCode(body []byte) (int, bool) {
	var env serviceErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Errors) == 0 {
		return 0, false
	}
	return env.Errors[0].Code, true
}

// classifyQueryCode implements document_query.hxx's error-code switch:
// a stale prepared plan (4040-4090) retries after re-preparing; a
// missing index (12004, 12016) is also worth one retry since a
// concurrent index build can resolve it; anything else (syntax error,
// planning failure, invalid argument, server timeout) is not retried
// by the orchestrator — the caller sees it via errors.go's structured
// code.
func classifyQueryCode(code int) ClassifyResult {
	switch {
	case code >= 4040 && code <= 4090:
		return ClassifyResult{Reason: retry.ReasonQueryPreparedStatementFailure, Code: code}
	case code == 12004 || code == 12016:
		return ClassifyResult{Reason: retry.ReasonQueryIndexNotFound, Code: code}
	default:
		return ClassifyResult{Reason: retry.ReasonDoNotRetry, Code: code}
	}
}

// classifyAnalyticsCode implements document_analytics.hxx's error-code
// switch: a full job queue (23007) is a temporary-capacity failure
// worth retrying; everything else (dataset/dataverse errors,
// compilation failure, server timeout) surfaces immediately.
func classifyAnalyticsCode(code int) ClassifyResult {
	if code == 23007 {
		return ClassifyResult{Reason: retry.ReasonAnalyticsTemporaryFailure, Code: code}
	}
	return ClassifyResult{Reason: retry.ReasonDoNotRetry, Code: code}
}

// classifyByStatus falls back to HTTP-status-only classification for
// responses that don't carry (or don't parse as) a query/analytics
// error envelope — search's {"status","error"} shape and views'/
// management's plain bodies among them.
func classifyByStatus(service Service, statusCode int) ClassifyResult {
	switch statusCode {
	case 429:
		if service == ServiceSearch {
			return ClassifyResult{Reason: retry.ReasonSearchTooManyRequests}
		}
		return ClassifyResult{Reason: retry.ReasonServiceResponseCodeIndicated}
	case 503:
		switch service {
		case ServiceAnalytics, ServiceAnalyticsPriority:
			return ClassifyResult{Reason: retry.ReasonAnalyticsTemporaryFailure}
		case ServiceViews:
			return ClassifyResult{Reason: retry.ReasonViewsTemporaryFailure}
		default:
			return ClassifyResult{Reason: retry.ReasonServiceNotAvailable}
		}
	case 500:
		if service == ServiceViews {
			return ClassifyResult{Reason: retry.ReasonViewsNoActivePartition}
		}
		return ClassifyResult{Reason: retry.ReasonServiceResponseCodeIndicated}
	case 502, 504:
		return ClassifyResult{Reason: retry.ReasonNodeNotAvailable}
	default:
		return ClassifyResult{Reason: retry.ReasonDoNotRetry}
	}
}
