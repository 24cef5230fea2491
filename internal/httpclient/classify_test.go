package httpclient

import (
	"fmt"
	"testing"

	"github.com/meridiandb/meridian-go/internal/retry"
	"github.com/stretchr/testify/assert"
)

func TestClassify_QueryPreparedPlanFailureRetries(t *testing.T) {
	body := []byte(`{"errors":[{"code":4050,"msg":"prepared statement not found"}]}`)
	got := Classify(ServiceQuery, 404, body)
	assert.Equal(t, retry.ReasonQueryPreparedStatementFailure, got.Reason)
	assert.Equal(t, 4050, got.Code)
}

func TestClassify_QueryIndexNotFoundRetries(t *testing.T) {
	for _, code := range []int{12004, 12016} {
		body := []byte(fmt.Sprintf(`{"errors":[{"code":%d,"msg":"no index"}]}`, code))
		got := Classify(ServiceQuery, 404, body)
		assert.Equal(t, retry.ReasonQueryIndexNotFound, got.Reason)
		assert.Equal(t, code, got.Code)
	}
}

func TestClassify_QueryOtherCodeSurfaces(t *testing.T) {
	body := []byte(`{"errors":[{"code":12003,"msg":"bucket not found"}]}`)
	got := Classify(ServiceQuery, 404, body)
	assert.Equal(t, retry.ReasonDoNotRetry, got.Reason)
	assert.Equal(t, 12003, got.Code)
}

func TestClassify_AnalyticsTemporaryFailureRetries(t *testing.T) {
	body := []byte(`{"errors":[{"code":23007,"msg":"job queue full"}]}`)
	got := Classify(ServiceAnalytics, 503, body)
	assert.Equal(t, retry.ReasonAnalyticsTemporaryFailure, got.Reason)

	got = Classify(ServiceAnalyticsPriority, 503, body)
	assert.Equal(t, retry.ReasonAnalyticsTemporaryFailure, got.Reason)
}

func TestClassify_AnalyticsOtherCodeSurfaces(t *testing.T) {
	body := []byte(`{"errors":[{"code":24000,"msg":"compilation failure"}]}`)
	got := Classify(ServiceAnalytics, 400, body)
	assert.Equal(t, retry.ReasonDoNotRetry, got.Reason)
}

func TestClassify_SearchTooManyRequestsByStatus(t *testing.T) {
	got := Classify(ServiceSearch, 429, []byte(`{"status":"fail","error":"rate limited"}`))
	assert.Equal(t, retry.ReasonSearchTooManyRequests, got.Reason)
}

func TestClassify_ViewsTemporaryFailureAndNoActivePartition(t *testing.T) {
	assert.Equal(t, retry.ReasonViewsTemporaryFailure, Classify(ServiceViews, 503, nil).Reason)
	assert.Equal(t, retry.ReasonViewsNoActivePartition, Classify(ServiceViews, 500, nil).Reason)
}

func TestClassify_NodeNotAvailableOnBadGatewayAndTimeout(t *testing.T) {
	assert.Equal(t, retry.ReasonNodeNotAvailable, Classify(ServiceManagement, 502, nil).Reason)
	assert.Equal(t, retry.ReasonNodeNotAvailable, Classify(ServiceQuery, 504, nil).Reason)
}

func TestClassify_MalformedQueryBodyFallsBackToStatus(t *testing.T) {
	got := Classify(ServiceQuery, 503, []byte(`not json`))
	assert.Equal(t, retry.ReasonServiceNotAvailable, got.Reason)
	assert.Equal(t, 0, got.Code)
}

func TestClassify_UnrecognizedStatusDoesNotRetry(t *testing.T) {
	assert.Equal(t, retry.ReasonDoNotRetry, Classify(ServiceManagement, 400, nil).Reason)
}
