package elevation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/geo"
	"github.com/FoxHui1759/A-mobile-application-that-assists-individuals-with-visual-impairment-to-travel-in-Hong-Kong/internal/lib/routing"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func loadTestFixture(t *testing.T, filename string) string {
	data, err := os.ReadFile("testdata/" + filename)
	require.NoError(t, err, "Failed to load test fixture %s", filename)
	return string(data)
}

func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var path = []geo.Point{
	{Latitude: 22.28327, Longitude: 114.13319},
	{Latitude: 22.284, Longitude: 114.13319},
	{Latitude: 22.284, Longitude: 114.135},
}

func TestSample_Success(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		createMockResponse(200, loadTestFixture(t, "three_points.json")), nil)

	client := NewClientWithHTTPDoer("test-api-key", "https://maps.example.com", mockHTTP)
	elevations := client.Sample(context.Background(), path)
	assert.Equal(t, []float64{12.5, 31.0, 48.25}, elevations)

	req := mockHTTP.Calls[0].Arguments.Get(0).(*http.Request)
	assert.Equal(t, "/maps/api/elevation/json", req.URL.Path)
	locations := req.URL.Query().Get("locations")
	require.True(t, strings.HasPrefix(locations, "enc:"))
	assert.Len(t, geo.DecodePolyline(strings.TrimPrefix(locations, "enc:")), 3)
	mockHTTP.AssertExpectations(t)
}

func TestSample_FailuresAreEmpty(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		err  error
	}{
		{"transport", nil, errors.New("connection reset")},
		{"rate limited", createMockResponse(429, ""), nil},
		{"server error", createMockResponse(500, "oops"), nil},
		{"bad status", createMockResponse(200, `{"status":"REQUEST_DENIED","results":[]}`), nil},
		{"short result", createMockResponse(200, `{"status":"OK","results":[{"elevation":1}]}`), nil},
		{"malformed", createMockResponse(200, `{"status":`), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockHTTP := &MockHTTPDoer{}
			mockHTTP.On("Do", mock.Anything).Return(tt.resp, tt.err)

			client := NewClientWithHTTPDoer("k", "https://maps.example.com", mockHTTP)
			assert.Empty(t, client.Sample(context.Background(), path))
		})
	}
}

func TestSample_NoPoints(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	client := NewClientWithHTTPDoer("k", "https://maps.example.com", mockHTTP)

	assert.Nil(t, client.Sample(context.Background(), nil))
	mockHTTP.AssertNotCalled(t, "Do", mock.Anything)
}

func elevationBody(from, n int) string {
	results := make([]string, n)
	for i := range results {
		results[i] = fmt.Sprintf(`{"elevation": %d, "resolution": 9.5}`, from+i)
	}
	return `{"status": "OK", "results": [` + strings.Join(results, ",") + `]}`
}

func TestSample_BatchesLongPaths(t *testing.T) {
	long := make([]geo.Point, 150)
	for i := range long {
		long[i] = geo.Offset(path[0], float64(i)*5, float64(i%2)*10)
	}

	var requested []int
	mockHTTP := &MockHTTPDoer{}
	record := func(args mock.Arguments) {
		req := args.Get(0).(*http.Request)
		encoded := strings.TrimPrefix(req.URL.Query().Get("locations"), "enc:")
		requested = append(requested, len(geo.DecodePolyline(encoded)))
	}
	mockHTTP.On("Do", mock.Anything).Run(record).Return(createMockResponse(200, elevationBody(0, 64)), nil).Once()
	mockHTTP.On("Do", mock.Anything).Run(record).Return(createMockResponse(200, elevationBody(64, 64)), nil).Once()
	mockHTTP.On("Do", mock.Anything).Run(record).Return(createMockResponse(200, elevationBody(128, 22)), nil).Once()

	client := NewClientWithHTTPDoer("k", "https://maps.example.com", mockHTTP)
	elevations := client.Sample(context.Background(), long)

	require.Len(t, elevations, len(long), "one elevation per input point")
	assert.Equal(t, []int{64, 64, 22}, requested)
	for i, e := range elevations {
		assert.Equal(t, float64(i), e)
	}
}

func TestSample_FailedBatchIsEmpty(t *testing.T) {
	long := make([]geo.Point, 100)
	for i := range long {
		long[i] = geo.Offset(path[0], float64(i)*5, 0)
	}

	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(200, elevationBody(0, 64)), nil).Once()
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(500, "backend error"), nil).Once()

	client := NewClientWithHTTPDoer("k", "https://maps.example.com", mockHTTP)
	assert.Nil(t, client.Sample(context.Background(), long))
	mockHTTP.AssertNumberOfCalls(t, "Do", 2)
}

func TestSample_FeedsEvaluatorBeyondOneBatch(t *testing.T) {
	climb := make([]geo.Point, 100)
	for i := range climb {
		climb[i] = geo.Offset(path[0], float64(i)*5, float64(i%2)*2)
	}

	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(200, elevationBody(0, 64)), nil).Once()
	mockHTTP.On("Do", mock.Anything).Return(createMockResponse(200, elevationBody(64, 36)), nil).Once()

	cfg := routing.DefaultEvaluatorConfig()
	cfg.MaxElevationSamples = 100
	evaluator := routing.NewEvaluator(cfg, NewClientWithHTTPDoer("k", "https://maps.example.com", mockHTTP))

	selection, err := evaluator.Evaluate(context.Background(), []routing.RouteCandidate{{
		Summary:          "Uphill",
		OverviewPolyline: geo.Polyline{Points: climb},
		TotalDurationS:   400,
	}})
	require.NoError(t, err)

	slope := selection.Selected().Slope
	assert.True(t, slope.Sampled)
	assert.Greater(t, slope.Factor, 0.0)
	assert.InDelta(t, 99, slope.TotalAscentM, 1e-9)
}
