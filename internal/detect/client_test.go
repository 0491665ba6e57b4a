package detect

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"audit-service/internal/domain/audit"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(Config{
		APIURL:     "https://detect.example.com",
		APIKey:     "test-key",
		Workspace:  "facility",
		WorkflowID: "defect-audit",
		Timeout:    5 * time.Second,
	}, zerolog.Nop())

	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func testFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

const workflowURL = "https://detect.example.com/infer/workflows/facility/defect-audit"

func TestDetectParsesPrimaryShape(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("POST", workflowURL,
		httpmock.NewStringResponder(200, `{
			"outputs": [{
				"predictions": [
					{"class": "Retak", "confidence": 0.91, "x": 32, "y": 24, "width": 10, "height": 8},
					{"class": "Noda", "confidence": 0.55, "x": 10, "y": 10, "width": 4, "height": 4}
				]
			}]
		}`))

	annotated, detections := c.Detect(context.Background(), testFrame(t))
	require.Len(t, detections, 2)
	require.Equal(t, "Retak", detections[0].Label)
	require.InDelta(t, 0.91, detections[0].Confidence, 1e-9)
	require.InDelta(t, 32.0, detections[0].Box.X, 1e-9)
	require.NotEmpty(t, annotated)
}

func TestDetectParsesNestedStepOutput(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("POST", workflowURL,
		httpmock.NewStringResponder(200, `{
			"outputs": [{
				"visualization": "base64...",
				"detection_step": {
					"predictions": [
						{"class": "sobek", "confidence": 0.8, "x": 5, "y": 5, "width": 3, "height": 3}
					]
				}
			}]
		}`))

	_, detections := c.Detect(context.Background(), testFrame(t))
	require.Len(t, detections, 1)
	require.Equal(t, "sobek", detections[0].Label)
}

func TestDetectParsesWrappedPredictions(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("POST", workflowURL,
		httpmock.NewStringResponder(200, `{
			"outputs": [{
				"predictions": {
					"predictions": [
						{"class": "Bocor", "confidence": 0.7, "x": 1, "y": 1, "width": 2, "height": 2}
					]
				}
			}]
		}`))

	_, detections := c.Detect(context.Background(), testFrame(t))
	require.Len(t, detections, 1)
	require.Equal(t, "Bocor", detections[0].Label)
}

func TestDetectTreatsMissingPredictionsAsEmptyFrame(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("POST", workflowURL,
		httpmock.NewStringResponder(200, `{"outputs": [{"visualization": "only"}]}`))

	frame := testFrame(t)
	annotated, detections := c.Detect(context.Background(), frame)
	require.Empty(t, detections)
	require.Equal(t, frame, annotated)
}

func TestDetectSwallowsTransportFailure(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("POST", workflowURL,
		httpmock.NewErrorResponder(context.DeadlineExceeded))

	frame := testFrame(t)
	annotated, detections := c.Detect(context.Background(), frame)
	require.Empty(t, detections)
	require.Equal(t, frame, annotated)
}

func TestDetectSwallowsServerError(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("POST", workflowURL,
		httpmock.NewStringResponder(500, `{"error": "model unavailable"}`))

	frame := testFrame(t)
	annotated, detections := c.Detect(context.Background(), frame)
	require.Empty(t, detections)
	require.Equal(t, frame, annotated)
}

func TestDetectSwallowsMalformedResponse(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder("POST", workflowURL,
		httpmock.NewStringResponder(200, `not json at all`))

	frame := testFrame(t)
	annotated, detections := c.Detect(context.Background(), frame)
	require.Empty(t, detections)
	require.Equal(t, frame, annotated)
}

func TestAnnotateDrawsOntoFrame(t *testing.T) {
	frame := testFrame(t)
	annotated, err := Annotate(frame, []audit.Detection{
		{Label: "Retak", Confidence: 0.9, Box: audit.BoundingBox{X: 32, Y: 24, Width: 20, Height: 16}},
	})
	require.NoError(t, err)
	require.NotEqual(t, frame, annotated)

	img, _, err := image.Decode(bytes.NewReader(annotated))
	require.NoError(t, err)
	require.Equal(t, 64, img.Bounds().Dx())
	require.Equal(t, 48, img.Bounds().Dy())
}

func TestAnnotateRejectsGarbage(t *testing.T) {
	_, err := Annotate([]byte("not a jpeg"), nil)
	require.Error(t, err)
}
