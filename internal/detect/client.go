package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"audit-service/internal/domain/audit"
)

// Client calls a hosted inference workflow with one image and returns the
// detections it found. Detection failures are never fatal to an audit
// session: any transport or parse failure is logged and surfaced as zero
// detections with the original frame unchanged.
type Client struct {
	apiURL     string
	apiKey     string
	workspace  string
	workflowID string
	httpClient *http.Client
	log        zerolog.Logger
}

type Config struct {
	APIURL     string
	APIKey     string
	Workspace  string
	WorkflowID string
	Timeout    time.Duration
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		workspace:  cfg.Workspace,
		workflowID: cfg.WorkflowID,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type workflowRequest struct {
	APIKey string                 `json:"api_key"`
	Inputs map[string]interface{} `json:"inputs"`
}

// Detect submits one JPEG frame and returns the frame annotated with the
// detections drawn in, together with the detection list. On failure it
// returns the unannotated frame and an empty list, never an error.
func (c *Client) Detect(ctx context.Context, frame []byte) ([]byte, []audit.Detection) {
	detections, err := c.runWorkflow(ctx, frame)
	if err != nil {
		c.log.Warn().Err(err).Msg("detection call failed, treating frame as zero detections")
		return frame, nil
	}
	if len(detections) == 0 {
		return frame, nil
	}

	annotated, err := Annotate(frame, detections)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to annotate frame")
		return frame, detections
	}
	return annotated, detections
}

func (c *Client) runWorkflow(ctx context.Context, frame []byte) ([]audit.Detection, error) {
	payload := workflowRequest{
		APIKey: c.apiKey,
		Inputs: map[string]interface{}{
			"image": map[string]string{
				"type":  "base64",
				"value": base64.StdEncoding.EncodeToString(frame),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow request: %w", err)
	}

	url := fmt.Sprintf("%s/infer/workflows/%s/%s", c.apiURL, c.workspace, c.workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workflow request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("workflow returned status %d: %s", resp.StatusCode, snippet)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read workflow response: %w", err)
	}

	return parseWorkflowResponse(raw)
}

type prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

type workflowResponse struct {
	Outputs []map[string]json.RawMessage `json:"outputs"`
}

// parseWorkflowResponse extracts the detection list from a workflow result.
// The list usually sits under a top-level "predictions" entry of the first
// output, but workflow blocks can nest it under a dynamically named step
// output. The fallback scans the output entries one level deep for an
// object carrying a "predictions" list.
func parseWorkflowResponse(raw []byte) ([]audit.Detection, error) {
	var resp workflowResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Outputs) == 0 {
		// Some deployments return the outputs array directly.
		var outputs []map[string]json.RawMessage
		if err2 := json.Unmarshal(raw, &outputs); err2 != nil || len(outputs) == 0 {
			return nil, fmt.Errorf("unexpected workflow response shape")
		}
		resp.Outputs = outputs
	}

	output := resp.Outputs[0]

	if preds, ok := predictionsFrom(output["predictions"]); ok {
		return toDetections(preds), nil
	}

	for key, value := range output {
		if key == "predictions" {
			continue
		}
		var nested struct {
			Predictions []prediction `json:"predictions"`
		}
		if err := json.Unmarshal(value, &nested); err == nil && nested.Predictions != nil {
			return toDetections(nested.Predictions), nil
		}
	}

	// No detections entry anywhere counts as an empty frame, not an error.
	return nil, nil
}

func predictionsFrom(raw json.RawMessage) ([]prediction, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var preds []prediction
	if err := json.Unmarshal(raw, &preds); err == nil {
		return preds, true
	}
	// The primary key may itself hold an object wrapping the list.
	var nested struct {
		Predictions []prediction `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Predictions != nil {
		return nested.Predictions, true
	}
	return nil, false
}

func toDetections(preds []prediction) []audit.Detection {
	detections := make([]audit.Detection, 0, len(preds))
	for _, p := range preds {
		detections = append(detections, audit.Detection{
			Label:      p.Class,
			Confidence: p.Confidence,
			Box: audit.BoundingBox{
				X:      p.X,
				Y:      p.Y,
				Width:  p.Width,
				Height: p.Height,
			},
		})
	}
	return detections
}
