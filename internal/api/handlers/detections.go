package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// Messages returned by the ingestion endpoint.
const (
	msgInvalidJSON   = "Invalid JSON data"
	msgExpectedArray = "Expected array of detections"
	msgMissingField  = "Missing required field: %s"
)

// CreateDetections handles POST /api/detections. The body is a JSON array
// of detection payloads; either all of them are stored or none is.
func (c *Controller) CreateDetections(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read request body", http.StatusBadRequest)
	}
	if !json.Valid(body) {
		return c.HandleError(ctx, nil, msgInvalidJSON, http.StatusBadRequest)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return c.HandleError(ctx, nil, msgExpectedArray, http.StatusBadRequest)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return c.HandleError(ctx, nil, msgExpectedArray, http.StatusBadRequest)
	}

	now := c.now()
	detections := make([]detection.Detection, 0, len(items))
	for i, item := range items {
		d, message := c.decodeDetection(item, i, now)
		if message != "" {
			return c.HandleError(ctx, nil, message, http.StatusBadRequest)
		}
		detections = append(detections, d)
	}

	if err := c.store.SaveDetections(ctx.Request().Context(), detections); err != nil {
		return c.HandleError(ctx, err, "Failed to save detections", http.StatusInternalServerError)
	}

	c.InvalidateObservations()
	if c.metrics != nil {
		c.metrics.HTTP.AddIngested(len(detections))
	}
	GetLogger().Debug("Detections ingested", logger.Int("count", len(detections)))
	return ctx.NoContent(http.StatusNoContent)
}

// decodeDetection converts one array element. A non-empty message means the
// element was rejected.
func (c *Controller) decodeDetection(item json.RawMessage, index int, now time.Time) (detection.Detection, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return detection.Detection{}, msgExpectedArray
	}
	for _, name := range detection.PayloadRequiredFields {
		if _, ok := fields[name]; !ok {
			return detection.Detection{}, fmt.Sprintf(msgMissingField, name)
		}
	}

	var payload detection.Payload
	if err := json.Unmarshal(item, &payload); err != nil {
		return detection.Detection{}, msgInvalidJSON
	}
	if err := c.validate.Struct(&payload); err != nil {
		return detection.Detection{}, fmt.Sprintf("Invalid detection at index %d: %s", index, describeValidation(err))
	}

	d, err := payload.Detection(now)
	if err != nil {
		return detection.Detection{}, fmt.Sprintf("Invalid detection at index %d: %v", index, err)
	}
	return d, ""
}

// describeValidation renders validator errors as "field tag" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
