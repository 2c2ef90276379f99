package spots

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/parkcast/core/ingest"
	"github.com/kilianp07/parkcast/core/model"
	"github.com/kilianp07/parkcast/core/query"
)

const maxAnalysisBytes = 1 << 20

type handler struct {
	deps Deps
}

func (h *handler) current(c *gin.Context) {
	q, err := parseLocation(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.deps.Engine.Query(c.Request.Context(), q))
}

func (h *handler) forecast(c *gin.Context) {
	q, err := parseLocation(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw := c.Query("arrival_time")
	if raw == "" {
		raw = c.Query("time")
	}
	arrival, err := query.ParseArrivalTime(raw, h.deps.Location)
	if err != nil && h.deps.Log != nil {
		h.deps.Log.Warnw("using default arrival time", map[string]any{"arrival_time": raw, "error": err.Error()})
	}
	q.ArrivalTime = arrival
	c.JSON(http.StatusOK, h.deps.Engine.Query(c.Request.Context(), q))
}

func (h *handler) analysis(c *gin.Context) {
	cameraID := c.Query("camera_id")
	if cameraID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera_id is required"})
		return
	}
	var ts time.Time
	if s := c.Query("timestamp"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp"})
			return
		}
		ts = t
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAnalysisBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) > maxAnalysisBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "analysis result too large"})
		return
	}
	out, err := h.deps.Ingester.Ingest(c.Request.Context(), cameraID, body, ts)
	if err != nil {
		if errors.Is(err, ingest.ErrMalformedIngestion) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// parseLocation reads lat, lng and radius_meters (or radius). A requester
// location needs both coordinates.
func parseLocation(c *gin.Context) (model.Query, error) {
	var q model.Query
	var err error
	if q.Lat, err = optionalFloat(c, "lat"); err != nil {
		return q, err
	}
	if q.Lng, err = optionalFloat(c, "lng"); err != nil {
		return q, err
	}
	if q.Lat != nil && (*q.Lat < -90 || *q.Lat > 90) {
		return q, fmt.Errorf("lat out of range")
	}
	if q.Lng != nil && (*q.Lng < -180 || *q.Lng > 180) {
		return q, fmt.Errorf("lng out of range")
	}
	key := "radius_meters"
	if c.Query(key) == "" {
		key = "radius"
	}
	if q.RadiusMeters, err = optionalFloat(c, key); err != nil {
		return q, err
	}
	if q.RadiusMeters != nil && *q.RadiusMeters < 0 {
		return q, fmt.Errorf("%s must not be negative", key)
	}
	return q, nil
}

func optionalFloat(c *gin.Context, key string) (*float64, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("invalid %s", key)
	}
	return &v, nil
}
