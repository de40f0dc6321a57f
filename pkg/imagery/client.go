package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"streetroll/pkg/geo"
	"streetroll/pkg/model"
	"streetroll/pkg/request"
)

// searchFields are the image attributes requested from the Graph API.
const searchFields = "id,computed_compass_angle,geometry,captured_at,is_pano,thumb_2048_url"

// Searcher returns the provider's images inside a bounding box.
type Searcher interface {
	Search(ctx context.Context, bbox orb.Bound) ([]model.ImageCandidate, error)
}

// Client queries the Mapillary Graph API image search.
type Client struct {
	rc      *request.Client
	baseURL string
	token   string
	limit   int
}

// NewClient creates a Mapillary client. limit caps the rows per query.
func NewClient(rc *request.Client, baseURL, token string, limit int) *Client {
	if limit <= 0 {
		limit = 50
	}
	return &Client{
		rc:      rc,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		limit:   limit,
	}
}

type searchResponse struct {
	Data []imageRow `json:"data"`
}

type imageRow struct {
	ID           string            `json:"id"`
	CompassAngle *float64          `json:"computed_compass_angle"`
	Geometry     *geojson.Geometry `json:"geometry"`
	CapturedAt   int64             `json:"captured_at"` // epoch milliseconds
	IsPano       bool              `json:"is_pano"`
	Thumb        string            `json:"thumb_2048_url"`
}

// Search performs one bounding-box query. Non-2xx answers come back as *request.StatusError.
func (c *Client) Search(ctx context.Context, bbox orb.Bound) ([]model.ImageCandidate, error) {
	q := url.Values{}
	q.Set("fields", searchFields)
	q.Set("bbox", geo.BBoxParam(bbox))
	q.Set("limit", strconv.Itoa(c.limit))
	u := c.baseURL + "/images?" + q.Encode()

	headers := map[string]string{"Authorization": "OAuth " + c.token}
	body, err := c.rc.GetWithHeaders(ctx, u, headers, "")
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mapillary: decode images: %w", err)
	}

	if len(resp.Data) == 0 {
		c.rc.Tracker().TrackAPIZero("mapillary")
	}
	out := make([]model.ImageCandidate, 0, len(resp.Data))
	for i := range resp.Data {
		out = append(out, resp.Data[i].candidate())
	}
	return out, nil
}

func (r *imageRow) candidate() model.ImageCandidate {
	c := model.ImageCandidate{
		ID:           r.ID,
		ThumbnailURL: r.Thumb,
		CompassAngle: r.CompassAngle,
		IsPano:       r.IsPano,
	}
	c.Coord, c.HasCoord = geo.PointFromGeometry(r.Geometry)
	if r.CapturedAt > 0 {
		c.CapturedAt = time.UnixMilli(r.CapturedAt).UTC()
	}
	return c
}
