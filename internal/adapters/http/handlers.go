package http

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/twpayne/go-polyline"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// HeaderUserID carries the ID of the user performing an upload.
const HeaderUserID = "X-User-ID"

// parseTrackID reads the :id route parameter.
func parseTrackID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidTrackID
	}
	return id, nil
}

// UploadTrackHandler stores the GPX file in the request body as the track
// of a post, replacing any previous one.
func UploadTrackHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseTrackID(c)
		if err != nil {
			return trackError(c, err)
		}

		body := c.Body()
		if deps.MaxUploadBytes > 0 && len(body) > deps.MaxUploadBytes {
			return errTooLarge(c, "track file exceeds "+strconv.Itoa(deps.MaxUploadBytes)+" bytes")
		}

		var modifiedBy int64
		if raw := c.Get(HeaderUserID); raw != "" {
			modifiedBy, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return errBadRequest(c, HeaderUserID+" must be numeric")
			}
		}

		res, err := deps.Tracks.Upload(c.UserContext(), id, modifiedBy, bytes.NewReader(body))
		if err != nil {
			return trackError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// trackViewResponse adds a viewer message to a partial track.
type trackViewResponse struct {
	*domain.TrackView
	Message string `json:"message,omitempty"`
}

// polylineViewResponse is the track view with each segment encoded as a
// Google encoded polyline.
type polylineViewResponse struct {
	PostID   int64         `json:"post_id"`
	Route    []string      `json:"route"`
	Bounds   domain.Bounds `json:"bounds"`
	Start    domain.Point  `json:"start"`
	End      domain.Point  `json:"end"`
	MinAlt   *float64      `json:"min_alt,omitempty"`
	MaxAlt   *float64      `json:"max_alt,omitempty"`
	Points   int           `json:"points"`
	Partial  bool          `json:"partial"`
	Message  string        `json:"message,omitempty"`
	Encoding string        `json:"encoding"`
}

// GetTrackHandler returns the simplified route of a post. ?format=polyline
// switches the route to encoded polylines.
func GetTrackHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseTrackID(c)
		if err != nil {
			return trackError(c, err)
		}

		format := strings.ToLower(c.Query("format", "json"))
		if format != "json" && format != "polyline" {
			return errBadRequest(c, "format must be json or polyline")
		}

		view, err := deps.Tracks.View(c.UserContext(), id)
		if err != nil {
			return trackError(c, err)
		}
		setCacheStatus(c, view)

		var msg string
		if view.Partial {
			msg = msgPartial
		}

		if format == "polyline" {
			return c.JSON(polylineViewResponse{
				PostID:   view.PostID,
				Route:    encodeRoute(view.Route),
				Bounds:   view.Bounds,
				Start:    view.Start,
				End:      view.End,
				MinAlt:   view.MinAlt,
				MaxAlt:   view.MaxAlt,
				Points:   view.Points,
				Partial:  view.Partial,
				Message:  msg,
				Encoding: "polyline5",
			})
		}
		return c.JSON(trackViewResponse{TrackView: view, Message: msg})
	}
}

// TrackGeoJSONHandler returns the simplified route as a GeoJSON
// FeatureCollection.
func TrackGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseTrackID(c)
		if err != nil {
			return trackError(c, err)
		}

		view, err := deps.Tracks.View(c.UserContext(), id)
		if err != nil {
			return trackError(c, err)
		}
		setCacheStatus(c, view)

		data, err := trackFeatureCollection(view).MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}

// TrackProfileHandler returns the altitude profile of a post.
// ?units=metric|imperial overrides the configured default.
func TrackProfileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseTrackID(c)
		if err != nil {
			return trackError(c, err)
		}

		units := deps.Units
		if q := c.Query("units"); q != "" {
			units = domain.UnitSystem(strings.ToLower(q))
		}
		if units == "" {
			units = domain.UnitSystemMetric
		}
		if !units.Valid() {
			return errBadRequest(c, "units must be metric or imperial")
		}

		profile, err := deps.Tracks.Profile(c.UserContext(), id, units)
		if err != nil {
			return trackError(c, err)
		}
		return c.JSON(profile)
	}
}

// DeleteTrackHandler removes the track of a post.
func DeleteTrackHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseTrackID(c)
		if err != nil {
			return trackError(c, err)
		}
		if err := deps.Tracks.Delete(c.UserContext(), id); err != nil {
			return trackError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ListTracksHandler returns stored track records, newest first.
func ListTracksHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pg := pageFromQuery(c)

		tracks, total, err := deps.Tracks.List(c.UserContext(), pg.Offset, pg.Limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg.Total = total
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: tracks, Pagination: pg})
	}
}

// TrackStatusHandler tells for each post in ?ids= whether it has a track.
func TrackStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ids, err := parseIDList(c.Query("ids"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if len(ids) > 100 {
			return errBadRequest(c, "maximum 100 ids allowed")
		}

		statuses, err := deps.Tracks.Status(c.UserContext(), ids)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(statuses)
	}
}

// parseIDList parses a comma-separated list of post IDs.
func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid id "+strconv.Quote(part))
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "ids query parameter is required (comma-separated)")
	}
	return ids, nil
}

func encodeRoute(route []domain.Segment) []string {
	out := make([]string, 0, len(route))
	for _, seg := range route {
		coords := make([][]float64, len(seg))
		for i, p := range seg {
			coords[i] = []float64{p.Lat, p.Lng}
		}
		out = append(out, string(polyline.EncodeCoords(coords)))
	}
	return out
}

func setCacheStatus(c *fiber.Ctx, view *domain.TrackView) {
	if view.FromCache {
		c.Set("X-Track-Cache", "hit")
	} else {
		c.Set("X-Track-Cache", "miss")
	}
}
