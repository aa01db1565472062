package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/tripsummary/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the track service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	pointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Point",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
			"ele": &graphql.Field{
				Type: graphql.Float,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt, _ := p.Source.(domain.Point)
					if ele, ok := pt.Elevation(); ok {
						return ele, nil
					}
					return nil, nil
				},
			},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"southWest": &graphql.Field{Type: pointType},
			"northEast": &graphql.Field{Type: pointType},
		},
	})

	trackType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Track",
		Fields: graphql.Fields{
			"post_id": &graphql.Field{Type: graphql.Int},
			"route": &graphql.Field{
				Type: graphql.NewList(graphql.NewList(pointType)),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, _ := p.Source.(*domain.TrackView)
					out := make([][]domain.Point, len(v.Route))
					for i, seg := range v.Route {
						out[i] = seg
					}
					return out, nil
				},
			},
			"polyline": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Route segments as encoded polylines",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, _ := p.Source.(*domain.TrackView)
					return encodeRoute(v.Route), nil
				},
			},
			"bounds":  &graphql.Field{Type: boundsType},
			"start":   &graphql.Field{Type: pointType},
			"end":     &graphql.Field{Type: pointType},
			"min_alt": &graphql.Field{Type: graphql.Float},
			"max_alt": &graphql.Field{Type: graphql.Float},
			"points":  &graphql.Field{Type: graphql.Int},
			"partial": &graphql.Field{Type: graphql.Boolean},
		},
	})

	statusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TrackStatus",
		Fields: graphql.Fields{
			"post_id":   &graphql.Field{Type: graphql.Int},
			"has_track": &graphql.Field{Type: graphql.Boolean},
		},
	})

	profilePointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ProfilePoint",
		Fields: graphql.Fields{
			"distance": &graphql.Field{Type: graphql.Float},
			"altitude": &graphql.Field{Type: graphql.Float},
			"lat":      &graphql.Field{Type: graphql.Float},
			"lng":      &graphql.Field{Type: graphql.Float},
		},
	})

	profileType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AltitudeProfile",
		Fields: graphql.Fields{
			"post_id":       &graphql.Field{Type: graphql.Int},
			"unit_system":   &graphql.Field{Type: graphql.String},
			"distance_unit": &graphql.Field{Type: graphql.String},
			"height_unit":   &graphql.Field{Type: graphql.String},
			"points":        &graphql.Field{Type: graphql.NewList(profilePointType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"track": &graphql.Field{
				Type:        trackType,
				Description: "Simplified route and summary of a post's track",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(int)
					v, err := deps.Tracks.View(p.Context, int64(id))
					if errors.Is(err, domain.ErrTrackNotFound) {
						return nil, nil
					}
					return v, err
				},
			},
			"trackStatus": &graphql.Field{
				Type:        graphql.NewList(statusType),
				Description: "Which of the given posts have a track",
				Args: graphql.FieldConfigArgument{
					"ids": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.Int)))},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					raw, _ := p.Args["ids"].([]interface{})
					ids := make([]int64, 0, len(raw))
					for _, v := range raw {
						ids = append(ids, int64(v.(int)))
					}
					return deps.Tracks.Status(p.Context, ids)
				},
			},
			"altitudeProfile": &graphql.Field{
				Type:        profileType,
				Description: "Distance against elevation along a post's track",
				Args: graphql.FieldConfigArgument{
					"id":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"units": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.UnitSystemMetric)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(int)
					units := domain.UnitSystem(p.Args["units"].(string))
					return deps.Tracks.Profile(p.Context, int64(id), units)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
