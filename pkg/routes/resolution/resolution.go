// Package resolution exposes suggestion sessions over HTTP
package resolution

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/routes/utils"
	"github.com/Ramsey-B/clover/pkg/session"
)

// Register registers resolution routes
func Register(g *echo.Group) {
	g.POST("", Resolve)
	g.GET("/:id", Get)
	g.POST("/:id/search", Search)
	g.POST("/:id/link", Link)
	g.POST("/:id/create", Create)
}

type SearchRequest struct {
	Query string `json:"query" validate:"required"`
}

type SearchResponse struct {
	Results   []models.MatchCandidate `json:"results"`
	Displayed []models.MatchCandidate `json:"displayed"`
	Failed    bool                    `json:"failed,omitempty"`
}

type LinkRequest struct {
	EntityID string                `json:"entity_id" validate:"required"`
	Type     models.IdentifierType `json:"type" validate:"omitempty,oneof=email phone domain linkedin_url"`
	Value    string                `json:"value" validate:"required_with=Type"`
}

type CreateRequest struct {
	Kind        models.EntityKind `json:"kind" validate:"omitempty,oneof=contact company"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	DisplayName string            `json:"display_name"`
	Category    string            `json:"category"`
	Facts       []models.Fact     `json:"facts" validate:"omitempty,dive"`
}

type CreateResponse struct {
	EntityID string `json:"entity_id"`
}

// Resolve opens a session for a raw fact and returns its loaded snapshot
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	fact, err := utils.BindRequest[models.RawFact](c)
	if err != nil {
		return err
	}

	ctx, resolver, err := ectoinject.GetContext[*session.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	s, err := resolver.Resolve(ctx, fact)
	if err != nil {
		return sessionError(err)
	}

	return c.JSON(http.StatusCreated, s.Snapshot())
}

// Get returns a saved session
func Get(c echo.Context) error {
	_, _, s, err := load(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, s.Snapshot())
}

// Search runs a manual search inside a session. A failed search answers with the
// current candidates and the failed flag set.
func Search(c echo.Context) error {
	req, err := utils.BindRequest[SearchRequest](c)
	if err != nil {
		return err
	}

	ctx, resolver, s, err := load(c)
	if err != nil {
		return err
	}

	results, searchErr := s.Search(ctx, req.Query)
	var transition *session.TransitionError
	if errors.As(searchErr, &transition) {
		return sessionError(searchErr)
	}
	if searchErr != nil {
		var logger ectologger.Logger
		ctx, logger, _ = ectoinject.GetContext[ectologger.Logger](ctx)
		if logger != nil {
			logger.WithContext(ctx).WithError(searchErr).WithField("session_id", s.ID()).Warn("Manual search failed")
		}
	}

	if err := resolver.Save(ctx, s); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Results:   results,
		Displayed: s.Displayed(),
		Failed:    searchErr != nil,
	})
}

// Link attaches a fact of the session to one of its displayed candidates
func Link(c echo.Context) error {
	req, err := utils.BindRequest[LinkRequest](c)
	if err != nil {
		return err
	}

	ctx, _, s, err := load(c)
	if err != nil {
		return err
	}

	result, err := s.LinkEntity(ctx, req.EntityID, models.Fact{Type: req.Type, Value: req.Value})
	if err != nil {
		return sessionError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// Create makes a new entity from the session's facts
func Create(c echo.Context) error {
	req, err := utils.BindRequest[CreateRequest](c)
	if err != nil {
		return err
	}

	ctx, _, s, err := load(c)
	if err != nil {
		return err
	}

	id, err := s.CreateNew(ctx, req.Kind, models.EntitySeed{
		DisplayName: req.DisplayName,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Category:    req.Category,
		Facts:       req.Facts,
	})
	if err != nil {
		return sessionError(err)
	}

	return c.JSON(http.StatusCreated, CreateResponse{EntityID: id})
}

func sessionError(err error) error {
	var transition *session.TransitionError
	switch {
	case errors.As(err, &transition):
		return httperror.NewHTTPError(http.StatusConflict, transition.Error())
	case errors.Is(err, session.ErrUnknownCandidate):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

// load resolves the resolver and the session named by the path
func load(c echo.Context) (context.Context, *session.Resolver, *session.Session, error) {
	ctx, resolver, err := ectoinject.GetContext[*session.Resolver](c.Request().Context())
	if err != nil {
		return ctx, nil, nil, httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	s, err := resolver.Get(ctx, c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		return ctx, nil, nil, httperror.NewHTTPError(http.StatusNotFound, "resolution session not found").
			AddMetaValue("session_id", c.Param("id"))
	}
	return ctx, resolver, s, err
}
