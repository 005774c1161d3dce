package issue

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Register registers issue routes
func Register(g *echo.Group) {
	g.GET("", ListOpen)
	g.POST("/:id/resolve", Resolve)
}

// ListOpen lists open data-integrity issues, newest first
func ListOpen(c echo.Context) error {
	limit := defaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid limit %q", raw)
		}
		limit = min(parsed, maxLimit)
	}

	ctx, repo, err := ectoinject.GetContext[store.IssueStore](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	issues, err := repo.ListOpenIssues(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, issues)
}

// Resolve closes an issue without linking anything
func Resolve(c echo.Context) error {
	ctx, repo, err := ectoinject.GetContext[store.IssueStore](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.MarkIssueResolved(ctx, c.Param("id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
