package domain

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/domainmatch"
)

// Register registers domain routes
func Register(g *echo.Group) {
	g.GET("/:domain/matches", Matches)
}

// Matches returns the companies that might own a domain, grouped by evidence
func Matches(c echo.Context) error {
	domain := strings.TrimSpace(c.Param("domain"))
	if domain == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "domain is required")
	}

	ctx, matcher, err := ectoinject.GetContext[*domainmatch.Matcher](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	matches, err := matcher.FindAllMatches(ctx, domain, c.QueryParam("sample_email"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, matches)
}
