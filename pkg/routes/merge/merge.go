package merge

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/linking"
	"github.com/Ramsey-B/clover/pkg/routes/utils"
)

// Register registers merge routes
func Register(g *echo.Group) {
	g.POST("", Merge)
}

type Request struct {
	linking.MergeRequest
	TargetEntityID string `json:"target_entity_id" validate:"required"`
}

// Merge folds a duplicate draft contact into an existing one. A partial merge answers 409
// with the linked and failed facts in the error meta.
func Merge(c echo.Context) error {
	req, err := utils.BindRequest[Request](c)
	if err != nil {
		return err
	}

	ctx, executor, err := ectoinject.GetContext[*linking.Executor](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := executor.MergeDuplicateContact(ctx, req.MergeRequest, req.TargetEntityID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
