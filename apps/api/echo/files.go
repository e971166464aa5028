package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dienlabs/eduportal/core/blob"
)

// filesBaseURL is where id-mode blob references resolve.
const filesBaseURL = "/api/files"

type filesApi struct {
	store blob.Store
}

func registerFilesAPI(g *echo.Group, store blob.Store) {
	api := filesApi{store: store}
	g.GET("/files/:id", api.download)
}

// download streams a stored blob with its original content type and
// filename. Malformed ids and missing blobs both read as not found.
func (api *filesApi) download(ctx echo.Context) error {
	rc, info, err := api.store.Open(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		switch errors.Cause(err) {
		case blob.ErrNotFound:
			return errNotFound
		case blob.ErrUnavailable:
			return newAPIError(http.StatusServiceUnavailable, CodeServerError, "file storage unavailable")
		}
		return errors.Wrap(err, "opening blob")
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", info.Filename))
	return ctx.Stream(http.StatusOK, contentType, rc)
}
