package echoapi

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindListArgs reads page/limit/ordering query params into ListArgs.
func bindListArgs(ctx echo.Context) core.ListArgs {
	var args core.ListArgs
	if page, err := strconv.ParseInt(ctx.QueryParam("page"), 10, 64); err == nil {
		args.Page = page
	}
	if limit, err := strconv.ParseInt(ctx.QueryParam("limit"), 10, 64); err == nil {
		args.Limit = limit
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	args.Orderings = ordering.Orderings
	return args
}

// objectIDParam parses the named path param as an ObjectID. A malformed
// id behaves like a missing resource.
func objectIDParam(ctx echo.Context, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(ctx.Param(name))
	if err != nil {
		return primitive.NilObjectID, errNotFound
	}
	return id, nil
}

// formUpload reads the named multipart file into a pending blob upload.
// A missing file yields nil rather than an error so optional attachments
// bind cleanly.
func formUpload(ctx echo.Context, field string) (*blob.Upload, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return nil, nil
	}
	return readFileHeader(fh)
}

func readFileHeader(fh *multipart.FileHeader) (*blob.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening form file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "reading form file")
	}
	return &blob.Upload{
		Data: data,
		Meta: blob.Meta{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
		},
	}, nil
}

func paginated(ctx echo.Context, data interface{}, total int64, args core.ListArgs) error {
	return ctx.JSON(http.StatusOK, core.PaginatedResponse{
		Data:       data,
		Pagination: core.NewPagination(args, total),
	})
}
