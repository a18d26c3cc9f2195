package web

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed static
var assets embed.FS

// Dashboard serves the browser UI at / with its script under /static. The
// page only talks to the /api routes.
type Dashboard struct {
	files fs.FS
}

func NewDashboard() *Dashboard {
	files, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return &Dashboard{files: files}
}

func (d *Dashboard) RegisterRoutes(e *echo.Echo) {
	e.GET("/", d.Index)
	e.StaticFS("/static", d.files)
}

func (d *Dashboard) Index(c echo.Context) error {
	page, err := fs.ReadFile(d.files, "index.html")
	if err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, page)
}
