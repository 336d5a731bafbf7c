package artifacts

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"ripley/internal/artifact"
)

type (
	Store interface {
		ServeOnce(kind artifact.Kind, id string) (*artifact.Handle, error)
	}

	// Controller exposes the one-shot artifact retrieval endpoints. Each
	// artifact is streamed to the first caller and deleted as soon as the
	// transfer finishes; every subsequent (or malformed) request is a 404.
	Controller struct {
		store Store
	}
)

func New(store Store) *Controller {
	return &Controller{store: store}
}

func (controller *Controller) SetVideoRoutes(eg *echo.Group) {
	eg.GET("/:filename/", controller.getVideo)
}

func (controller *Controller) SetAudioRoutes(eg *echo.Group) {
	eg.GET("/:filename/", controller.getAudio)
}

func (controller *Controller) getVideo(ec echo.Context) error {
	return controller.serve(ec, artifact.Video, "video/mp4")
}

func (controller *Controller) getAudio(ec echo.Context) error {
	return controller.serve(ec, artifact.Audio, "audio/mpeg")
}

func (controller *Controller) serve(ec echo.Context, kind artifact.Kind, contentType string) error {
	handle, err := controller.store.ServeOnce(kind, ec.Param("filename"))
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return echo.ErrNotFound
		}

		return err
	}

	// Closing the handle consumes the artifact, whether the transfer
	// completed or the client bailed mid-stream.
	defer handle.Close()

	ec.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", handle.ID()))
	ec.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(handle.Size(), 10))
	return ec.Stream(http.StatusOK, contentType, handle)
}
