package downloads

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"ripley/internal/pipeline"
	"ripley/pkg/logger"
)

var log = logger.Get("DownloadsController")

type (
	PipelineService interface {
		Process(ctx context.Context, sourceURL string) (*pipeline.Result, error)
	}

	downloadRequest struct {
		URL string `json:"url" validate:"required,url"`
	}

	downloadResponse struct {
		VideoDownload string `json:"video_download"`
		AudioDownload string `json:"audio_download"`
	}

	// Controller accepts download requests and runs them through the
	// pipeline service, translating the pipeline's generic stage errors
	// into the appropriate HTTP status.
	Controller struct {
		service PipelineService
	}
)

func New(service PipelineService) *Controller {
	return &Controller{service: service}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
}

// create runs the full pipeline for the URL in the request body, blocking
// until both artifacts are ready. The response carries relative retrieval
// paths, never raw bytes; each path is servable exactly once.
func (controller *Controller) create(ec echo.Context) error {
	var request downloadRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "JSON body missing mandatory 'url' field")
	}

	if err := ec.Validate(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "'url' field must be a valid URL")
	}

	result, err := controller.service.Process(ec.Request().Context(), request.URL)
	if err != nil {
		if errors.Is(err, pipeline.ErrResolutionFailed) {
			return echo.NewHTTPError(http.StatusBadRequest, "could not resolve a downloadable video for the URL provided")
		}

		log.Emit(logger.ERROR, "Pipeline failed for %s: %v\n", request.URL, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal failure while preparing media downloads")
	}

	return ec.JSON(http.StatusOK, downloadResponse{
		VideoDownload: "/video/" + result.VideoArtifact.ID,
		AudioDownload: "/audio/" + result.AudioArtifact.ID,
	})
}
