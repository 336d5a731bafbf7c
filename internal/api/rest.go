package api

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"ripley/internal/api/artifacts"
	"ripley/internal/api/downloads"
	"ripley/internal/event"
	"ripley/internal/http/websocket"
	"ripley/internal/pipeline"
	"ripley/pkg/logger"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	// PipelineService is a union of the requirements the download controller
	// and the activity socket place on the pipeline service.
	PipelineService interface {
		Process(ctx context.Context, sourceURL string) (*pipeline.Result, error)
		Task(id uuid.UUID) *pipeline.Task
		AllTasks() []*pipeline.Task
	}

	requestValidator struct {
		validate *validator.Validate
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. Its sole
	// responsibility is to create the routes Ripley exposes and to manage the
	// ongoing activity web socket connections and events.
	RestGateway struct {
		*broadcaster
		config             *RestConfig
		ec                 *echo.Echo
		socket             *websocket.SocketHub
		downloadController *downloads.Controller
		artifactController *artifacts.Controller
	}
)

func (validator *requestValidator) Validate(i interface{}) error {
	return validator.validate.Struct(i)
}

// NewRestGateway constructs the Echo router and populates it with the routes
// defined by the download and artifact controllers, as well as the activity
// websocket endpoint.
func NewRestGateway(
	config *RestConfig,
	pipelineService PipelineService,
	artifactStore artifacts.Store,
	eventBus event.EventHandler,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.Validator = &requestValidator{validate: validator.New()}

	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:        newBroadcaster(socket, pipelineService, eventBus),
		config:             config,
		ec:                 ec,
		socket:             socket,
		downloadController: downloads.New(pipelineService),
		artifactController: artifacts.New(artifactStore),
	}

	socket.WithConnectionCallback(func() map[string]interface{} {
		return map[string]interface{}{"tasks": pipelineService.AllTasks()}
	})
	socket.BindCommand("TASK_INDEX", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		hub.Send(message.FormReply(
			"COMMAND_SUCCESS",
			map[string]interface{}{"tasks": pipelineService.AllTasks()},
			websocket.Response,
		))
		return nil
	})

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Use(middleware.CORS())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	download := ec.Group("/download")
	gateway.downloadController.SetRoutes(download)

	video := ec.Group("/video")
	gateway.artifactController.SetVideoRoutes(video)

	audio := ec.Group("/audio")
	gateway.artifactController.SetAudioRoutes(audio)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	// Start the activity broadcaster, which forwards event bus messages
	// to connected websocket clients.
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.broadcaster.listen(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
