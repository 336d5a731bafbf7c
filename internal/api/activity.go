package api

import (
	"context"

	"github.com/google/uuid"
	"ripley/internal/event"
	"ripley/internal/http/websocket"
	"ripley/internal/pipeline"
)

const (
	TitleTaskUpdate       = "TASK_UPDATE"
	TitleTaskComplete     = "TASK_COMPLETE"
	TitleTaskFailed       = "TASK_FAILED"
	TitleArtifactConsumed = "ARTIFACT_CONSUMED"
)

type (
	TaskUpdate struct {
		TaskId uuid.UUID      `json:"task_id"`
		Task   *pipeline.Task `json:"task"`
	}

	ArtifactUpdate struct {
		ArtifactId string `json:"artifact_id"`
	}

	// broadcaster forwards event bus activity to all connected websocket
	// clients so they can track pipeline tasks without polling.
	broadcaster struct {
		socketHub       *websocket.SocketHub
		pipelineService PipelineService
		eventCh         event.HandlerChannel
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, pipelineService PipelineService, eventBus event.EventHandler) *broadcaster {
	eventCh := make(event.HandlerChannel, 16)
	eventBus.RegisterHandlerChannel(eventCh,
		event.PIPELINE_UPDATE, event.PIPELINE_COMPLETE, event.PIPELINE_FAILED, event.ARTIFACT_CONSUMED)

	return &broadcaster{socketHub: socketHub, pipelineService: pipelineService, eventCh: eventCh}
}

// listen drains the event channel until the context is cancelled, translating
// each bus event into a broadcast socket message.
func (hub *broadcaster) listen(ctx context.Context) {
	for {
		select {
		case message := <-hub.eventCh:
			switch message.Event {
			case event.PIPELINE_UPDATE:
				hub.broadcastTaskUpdate(TitleTaskUpdate, message.Payload.(uuid.UUID))
			case event.PIPELINE_COMPLETE:
				hub.broadcastTaskUpdate(TitleTaskComplete, message.Payload.(uuid.UUID))
			case event.PIPELINE_FAILED:
				hub.broadcastTaskUpdate(TitleTaskFailed, message.Payload.(uuid.UUID))
			case event.ARTIFACT_CONSUMED:
				hub.broadcast(TitleArtifactConsumed, ArtifactUpdate{ArtifactId: message.Payload.(string)})
			}
		case <-ctx.Done():
			return
		}
	}
}

// broadcastTaskUpdate sends the current view of the identified task to all
// clients. A terminal task may already have left the queue, in which case
// only the ID is sent.
func (hub *broadcaster) broadcastTaskUpdate(title string, id uuid.UUID) {
	hub.broadcast(title, TaskUpdate{TaskId: id, Task: hub.pipelineService.Task(id)})
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
}
