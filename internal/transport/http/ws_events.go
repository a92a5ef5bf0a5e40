package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"lms-quiz-engine/internal/app"
	"lms-quiz-engine/internal/domain"
)

// EventsHandler streams attempt-completion facts over a websocket so that
// progress and gamification consumers can react live. An optional quizId
// query parameter narrows the stream to one quiz.
type EventsHandler struct {
	hub      *app.Hub
	upgrader websocket.Upgrader
}

func NewEventsHandler(hub *app.Hub) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type completionMessage struct {
	Type    string                 `json:"type"`
	Payload domain.CompletionEvent `json:"payload"`
}

func (h *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizFilter := r.URL.Query().Get("quizId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	// Reader loop only detects disconnects; clients send nothing meaningful.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if quizFilter != "" && event.QuizID != quizFilter {
				continue
			}
			if err := conn.WriteJSON(completionMessage{Type: "completion", Payload: event}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
