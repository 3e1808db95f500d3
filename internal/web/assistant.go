package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"promptcal/internal/ai"
	"promptcal/internal/assistant"
	appLog "promptcal/internal/log"
	"promptcal/internal/model"
)

const maxImageBytes = 10 << 20

type imageInfo struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
}

type sessionResponse struct {
	ID       string          `json:"id"`
	Messages []model.Message `json:"messages"`
	Busy     bool            `json:"busy"`
	Image    *imageInfo      `json:"image"`
}

func sessionView(c *assistant.Conversation) sessionResponse {
	resp := sessionResponse{ID: c.ID, Messages: c.Transcript(), Busy: c.Busy()}
	if resp.Messages == nil {
		resp.Messages = []model.Message{}
	}
	if img := c.PendingImage(); img != nil {
		resp.Image = &imageInfo{Name: img.Name, MIMEType: img.MIMEType, Size: len(img.Data)}
	}
	return resp
}

func (s *Server) registerAssistantRoutes(api *mux.Router) {
	api.HandleFunc("/assistant/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/assistant/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/assistant/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/assistant/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/assistant/sessions/{id}/image", s.handleAttachImage).Methods(http.MethodPost)
	api.HandleFunc("/assistant/sessions/{id}/image", s.handleClearImage).Methods(http.MethodDelete)
	api.HandleFunc("/assistant/sessions/{id}/messages", s.handleSubmit).Methods(http.MethodPost)
}

// session resolves {id} or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*assistant.Conversation, bool) {
	c, ok := s.deps.Sessions.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
	}
	return c, ok
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.deps.Sessions.IDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	c := s.deps.Sessions.Create()
	writeJSON(w, http.StatusCreated, sessionView(c))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.session(w, r); ok {
		writeJSON(w, http.StatusOK, sessionView(c))
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Sessions.Delete(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAttachImage stores the multipart "image" field as the session's
// pending image.
func (s *Server) handleAttachImage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, `missing "image" field`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(data) > maxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	mimeType := imageMIMEType(header.Header.Get("Content-Type"), data)
	if !strings.HasPrefix(mimeType, "image/") {
		writeError(w, http.StatusUnsupportedMediaType, "file is not an image")
		return
	}

	c.AttachImage(&ai.Image{Data: data, MIMEType: mimeType, Name: header.Filename})
	appLog.Debug("image attached", "session", c.ID, "mime", mimeType, "bytes", len(data))
	writeJSON(w, http.StatusOK, sessionView(c))
}

// imageMIMEType trusts the declared part type unless it is missing or
// generic, in which case the content is sniffed.
func imageMIMEType(declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func (s *Server) handleClearImage(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.session(w, r); ok {
		c.ClearImage()
		writeJSON(w, http.StatusOK, sessionView(c))
	}
}

type submitRequest struct {
	Prompt string `json:"prompt"`
}

// handleSubmit runs one assistant turn and returns the bot replies and the
// events it created.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := c.Submit(r.Context(), req.Prompt)
	switch {
	case errors.Is(err, assistant.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, assistant.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		appLog.Error("assistant turn failed", err, "session", c.ID)
		writeError(w, http.StatusInternalServerError, "assistant turn failed")
		return
	}
	if res.Created == nil {
		res.Created = []model.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, res)
}
