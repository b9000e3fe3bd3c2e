package handler

import (
	"net/http"

	"podium/internal/util"
	"podium/internal/voice"

	"github.com/gin-gonic/gin"
)

// VoiceHandler turns persona text into speech via the configured TTS
// provider.
type VoiceHandler struct {
	Client *voice.Client
}

func NewVoiceHandler(client *voice.Client) *VoiceHandler {
	return &VoiceHandler{Client: client}
}

type speakReq struct {
	Text    string `json:"text" binding:"required,max=2000"`
	VoiceID string `json:"voice_id"`
}

func (h *VoiceHandler) Speak(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	var req speakReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request body")
		return
	}

	audio, err := h.Client.Speak(c.Request.Context(), req.Text, req.VoiceID)
	if err != nil {
		if err == voice.ErrDisabled {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "voice synthesis is not configured")
			return
		}
		util.Error(c, http.StatusBadGateway, util.CodeServerErr, "voice synthesis failed")
		return
	}

	c.Data(http.StatusOK, "audio/mpeg", audio)
}
