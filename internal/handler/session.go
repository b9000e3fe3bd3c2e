package handler

import (
	"net/http"

	"podium/internal/models"
	"podium/internal/persona"
	"podium/internal/session"
	"podium/internal/util"

	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the practice-session lifecycle over HTTP.
type SessionHandler struct {
	Engine   *session.Engine
	PageSize int
}

func NewSessionHandler(engine *session.Engine, pageSize int) *SessionHandler {
	return &SessionHandler{Engine: engine, PageSize: pageSize}
}

type startSessionReq struct {
	Kind  string `json:"kind" binding:"required"`
	Topic string `json:"topic" binding:"required"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req startSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request body")
		return
	}

	res, err := h.Engine.Start(c.Request.Context(), user.ID, req.Kind, req.Topic)
	if err != nil {
		fail(c, err)
		return
	}

	util.Success(c, util.Response{
		"session": sessionView(res.Session),
		"turn":    turnView(res.Turn),
		"persona": personaView(res.Persona),
	})
}

func (h *SessionHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page, size := pageParams(c, h.PageSize)
	sessions, total, err := h.Engine.List(user.ID, page, size)
	if err != nil {
		fail(c, err)
		return
	}

	items := make([]util.Response, 0, len(sessions))
	for i := range sessions {
		items = append(items, sessionView(&sessions[i]))
	}
	util.Success(c, util.Response{
		"sessions":  items,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}

func (h *SessionHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sess, turns, err := h.Engine.Get(user.ID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	items := make([]util.Response, 0, len(turns))
	for i := range turns {
		items = append(items, turnView(&turns[i]))
	}
	util.Success(c, util.Response{
		"session": sessionView(sess),
		"turns":   items,
	})
}

type submitAnswerReq struct {
	Answer string `json:"answer" binding:"required"`
}

func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req submitAnswerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request body")
		return
	}

	res, err := h.Engine.SubmitAnswer(c.Request.Context(), user.ID, c.Param("id"), c.Param("turnId"), req.Answer)
	if err != nil {
		fail(c, err)
		return
	}
	answerResponse(c, res)
}

// RetryFeedback re-runs scoring for a turn whose answer was recorded but
// whose feedback generation failed.
func (h *SessionHandler) RetryFeedback(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	res, err := h.Engine.RetryFeedback(c.Request.Context(), user.ID, c.Param("id"), c.Param("turnId"))
	if err != nil {
		fail(c, err)
		return
	}
	answerResponse(c, res)
}

func (h *SessionHandler) CurrentTurn(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	turn, err := h.Engine.CurrentTurn(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	resp := util.Response{"turn": turnView(turn)}
	if p, ok := personaForTurn(turn); ok {
		resp["persona"] = personaView(p)
	}
	util.Success(c, resp)
}

func (h *SessionHandler) Finish(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sess, err := h.Engine.Finish(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	util.Success(c, util.Response{"session": sessionView(sess)})
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	sess, err := h.Engine.Cancel(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	util.Success(c, util.Response{"session": sessionView(sess)})
}

func answerResponse(c *gin.Context, res *session.AnswerResult) {
	resp := util.Response{
		"turn":      turnView(res.Turn),
		"completed": res.Completed,
	}
	if res.Completed {
		resp["overall_score"] = res.OverallScore
	} else if res.NextTurn != nil {
		resp["next_turn"] = turnView(res.NextTurn)
		resp["next_persona"] = personaView(res.NextPersona)
	}
	util.Success(c, resp)
}

func sessionView(s *models.Session) util.Response {
	return util.Response{
		"id":              s.ID,
		"kind":            s.Kind,
		"topic":           s.Topic,
		"status":          s.Status,
		"overall_score":   s.OverallScore,
		"credits_charged": s.CreditsCharged,
		"created_at":      s.CreatedAt,
		"completed_at":    s.CompletedAt,
	}
}

func turnView(t *models.Turn) util.Response {
	return util.Response{
		"id":              t.ID,
		"seq":             t.Seq,
		"persona_id":      t.PersonaID,
		"persona_role":    t.PersonaRole,
		"question":        t.Question,
		"answer":          t.Answer,
		"feedback":        t.Feedback,
		"improved_answer": t.Improved,
		"satisfied":       t.Satisfied,
		"score":           t.Score,
	}
}

func personaView(p persona.Persona) util.Response {
	return util.Response{
		"id":   p.ID,
		"name": p.Name,
		"role": p.Role,
	}
}

func personaForTurn(t *models.Turn) (persona.Persona, bool) {
	for _, kind := range []string{models.KindInterview, models.KindPresentation} {
		if p, ok := persona.ForKind(kind).ByID(t.PersonaID); ok {
			return p, true
		}
	}
	return persona.Persona{}, false
}
