package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"webrecorder/backend/internal/event"
	"webrecorder/backend/internal/models"
	"webrecorder/backend/internal/recorder"
	"webrecorder/backend/pkg/database"
	"webrecorder/backend/pkg/response"
	"webrecorder/backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func StartRecording(c *gin.Context) {
	var req struct {
		TargetURL string `json:"target_url" binding:"required,url"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sessionID := uuid.New().String()

	err := recorder.Manager.StartRecording(sessionID, req.TargetURL)
	if err != nil {
		response.InternalServerError(c, "failed to start recording: "+err.Error())
		return
	}

	response.SuccessWithMessage(c, "recording started", gin.H{
		"session_id": sessionID,
	})
}

func StopRecording(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := recorder.Manager.StopRecording(req.SessionID)
	if err != nil {
		response.InternalServerError(c, "failed to stop recording: "+err.Error())
		return
	}

	response.SuccessWithMessage(c, "recording stopped", nil)
}

func PauseRecording(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rec, ok := recorder.Manager.Get(req.SessionID)
	if !ok {
		response.NotFound(c, "recording session not found")
		return
	}

	if err := rec.Pause(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "recording paused", nil)
}

func ResumeRecording(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rec, ok := recorder.Manager.Get(req.SessionID)
	if !ok {
		response.NotFound(c, "recording session not found")
		return
	}

	if err := rec.Resume(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "recording resumed", nil)
}

func GetRecordingStatus(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}

	rec, ok := recorder.Manager.Get(sessionID)
	if !ok {
		response.NotFound(c, "recording session not found")
		return
	}

	recording, paused, count := rec.Status()
	response.Success(c, gin.H{
		"is_recording":  recording,
		"is_paused":     paused,
		"event_count":   count,
		"frame_context": rec.FrameContext(),
	})
}

func GetRecordingEvents(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}

	rec, ok := recorder.Manager.Get(sessionID)
	if !ok {
		response.NotFound(c, "recording session not found")
		return
	}

	events := rec.Events()
	if events == nil {
		events = make([]event.Record, 0)
	}
	response.Success(c, gin.H{"events": events})
}

// ExportRecording streams the rendered test-case document as a file
// download.
func ExportRecording(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}

	rec, ok := recorder.Manager.Get(sessionID)
	if !ok {
		response.NotFound(c, "recording session not found")
		return
	}

	xml := rec.ExportXML()
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	filename := fmt.Sprintf("steepgraph_recording_%s.xml", stamp)

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/xml", []byte(xml))
}

func SaveRecording(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "not logged in")
		return
	}

	var req struct {
		SessionID   string `json:"session_id" binding:"required"`
		Name        string `json:"name" binding:"required,min=1,max=200"`
		Description string `json:"description" binding:"max=1000"`
		TargetURL   string `json:"target_url" binding:"max=500"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rec, ok := recorder.Manager.Get(req.SessionID)
	if !ok {
		response.NotFound(c, "recording session not found")
		return
	}

	recording, _, _ := rec.Status()
	if recording {
		response.BadRequest(c, "stop the recording before saving")
		return
	}

	events := rec.Events()
	if len(events) == 0 {
		response.BadRequest(c, "no events were recorded")
		return
	}

	saved := models.Recording{
		Name:        req.Name,
		Description: req.Description,
		SessionID:   req.SessionID,
		TargetURL:   req.TargetURL,
		XML:         rec.ExportXML(),
		Status:      1,
		UserID:      userID.(uint),
	}
	if err := saved.SetEvents(events); err != nil {
		response.InternalServerError(c, "failed to encode events")
		return
	}

	if err := database.DB.Create(&saved).Error; err != nil {
		response.InternalServerError(c, "failed to save recording")
		return
	}

	database.DB.Preload("User").First(&saved, saved.ID)
	saved.User.Password = ""

	recorder.Manager.CleanupRecording(req.SessionID)

	response.SuccessWithMessage(c, "recording saved", saved)
}

func GetRecordings(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "not logged in")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	query := database.DB.Model(&models.Recording{}).Where("status = ?", 1)
	if !utils.IsAdmin(userID.(uint)) {
		query = query.Where("user_id = ?", userID)
	}
	if name := c.Query("name"); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}

	var total int64
	query.Count(&total)

	var recordings []models.Recording
	err := query.Omit("events", "xml").Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&recordings).Error
	if err != nil {
		response.InternalServerError(c, "failed to list recordings")
		return
	}

	for i := range recordings {
		recordings[i].User.Password = ""
	}

	response.Page(c, recordings, total, page, pageSize)
}

func GetRecording(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "not logged in")
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}

	if !utils.HasPermissionOnRecording(userID.(uint), uint(id)) {
		response.NotFound(c, "recording not found")
		return
	}

	var recording models.Recording
	if err := database.DB.Preload("User").First(&recording, id).Error; err != nil {
		response.NotFound(c, "recording not found")
		return
	}

	recording.User.Password = ""
	response.Success(c, recording)
}

// DownloadRecordingXML serves the stored document of a saved recording.
func DownloadRecordingXML(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "not logged in")
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}

	if !utils.HasPermissionOnRecording(userID.(uint), uint(id)) {
		response.NotFound(c, "recording not found")
		return
	}

	var recording models.Recording
	if err := database.DB.First(&recording, id).Error; err != nil {
		response.NotFound(c, "recording not found")
		return
	}

	filename := fmt.Sprintf("steepgraph_recording_%d.xml", recording.ID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/xml", []byte(recording.XML))
}

func DeleteRecording(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "not logged in")
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}

	if !utils.HasPermissionOnRecording(userID.(uint), uint(id)) {
		response.NotFound(c, "recording not found")
		return
	}

	if err := database.DB.Delete(&models.Recording{}, id).Error; err != nil {
		response.InternalServerError(c, "failed to delete recording")
		return
	}

	response.SuccessWithMessage(c, "recording deleted", nil)
}

// FindElement routes the find-element command to the session's capture
// surface for the given tab.
func FindElement(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		TabID     int    `json:"tab_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rec, ok := recorder.Manager.Get(req.SessionID)
	if !ok {
		response.NotFound(c, "recording session not found")
		return
	}

	if err := rec.FindElement(req.TabID); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "element logged", nil)
}

func RecordingWebSocket(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	rec, ok := recorder.Manager.Get(sessionID)
	if !ok {
		conn.WriteJSON(gin.H{"error": "Recording session not found"})
		return
	}

	rec.SetWebSocketConnection(conn)

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			log.Printf("WebSocket read error: %v", err)
			break
		}
	}
}
