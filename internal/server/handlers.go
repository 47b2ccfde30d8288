package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/smartdevs17/notification-engine/internal/gateway"
	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// errorStatus maps application error codes to HTTP status codes
func errorStatus(err error) int {
	if utils.IsNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// Event handlers

func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	events, err := s.storage.GetEvents(r.Context(), scope)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve events", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}

func (s *HTTPServer) createEventHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	var event models.NotificationEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if event.EventKey == "" || event.Name == "" {
		s.writeError(w, http.StatusBadRequest, "event_key and name are required", nil)
		return
	}

	event.TenantID = scope.TenantID
	if err := s.storage.SaveEvent(r.Context(), &event); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save event", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, event)
}

func (s *HTTPServer) triggerEventHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	var request struct {
		EventKey string                 `json:"event_key"`
		Payload  map[string]interface{} `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if request.EventKey == "" {
		s.writeError(w, http.StatusBadRequest, "event_key is required", nil)
		return
	}
	if request.Payload == nil {
		request.Payload = map[string]interface{}{}
	}

	result := s.dispatcher.TriggerEvent(r.Context(), scope, request.EventKey, request.Payload)
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordTrigger(request.EventKey, result.Matched, result.Queued)
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) dispatchHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	var request struct {
		EventKey string                 `json:"event_key"`
		UserID   int64                  `json:"user_id"`
		Payload  map[string]interface{} `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if request.EventKey == "" || request.UserID <= 0 {
		s.writeError(w, http.StatusBadRequest, "event_key and user_id are required", nil)
		return
	}
	if request.Payload == nil {
		request.Payload = map[string]interface{}{}
	}

	outcome := s.dispatcher.Dispatch(r.Context(), scope, request.EventKey, request.UserID, request.Payload)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"channels": outcome})
}

// Template handlers

func (s *HTTPServer) listTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	templates, err := s.storage.GetTemplates(r.Context(), scope)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve templates", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"total":     len(templates),
	})
}

func (s *HTTPServer) createTemplateHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	var tmpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if tmpl.EventKey == "" || tmpl.Name == "" {
		s.writeError(w, http.StatusBadRequest, "event_key and name are required", nil)
		return
	}

	tmpl.TenantID = scope.TenantID
	tmpl.IsSystem = false
	if err := s.storage.SaveTemplate(r.Context(), &tmpl); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save template", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, tmpl)
}

func (s *HTTPServer) getTemplateHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	tmpl, err := s.storage.GetTemplate(r.Context(), scope, id)
	if err != nil {
		s.writeError(w, errorStatus(err), "Template not found", err)
		return
	}

	s.writeJSON(w, http.StatusOK, tmpl)
}

func (s *HTTPServer) updateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	var tmpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tmpl.ID = id
	tmpl.TenantID = scope.TenantID
	if err := s.storage.UpdateTemplate(r.Context(), &tmpl); err != nil {
		s.writeError(w, errorStatus(err), "Failed to update template", err)
		return
	}

	s.writeJSON(w, http.StatusOK, tmpl)
}

func (s *HTTPServer) deleteTemplateHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	// System templates are the fallback content and stay
	tmpl, err := s.storage.GetTemplate(r.Context(), scope, id)
	if err != nil {
		s.writeError(w, errorStatus(err), "Template not found", err)
		return
	}
	if tmpl.IsSystem {
		s.writeError(w, http.StatusConflict, "System templates cannot be deleted", nil)
		return
	}

	if err := s.storage.DeleteTemplate(r.Context(), scope, id); err != nil {
		s.writeError(w, errorStatus(err), "Failed to delete template", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Template deleted", "id": id})
}

// Workflow handlers

func (s *HTTPServer) listWorkflowsHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	workflows, err := s.storage.GetWorkflows(r.Context(), scope)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve workflows", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": workflows,
		"total":     len(workflows),
	})
}

func (s *HTTPServer) createWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	var wf models.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if wf.TriggerEvent == "" || wf.TemplateID == 0 || wf.Channel == "" {
		s.writeError(w, http.StatusBadRequest, "trigger_event, template_id and channel are required", nil)
		return
	}

	// Workflows may only target registered events
	if _, err := s.storage.GetEventByKey(r.Context(), scope, wf.TriggerEvent); err != nil {
		s.writeError(w, http.StatusBadRequest, "trigger_event is not a registered event", err)
		return
	}
	if wf.ScheduleType == "" {
		wf.ScheduleType = models.ScheduleImmediate
	}

	wf.TenantID = scope.TenantID
	if err := s.storage.SaveWorkflow(r.Context(), &wf); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save workflow", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, wf)
}

func (s *HTTPServer) getWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	wf, err := s.storage.GetWorkflow(r.Context(), scope, id)
	if err != nil {
		s.writeError(w, errorStatus(err), "Workflow not found", err)
		return
	}

	s.writeJSON(w, http.StatusOK, wf)
}

func (s *HTTPServer) updateWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	var wf models.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	wf.ID = id
	wf.TenantID = scope.TenantID
	if err := s.storage.UpdateWorkflow(r.Context(), &wf); err != nil {
		s.writeError(w, errorStatus(err), "Failed to update workflow", err)
		return
	}

	s.writeJSON(w, http.StatusOK, wf)
}

func (s *HTTPServer) deleteWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	if err := s.storage.DeleteWorkflow(r.Context(), scope, id); err != nil {
		s.writeError(w, errorStatus(err), "Failed to delete workflow", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Workflow deleted", "id": id})
}

// Gateway handlers

func (s *HTTPServer) listGatewaysHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	var active *bool
	if raw := r.URL.Query().Get("active"); raw != "" {
		v := raw == "true"
		active = &v
	}

	gateways, err := s.storage.GetGateways(r.Context(), scope, active)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve gateways", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"gateways": gateways,
		"total":    len(gateways),
	})
}

func (s *HTTPServer) createGatewayHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	var gw models.Gateway
	if err := json.NewDecoder(r.Body).Decode(&gw); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if gw.Name == "" || gw.Type == "" {
		s.writeError(w, http.StatusBadRequest, "name and type are required", nil)
		return
	}
	if gw.Config == nil {
		gw.Config = map[string]interface{}{}
	}

	gw.TenantID = scope.TenantID
	if err := s.storage.SaveGateway(r.Context(), &gw); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save gateway", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, gw)
}

func (s *HTTPServer) getGatewayHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	gw, err := s.storage.GetGateway(r.Context(), scope, id)
	if err != nil {
		s.writeError(w, errorStatus(err), "Gateway not found", err)
		return
	}

	s.writeJSON(w, http.StatusOK, gw)
}

func (s *HTTPServer) updateGatewayHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	var gw models.Gateway
	if err := json.NewDecoder(r.Body).Decode(&gw); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	gw.ID = id
	gw.TenantID = scope.TenantID
	if err := s.storage.UpdateGateway(r.Context(), &gw); err != nil {
		s.writeError(w, errorStatus(err), "Failed to update gateway", err)
		return
	}

	s.writeJSON(w, http.StatusOK, gw)
}

func (s *HTTPServer) deleteGatewayHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	if err := s.storage.DeleteGateway(r.Context(), scope, id); err != nil {
		s.writeError(w, errorStatus(err), "Failed to delete gateway", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Gateway deleted", "id": id})
}

// testGatewayHandler sends one synchronous test message, bypassing the queue
func (s *HTTPServer) testGatewayHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id, _ := pathID(r, "id")

	gw, err := s.storage.GetGateway(r.Context(), scope, id)
	if err != nil {
		s.writeError(w, errorStatus(err), "Gateway not found", err)
		return
	}

	sender, err := s.gateways.SenderFor(gw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Gateway is not usable", err)
		return
	}

	var request struct {
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && err.Error() != "EOF" {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if request.Recipient == "" {
		if err := sender.Test(r.Context()); err != nil {
			s.writeError(w, http.StatusBadGateway, "Gateway test failed", err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Gateway test succeeded"})
		return
	}

	if request.Message == "" {
		request.Message = "Test message from the notification engine."
	}

	result, err := sender.Send(r.Context(), &gateway.SendRequest{
		Recipient: request.Recipient,
		Subject:   "Gateway test",
		Body:      request.Message,
	})
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Test send failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Test message sent",
		"message_id": result.MessageID,
	})
}

// Queue handlers

func (s *HTTPServer) listQueueHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	filter := models.QueueFilter{Limit: 50}
	query := r.URL.Query()
	if status := query.Get("status"); status != "" {
		filter.Status = &status
	}
	if channel := query.Get("channel"); channel != "" {
		filter.Channel = &channel
	}
	if eventKey := query.Get("event_key"); eventKey != "" {
		filter.EventKey = &eventKey
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	items, err := s.storage.ListQueueItems(r.Context(), scope, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve queue items", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

func (s *HTTPServer) getQueueItemHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id := mux.Vars(r)["id"]

	item, err := s.storage.GetQueueItem(r.Context(), scope, id)
	if err != nil {
		s.writeError(w, errorStatus(err), "Queue item not found", err)
		return
	}

	s.writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) cancelQueueItemHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	id := mux.Vars(r)["id"]

	if err := s.storage.CancelQueueItem(r.Context(), scope, id); err != nil {
		s.writeError(w, errorStatus(err), "Failed to cancel queue item", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Queue item cancelled", "id": id})
}

// processQueueHandler runs one processing pass; the cron entry point
func (s *HTTPServer) processQueueHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.processor.ProcessPass(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Processing pass failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// Preference handlers

func (s *HTTPServer) listPreferencesHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	userID, _ := pathID(r, "userID")

	prefs, err := s.storage.GetPreferences(r.Context(), scope, userID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve preferences", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"preferences": prefs,
		"total":       len(prefs),
	})
}

func (s *HTTPServer) savePreferenceHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	userID, _ := pathID(r, "userID")

	var pref models.UserChannelPreference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if pref.EventKey == "" || pref.Channel == "" {
		s.writeError(w, http.StatusBadRequest, "event_key and channel are required", nil)
		return
	}

	pref.TenantID = scope.TenantID
	pref.UserID = userID
	if err := s.storage.SavePreference(r.Context(), &pref); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to save preference", err)
		return
	}

	s.writeJSON(w, http.StatusOK, pref)
}

// resolvedChannelsHandler shows the authoritative per-channel decision for a
// user and event, after merging preferences with event defaults
func (s *HTTPServer) resolvedChannelsHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}
	userID, _ := pathID(r, "userID")
	eventKey := mux.Vars(r)["eventKey"]

	channels, err := s.dispatcher.ResolveChannels(r.Context(), scope, userID, eventKey)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to resolve channels", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":   userID,
		"event_key": eventKey,
		"channels":  channels,
	})
}

// Audit handlers

func (s *HTTPServer) listAuditHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid tenant", err)
		return
	}

	filter := models.AuditFilter{Limit: 50}
	query := r.URL.Query()
	if eventKey := query.Get("event_key"); eventKey != "" {
		filter.EventKey = &eventKey
	}
	if status := query.Get("status"); status != "" {
		filter.Status = &status
	}
	if channel := query.Get("channel"); channel != "" {
		filter.Channel = &channel
	}
	if rawUserID := query.Get("user_id"); rawUserID != "" {
		if userID, err := strconv.ParseInt(rawUserID, 10, 64); err == nil {
			filter.UserID = &userID
		}
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	entries, err := s.storage.ListAudit(r.Context(), scope, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve audit log", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}
