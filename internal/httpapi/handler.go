package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"net/http"
	"strings"
	"time"

	"flowq/queue-service/internal/analytics"
	"flowq/queue-service/internal/models"
	"flowq/queue-service/internal/queue"
	"flowq/queue-service/internal/store"

	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	store     store.TicketStore
	service   *queue.Service
	analytics *analytics.Aggregator
	scheduler *queue.ResetScheduler
	now       func() time.Time
}

type Options struct {
	Now func() time.Time
}

func NewHandler(st store.TicketStore, svc *queue.Service, agg *analytics.Aggregator, scheduler *queue.ResetScheduler, options Options) *Handler {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{store: st, service: svc, analytics: agg, scheduler: scheduler, now: now}
}

type createTicketRequest struct {
	Category string `json:"category"`
}

type transferRequest struct {
	To int `json:"to"`
}

type settingsRequest struct {
	AutoResetTime string `json:"auto_reset_time"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/counter/next", h.withEmployee(h.handleNext))
	mux.HandleFunc("/api/counter/complete", h.withEmployee(h.handleComplete))
	mux.HandleFunc("/api/counter/recall", h.withEmployee(h.handleRecall))
	mux.HandleFunc("/api/counter/transfer", h.withEmployee(h.handleTransfer))
	mux.HandleFunc("/api/counter/open", h.withEmployee(h.handleCounterOpen))
	mux.HandleFunc("/api/counters", h.handleCounters)
	mux.HandleFunc("/api/reset", h.withAdmin(h.handleReset))
	mux.HandleFunc("/api/cron/reset", h.handleCronReset)
	mux.HandleFunc("/api/analytics", h.withAdmin(h.handleAnalytics))
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.withEmployee(h.handleMe))
	mux.HandleFunc("/api/auth/seed", h.handleSeed)
	mux.HandleFunc("/api/employees", h.withAdmin(h.handleEmployees))
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleTickets serves the public kiosk surface: POST draws a ticket, GET
// returns the day snapshot for displays.
func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createTicketRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		// Kiosks may POST an empty body for the default category.
		if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}

		result, err := h.service.Enqueue(r.Context(), strings.TrimSpace(req.Category))
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	case http.MethodGet:
		snapshot, err := h.service.Snapshot(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request, employee models.Employee) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ticket, err := h.service.DispatchNext(r.Context(), employee.CounterNumber)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if ticket == nil {
		writeError(w, http.StatusConflict, "queue_empty", "no tickets waiting")
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request, employee models.Employee) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ticket, err := h.service.CompleteCurrent(r.Context(), employee.CounterNumber)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if ticket == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleRecall(w http.ResponseWriter, r *http.Request, employee models.Employee) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	result, err := h.service.Recall(r.Context(), employee.CounterNumber)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request, employee models.Employee) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req transferRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.To <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "to must be a positive counter number")
		return
	}

	ticket, err := h.service.Transfer(r.Context(), employee.CounterNumber, req.To)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// handleCounterOpen opens the employee's counter on POST and closes it on
// DELETE.
func (h *Handler) handleCounterOpen(w http.ResponseWriter, r *http.Request, employee models.Employee) {
	switch r.Method {
	case http.MethodPost:
		counter, err := h.service.OpenCounter(r.Context(), employee.CounterNumber, employee.Name)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, counter)
	case http.MethodDelete:
		if err := h.service.CloseCounter(r.Context(), employee.CounterNumber); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	counters, err := h.service.ListCounters(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, counters)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request, _ models.Employee) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	cancelled, err := h.service.ResetQueue(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": cancelled})
}

// handleCronReset is the idempotent endpoint an external scheduler may hit
// on any interval; the reset runs at most once per day.
func (h *Handler) handleCronReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ran, err := h.scheduler.RunIfDue(r.Context(), h.now())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ran": ran})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request, _ models.Employee) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	report, err := h.analytics.Report(r.Context(), h.now())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings := make(map[string]string)
		for _, key := range []string{store.SettingAutoResetTime, store.SettingLastResetDate} {
			value, err := h.store.GetSetting(r.Context(), key)
			if errors.Is(err, store.ErrSettingNotFound) {
				continue
			}
			if err != nil {
				status, code, msg := mapError(err)
				writeError(w, status, code, msg)
				return
			}
			settings[key] = value
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPost:
		h.withAdmin(h.handleUpdateSettings)(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request, _ models.Employee) {
	var req settingsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.AutoResetTime = strings.TrimSpace(req.AutoResetTime)
	if req.AutoResetTime == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "auto_reset_time is required")
		return
	}
	if _, err := time.Parse("15:04", req.AutoResetTime); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "auto_reset_time must be HH:MM")
		return
	}

	if err := h.store.SetSetting(r.Context(), store.SettingAutoResetTime, req.AutoResetTime); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{store.SettingAutoResetTime: req.AutoResetTime})
}

const (
	seedAdminUsername = "admin"
	seedAdminPassword = "admin123"
)

// handleSeed bootstraps the first admin account on a fresh install; without
// it the admin-gated employee endpoints are unreachable. Once the admin
// username exists the endpoint changes nothing.
func (h *Handler) handleSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	_, err := h.store.GetEmployeeByUsername(r.Context(), seedAdminUsername)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": "admin already exists"})
		return
	}
	if !errors.Is(err, store.ErrEmployeeNotFound) {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	employee, err := h.store.CreateEmployee(r.Context(), store.CreateEmployeeInput{
		Username:      seedAdminUsername,
		PasswordHash:  string(hash),
		Name:          "Administrator",
		CounterNumber: 0,
		Role:          models.RoleAdmin,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, employee)
}

type createEmployeeRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	CounterNumber int    `json:"counter_number"`
	Role          string `json:"role"`
}

type updateEmployeeRequest struct {
	ID            string  `json:"id"`
	Username      *string `json:"username"`
	Password      *string `json:"password"`
	Name          *string `json:"name"`
	CounterNumber *int    `json:"counter_number"`
	Role          *string `json:"role"`
	Active        *bool   `json:"active"`
}

func (h *Handler) handleEmployees(w http.ResponseWriter, r *http.Request, _ models.Employee) {
	switch r.Method {
	case http.MethodGet:
		employees, err := h.store.ListEmployees(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, employees)
	case http.MethodPost:
		h.handleCreateEmployee(w, r)
	case http.MethodPut:
		h.handleUpdateEmployee(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req createEmployeeRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.TrimSpace(req.Role)
	if req.Username == "" || req.Password == "" || req.Name == "" || req.CounterNumber <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "username, password, name, and counter_number are required")
		return
	}
	if req.Role != "" && req.Role != models.RoleEmployee && req.Role != models.RoleAdmin {
		writeError(w, http.StatusBadRequest, "invalid_request", "role must be employee or admin")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	employee, err := h.store.CreateEmployee(r.Context(), store.CreateEmployeeInput{
		Username:      req.Username,
		PasswordHash:  string(hash),
		Name:          req.Name,
		CounterNumber: req.CounterNumber,
		Role:          req.Role,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, employee)
}

func (h *Handler) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var req updateEmployeeRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}

	input := store.UpdateEmployeeInput{
		ID:            req.ID,
		Username:      req.Username,
		Name:          req.Name,
		CounterNumber: req.CounterNumber,
		Role:          req.Role,
		Active:        req.Active,
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		hashed := string(hash)
		input.PasswordHash = &hashed
	}

	employee, err := h.store.UpdateEmployee(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, employee)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrNoTicket):
		return http.StatusConflict, "no_ticket", "no ticket is being served at this counter"
	case errors.Is(err, store.ErrCounterNotFound):
		return http.StatusNotFound, "counter_not_found", "counter not found or closed"
	case errors.Is(err, store.ErrCounterBusy):
		return http.StatusConflict, "counter_busy", "target counter is already serving a ticket"
	case errors.Is(err, store.ErrEmployeeNotFound):
		return http.StatusNotFound, "employee_not_found", "employee not found"
	case errors.Is(err, store.ErrEmployeeExists):
		return http.StatusConflict, "employee_exists", "username or counter already taken"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrSettingNotFound):
		return http.StatusNotFound, "setting_not_found", "setting not found"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
