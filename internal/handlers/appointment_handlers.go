package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/apptly/apptly/internal/middleware"
	"github.com/apptly/apptly/internal/models"
	"github.com/apptly/apptly/internal/repository"
	"github.com/apptly/apptly/internal/service"
	"github.com/sirupsen/logrus"
)

var digitsPattern = regexp.MustCompile(`^\d+$`)

type AppointmentHandlers struct {
	appointments *repository.AppointmentRepository
	clients      *repository.ClientRepository
	employees    *repository.EmployeeRepository
	sessions     *service.SessionService
	logger       *logrus.Logger
}

func NewAppointmentHandlers(
	appointments *repository.AppointmentRepository,
	clients *repository.ClientRepository,
	employees *repository.EmployeeRepository,
	sessions *service.SessionService,
	logger *logrus.Logger,
) *AppointmentHandlers {
	return &AppointmentHandlers{
		appointments: appointments,
		clients:      clients,
		employees:    employees,
		sessions:     sessions,
		logger:       logger,
	}
}

// GetClientRepresentative serves GET /clientRepresentative?id=.
func (h *AppointmentHandlers) GetClientRepresentative(w http.ResponseWriter, r *http.Request) {
	repID := r.URL.Query().Get("id")
	if !digitsPattern.MatchString(repID) {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid representative ID format")
		return
	}

	rep, err := h.clients.GetRepresentative(r.Context(), repID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch representative")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if rep == nil {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "No client representative found with the given ID")
		return
	}

	respondWithJSON(w, http.StatusOK, rep)
}

// GetRepName serves GET /repName, resolving the representative from the
// session token.
func (h *AppointmentHandlers) GetRepName(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
		return
	}

	name, err := h.clients.GetRepName(r.Context(), claims.RepID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch representative name")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if name == nil {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "No client representative found with the given ID")
		return
	}

	respondWithJSON(w, http.StatusOK, name)
}

// GetLastAppointment serves GET /lastAppointment: the token client's most
// recent closed appointment.
func (h *AppointmentHandlers) GetLastAppointment(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
		return
	}

	apt, err := h.appointments.LastClosed(r.Context(), claims.ClientID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch last appointment")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if apt == nil {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "No appointment found for the specified client")
		return
	}

	respondWithJSON(w, http.StatusOK, apt)
}

// GetNextAppointment serves GET /nextAppointment: the token client's next
// upcoming appointment with employee and address details.
func (h *AppointmentHandlers) GetNextAppointment(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
		return
	}

	apt, err := h.appointments.Next(r.Context(), claims.ClientID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch next appointment")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if apt == nil {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "No upcoming appointment found for the specified client")
		return
	}

	respondWithJSON(w, http.StatusOK, apt)
}

// GetAppointmentsInMonth serves GET /allAppointmentsInMonthAndYear?month=&year=.
func (h *AppointmentHandlers) GetAppointmentsInMonth(w http.ResponseWriter, r *http.Request) {
	month, year, ok := parseMonthYear(w, r)
	if !ok {
		return
	}

	appointments, err := h.appointments.ByMonth(r.Context(), month, year)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch appointments by month")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if len(appointments) == 0 {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "No appointments found for the provided month and year.")
		return
	}

	respondWithJSON(w, http.StatusOK, appointments)
}

// GetAppointmentsCount serves GET /appointmentsCount?month=&year=, returning
// a date → appointment-count map for the month.
func (h *AppointmentHandlers) GetAppointmentsCount(w http.ResponseWriter, r *http.Request) {
	month, year, ok := parseMonthYear(w, r)
	if !ok {
		return
	}

	appointments, err := h.appointments.ByMonth(r.Context(), month, year)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch appointments by month")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	counts := make(map[string]int)
	for _, apt := range appointments {
		counts[apt.AptDate]++
	}

	respondWithJSON(w, http.StatusOK, counts)
}

type ChangeAppointmentRequest struct {
	Token      string `json:"token"`
	AptDate    string `json:"apt_date"`
	NewAptDate string `json:"new_apt_date"`
}

// ChangeAppointment serves PUT /changeAppointment: a client rescheduling its
// own appointment. The session token travels in the body on this endpoint.
func (h *AppointmentHandlers) ChangeAppointment(w http.ResponseWriter, r *http.Request) {
	var req ChangeAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	claims, ok := h.validateBodyToken(w, req.Token)
	if !ok {
		return
	}

	if !isValidDate(req.AptDate) || !isValidDate(req.NewAptDate) {
		respondWithError(w, http.StatusBadRequest, "INVALID_DATE", "Dates must be in YYYY-MM-DD format")
		return
	}

	if err := h.appointments.Reschedule(r.Context(), claims.ClientID, req.AptDate, req.NewAptDate); err != nil {
		h.logger.WithError(err).Error("Failed to reschedule appointment")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Database error occurred")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Appointment updated successfully"})
}

type ChangeClientAppointmentRequest struct {
	AptClient  string `json:"apt_client"`
	AptDate    string `json:"apt_date"`
	NewAptDate string `json:"new_apt_date"`
}

// ChangeClientAppointment serves PUT /changeClientAppointment: staff
// rescheduling on behalf of any client.
func (h *AppointmentHandlers) ChangeClientAppointment(w http.ResponseWriter, r *http.Request) {
	var req ChangeClientAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if !digitsPattern.MatchString(req.AptClient) {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid client ID format")
		return
	}
	if !isValidDate(req.AptDate) || !isValidDate(req.NewAptDate) {
		respondWithError(w, http.StatusBadRequest, "INVALID_DATE", "Dates must be in YYYY-MM-DD format")
		return
	}

	if err := h.appointments.Reschedule(r.Context(), req.AptClient, req.AptDate, req.NewAptDate); err != nil {
		h.logger.WithError(err).Error("Failed to reschedule appointment")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Database error occurred")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Appointment updated successfully"})
}

type MakeAppointmentRequest struct {
	Token   string `json:"token"`
	AptDate string `json:"apt_date"`
}

// MakeAppointment serves POST /makeAppointment: a client booking a new open
// appointment.
func (h *AppointmentHandlers) MakeAppointment(w http.ResponseWriter, r *http.Request) {
	var req MakeAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	claims, ok := h.validateBodyToken(w, req.Token)
	if !ok {
		return
	}

	if !isValidDate(req.AptDate) {
		respondWithError(w, http.StatusBadRequest, "INVALID_DATE", "Date must be in YYYY-MM-DD format")
		return
	}

	if err := h.appointments.Create(r.Context(), req.AptDate, claims.ClientID); err != nil {
		h.logger.WithError(err).Error("Failed to create appointment")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Database error occurred")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Appointment added successfully"})
}

// GetAppointmentsInDate serves GET /appointmentsInDate?date=: the staff day
// view of open appointments.
func (h *AppointmentHandlers) GetAppointmentsInDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if !isValidDate(date) {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Date parameter is required")
		return
	}

	appointments, err := h.appointments.OpenInDate(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch appointments in date")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	if appointments == nil {
		appointments = []models.AppointmentDetail{}
	}
	respondWithJSON(w, http.StatusOK, appointments)
}

// GetUnassignedAppointmentsInDate serves GET /unassignedAppointmentsInDate?date=.
func (h *AppointmentHandlers) GetUnassignedAppointmentsInDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if !isValidDate(date) {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Date parameter is required")
		return
	}

	appointments, err := h.appointments.UnassignedInDate(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch unassigned appointments")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	if appointments == nil {
		appointments = []models.UnassignedAppointment{}
	}
	respondWithJSON(w, http.StatusOK, appointments)
}

// GetAllEmployees serves GET /allEmployees.
func (h *AppointmentHandlers) GetAllEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.employees.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch employees")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if len(employees) == 0 {
		respondWithError(w, http.StatusNotFound, "NOT_FOUND", "No employees found")
		return
	}

	respondWithJSON(w, http.StatusOK, employees)
}

type AssignExecutiveRequest struct {
	Appointments []models.Assignment `json:"appointments"`
}

// AssignExecutiveEmployee serves PUT /assignExecutiveEmployee: a bulk,
// all-or-nothing assignment of executive employees to appointments.
func (h *AppointmentHandlers) AssignExecutiveEmployee(w http.ResponseWriter, r *http.Request) {
	var req AssignExecutiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid data format, expected a list of objects")
		return
	}
	if req.Appointments == nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid data format, expected a list of objects")
		return
	}

	for _, a := range req.Appointments {
		if a.AptDate == "" || a.AptClient == "" {
			respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing required parameters in one of the objects")
			return
		}
	}

	if err := h.appointments.AssignExecutives(r.Context(), req.Appointments); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to assign executives")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Database error occurred")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Executive employees assigned successfully"})
}

// validateBodyToken validates a session token carried in a request body and
// writes the failure response itself when the token is bad.
func (h *AppointmentHandlers) validateBodyToken(w http.ResponseWriter, token string) (*service.SessionClaims, bool) {
	claims, err := h.sessions.Validate(token)
	if err != nil {
		if errors.Is(err, service.ErrTokenExpired) {
			respondWithError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
			return nil, false
		}
		respondWithError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
		return nil, false
	}
	return claims, true
}

func parseMonthYear(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	monthStr := r.URL.Query().Get("month")
	yearStr := r.URL.Query().Get("year")
	if monthStr == "" || yearStr == "" {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Month and year are required query parameters.")
		return 0, 0, false
	}

	month, errMonth := strconv.Atoi(monthStr)
	year, errYear := strconv.Atoi(yearStr)
	if errMonth != nil || errYear != nil || month < 1 || month > 12 {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"Month must be an integer between 1 and 12 and year must be a valid integer")
		return 0, 0, false
	}

	return month, year, true
}

func isValidDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}
