package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	admissionHandler "github.com/jwalitptl/ward-api/internal/handler/admission"
	auditHandler "github.com/jwalitptl/ward-api/internal/handler/audit"
	bedHandler "github.com/jwalitptl/ward-api/internal/handler/bed"
	"github.com/jwalitptl/ward-api/internal/handler/health"
	"github.com/jwalitptl/ward-api/internal/middleware"
	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository/memory"
	"github.com/jwalitptl/ward-api/internal/sequence"
	"github.com/jwalitptl/ward-api/internal/service/admission"
	"github.com/jwalitptl/ward-api/internal/service/audit"
	"github.com/jwalitptl/ward-api/internal/service/bed"
	"github.com/jwalitptl/ward-api/internal/service/conflict"
	"github.com/jwalitptl/ward-api/internal/service/event"
	"github.com/jwalitptl/ward-api/internal/service/patient"
	"github.com/jwalitptl/ward-api/pkg/auth"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/metrics"
)

type envelope struct {
	Status    string          `json:"status"`
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type testServer struct {
	t       *testing.T
	engine  http.Handler
	tokens  *auth.JWTService
	admin   string
	nurse   string
	patient model.PatientRef
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewStore(5 * time.Second)
	p := model.PatientRef{ID: uuid.New(), Name: "Jane Roe"}
	store.AddPatient(p)

	log := logger.NewNop()
	patients := patient.NewService(store.Patients())
	resolver := conflict.NewResolver(patients)
	auditor := audit.NewService(store.Audit())
	registry := bed.NewRegistry(store, resolver, auditor, log)
	admissions := admission.NewService(admission.Dependencies{
		Store:    store,
		Beds:     registry,
		Resolver: resolver,
		Patients: patients,
		Sequence: sequence.NewMemoryGenerator(sequence.Format{Prefix: "ADM", Padding: 5}),
		Auditor:  auditor,
		Events:   event.NewEmitter(),
		Metrics:  metrics.NewTestMetrics(),
		Logger:   log,
	})

	tokens := auth.NewJWTService("test-secret", "ward-api", time.Hour)
	reg := prometheus.NewRegistry()
	r := NewRouter(
		middleware.NewAuthMiddleware(tokens),
		admissionHandler.NewHandler(admissions),
		bedHandler.NewHandler(registry),
		auditHandler.NewHandler(auditor),
		health.NewHandler(map[string]health.Pinger{"store": store}),
		RouterConfig{
			RequestTimeout: 5 * time.Second,
			CORSConfig:     middleware.DefaultCORSConfig(),
			MetricsPrefix:  "test",
			Registerer:     reg,
			Gatherer:       reg,
		},
	)
	r.Setup()

	admin, err := tokens.GenerateAccessToken(model.Actor{ID: uuid.New(), Name: "Admin", Roles: []string{RoleAdmin}})
	require.NoError(t, err)
	nurse, err := tokens.GenerateAccessToken(model.Actor{ID: uuid.New(), Name: "Nurse Joy", Roles: []string{"nurse"}})
	require.NoError(t, err)

	return &testServer{t: t, engine: r.Engine(), tokens: tokens, admin: admin, nurse: nurse, patient: p}
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *testServer) createBed(name string) uuid.UUID {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/v1/beds", s.admin, map[string]string{"name": name})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var b model.Bed
	require.NoError(s.t, json.Unmarshal(env.Data, &b))
	return b.ID
}

func (s *testServer) createAdmission(bedID uuid.UUID) model.Admission {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/v1/admissions", s.nurse, map[string]interface{}{
		"patient_id": s.patient.ID,
		"bed_id":     bedID,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var a model.Admission
	require.NoError(s.t, json.Unmarshal(env.Data, &a))
	return a
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_requests_total")
}

func TestRequiresToken(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodGet, "/api/v1/admissions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/admissions", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBedWritesRequireAdmin(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodPost, "/api/v1/beds", s.nurse, map[string]string{"name": "B-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/beds", s.nurse, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidationErrorsListFields(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/v1/beds", s.admin, map[string]string{"name": "B-1", "bed_type": "hammock"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var fields []middleware.ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &fields))
	require.Len(t, fields, 1)
	assert.Equal(t, "bed_type", fields[0].Field)
}

func TestMalformedID(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/v1/admissions/not-a-uuid", s.nurse, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", env.Status)
	assert.NotEmpty(t, env.RequestID)
}

func TestAdmissionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	bedID := s.createBed("B-1")

	first := s.createAdmission(bedID)
	assert.Equal(t, model.AdmissionStateDraft, first.State)
	assert.Equal(t, "ADM00001", first.Reference)

	w, env := s.do(http.MethodPost, "/api/v1/admissions/"+first.ID.String()+"/admit", s.nurse, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var admitted model.Admission
	require.NoError(t, json.Unmarshal(env.Data, &admitted))
	assert.Equal(t, model.AdmissionStateActive, admitted.State)

	// The bed view names the occupant.
	w, env = s.do(http.MethodGet, "/api/v1/beds/"+bedID.String(), s.nurse, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view model.BedView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, model.BedStateOccupied, view.State)
	require.NotNil(t, view.CurrentOccupant)
	assert.Equal(t, "Jane Roe", view.CurrentOccupant.PatientName)

	// A second admission on the same bed is rejected with the holder named.
	second := s.createAdmission(bedID)
	w, env = s.do(http.MethodPost, "/api/v1/admissions/"+second.ID.String()+"/admit", s.nurse, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, env.Message, first.Reference)

	// Admitting again is an invalid transition.
	w, _ = s.do(http.MethodPost, "/api/v1/admissions/"+first.ID.String()+"/admit", s.nurse, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = s.do(http.MethodPost, "/api/v1/admissions/"+first.ID.String()+"/discharge", s.nurse,
		map[string]string{"summary": "recovered"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var discharged model.Admission
	require.NoError(t, json.Unmarshal(env.Data, &discharged))
	assert.Equal(t, model.AdmissionStateDischarged, discharged.State)
	assert.NotNil(t, discharged.DischargedAt)
	assert.Equal(t, "recovered", discharged.DischargeSummary)

	// Discharge without a body repeats as a no-op.
	w, _ = s.do(http.MethodPost, "/api/v1/admissions/"+first.ID.String()+"/discharge", s.nurse, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// The bed is free again, so the second admission can take it.
	w, _ = s.do(http.MethodPost, "/api/v1/admissions/"+second.ID.String()+"/admit", s.nurse, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/admissions/reference/"+first.Reference, s.nurse, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var byRef model.Admission
	require.NoError(t, json.Unmarshal(env.Data, &byRef))
	assert.Equal(t, first.ID, byRef.ID)

	w, env = s.do(http.MethodGet, "/api/v1/admissions/summary", s.nurse, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary model.AdmissionSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Counts[model.AdmissionStateActive])
	assert.Equal(t, 1, summary.Counts[model.AdmissionStateDischarged])

	w, env = s.do(http.MethodGet, "/api/v1/audit/logs?entity_id="+first.ID.String(), s.nurse, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []model.AuditLog
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	assert.Len(t, logs, 3)
}

func TestAdmitWithoutBedIsUnprocessable(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/v1/admissions", s.nurse, map[string]interface{}{
		"patient_id": s.patient.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var a model.Admission
	require.NoError(t, json.Unmarshal(env.Data, &a))

	w, _ = s.do(http.MethodPost, "/api/v1/admissions/"+a.ID.String()+"/admit", s.nurse, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestReassignAndMaintenance(t *testing.T) {
	s := newTestServer(t)
	b1 := s.createBed("B-1")
	b2 := s.createBed("B-2")

	a := s.createAdmission(b1)
	w, _ := s.do(http.MethodPost, "/api/v1/admissions/"+a.ID.String()+"/admit", s.nurse, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodPut, "/api/v1/beds/"+b2.String()+"/maintenance", s.admin, map[string]bool{"maintenance": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do(http.MethodPost, "/api/v1/admissions/"+a.ID.String()+"/reassign", s.nurse, map[string]uuid.UUID{"bed_id": b2})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(http.MethodPut, "/api/v1/beds/"+b2.String()+"/maintenance", s.admin, map[string]bool{"maintenance": false})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(http.MethodPost, "/api/v1/admissions/"+a.ID.String()+"/reassign", s.nurse, map[string]uuid.UUID{"bed_id": b2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var moved model.Admission
	require.NoError(t, json.Unmarshal(env.Data, &moved))
	require.NotNil(t, moved.BedID)
	assert.Equal(t, b2, *moved.BedID)

	// The new bed is referenced and cannot be deleted.
	w, _ = s.do(http.MethodDelete, "/api/v1/beds/"+b2.String(), s.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/beds?state=free", s.nurse, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoomsReportOccupancy(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/v1/rooms", s.admin, map[string]interface{}{"name": "R-101", "room_type": "private"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var room model.Room
	require.NoError(t, json.Unmarshal(env.Data, &room))

	w, _ = s.do(http.MethodPost, "/api/v1/beds", s.admin, map[string]interface{}{"name": "R-101-A", "room_id": room.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.do(http.MethodGet, "/api/v1/rooms/"+room.ID.String(), s.nurse, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var occ model.RoomOccupancy
	require.NoError(t, json.Unmarshal(env.Data, &occ))
	assert.Equal(t, 1, occ.Capacity)
	assert.Equal(t, 1, occ.Available)
}
