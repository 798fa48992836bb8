package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pgscope/internal/core"
	"pgscope/internal/service"
)

// Handler exposes the record store and the on-demand probe/collect
// operations over JSON.
type Handler struct {
	instances core.InstanceRepository
	states    core.SetupStateRepository
	snapshots core.SnapshotRepository
	recs      core.RecommendationRepository
	vault     *service.Vault
	collector *service.Collector
	log       *zap.Logger
}

func NewHandler(instances core.InstanceRepository, states core.SetupStateRepository,
	snapshots core.SnapshotRepository, recs core.RecommendationRepository,
	vault *service.Vault, collector *service.Collector, log *zap.Logger) *Handler {
	return &Handler{
		instances: instances,
		states:    states,
		snapshots: snapshots,
		recs:      recs,
		vault:     vault,
		collector: collector,
		log:       log,
	}
}

// Routes wires the /api subtree.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/instances", func(r chi.Router) {
		r.Post("/", h.CreateInstance)
		r.Get("/", h.ListInstances)
		r.Get("/{id}", h.GetInstance)
		r.Put("/{id}", h.UpdateInstance)
		r.Delete("/{id}", h.DeleteInstance)
		r.Post("/{id}/check-setup", h.CheckSetup)
		r.Post("/{id}/collect", h.Collect)
	})
	r.Get("/setup-states", h.ListSetupStates)
	r.Get("/snapshots", h.ListSnapshots)
	r.Get("/snapshots/{id}", h.GetSnapshot)
	r.Get("/recommendations", h.ListRecommendations)
	r.Patch("/recommendations/{id}", h.UpdateRecommendationStatus)

	return r
}

// instanceRequest is the write shape for instances. The password comes
// in as plaintext and leaves the handler only as vault ciphertext.
type instanceRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
}

func (h *Handler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Host == "" || req.DBName == "" || req.User == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name, host, dbname, user and password are required")
		return
	}
	if req.Port == 0 {
		req.Port = 5432
	}
	if req.SSLMode == "" {
		req.SSLMode = "prefer"
	}

	enc, err := h.vault.Encrypt(req.Password)
	if err != nil {
		h.log.Error("encrypt password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	inst := &core.Instance{
		Name:        req.Name,
		Host:        req.Host,
		Port:        req.Port,
		DBName:      req.DBName,
		User:        req.User,
		PasswordEnc: enc,
		SSLMode:     req.SSLMode,
	}
	if err := h.instances.Create(inst); err != nil {
		h.log.Error("create instance", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create instance")
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instances.GetAll()
	if err != nil {
		h.log.Error("list instances", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list instances")
		return
	}
	if instances == nil {
		instances = []core.Instance{}
	}
	writeJSON(w, http.StatusOK, instances)
}

func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.loadInstance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handler) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.loadInstance(w, r)
	if !ok {
		return
	}

	var req instanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name != "" {
		inst.Name = req.Name
	}
	if req.Host != "" {
		inst.Host = req.Host
	}
	if req.Port != 0 {
		inst.Port = req.Port
	}
	if req.DBName != "" {
		inst.DBName = req.DBName
	}
	if req.User != "" {
		inst.User = req.User
	}
	if req.SSLMode != "" {
		inst.SSLMode = req.SSLMode
	}
	if req.Password != "" {
		enc, err := h.vault.Encrypt(req.Password)
		if err != nil {
			h.log.Error("encrypt password", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to store credentials")
			return
		}
		inst.PasswordEnc = enc
	}

	if err := h.instances.Update(inst); err != nil {
		h.log.Error("update instance", zap.Int64("instance_id", inst.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update instance")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.loadInstance(w, r)
	if !ok {
		return
	}
	if err := h.instances.Delete(inst.ID); err != nil {
		h.log.Error("delete instance", zap.Int64("instance_id", inst.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete instance")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckSetup runs the readiness probe and stores the result as the
// instance's setup state.
func (h *Handler) CheckSetup(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.loadInstance(w, r)
	if !ok {
		return
	}

	info, err := h.collector.Probe(r.Context(), inst)
	if err != nil {
		h.probeError(w, inst.ID, err)
		return
	}

	state := &core.SetupState{
		InstanceID:    inst.ID,
		PgVersionNum:  info.PgVersionNum,
		PreloadOK:     info.PreloadOK,
		ExtCreated:    info.ExtCreated,
		Ready:         info.Ready,
		LastCheckedAt: time.Now().UTC(),
	}
	if err := h.states.Upsert(state); err != nil {
		h.log.Error("upsert setup state", zap.Int64("instance_id", inst.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store setup state")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Collect triggers an ad-hoc harvest for one instance. Refused when the
// instance has no verified-ready setup state.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.loadInstance(w, r)
	if !ok {
		return
	}

	state, err := h.states.GetByInstance(inst.ID)
	if err != nil || !state.Ready {
		writeError(w, http.StatusConflict, core.ErrNotReady.Error())
		return
	}

	snap, n, err := h.collector.Collect(r.Context(), inst)
	if err != nil {
		h.probeError(w, inst.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot_id": snap.ID, "rows": n})
}

func (h *Handler) ListSetupStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.states.GetAll()
	if err != nil {
		h.log.Error("list setup states", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list setup states")
		return
	}
	if states == nil {
		states = []core.SetupState{}
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.snapshots.GetAll()
	if err != nil {
		h.log.Error("list snapshots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snaps == nil {
		snaps = []core.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	snap, err := h.snapshots.GetByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		h.log.Error("get snapshot", zap.Int64("snapshot_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	var (
		recs []core.Recommendation
		err  error
	)
	if v := r.URL.Query().Get("instance_id"); v != "" {
		id, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid instance_id")
			return
		}
		recs, err = h.recs.GetByInstance(id)
	} else {
		recs, err = h.recs.GetAll()
	}
	if err != nil {
		h.log.Error("list recommendations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list recommendations")
		return
	}
	if recs == nil {
		recs = []core.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// UpdateRecommendationStatus is the lifecycle transition the generation
// engine itself never performs.
func (h *Handler) UpdateRecommendationStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	if err := h.recs.UpdateStatus(id, req.Status); err != nil {
		h.log.Error("update recommendation status", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadInstance(w http.ResponseWriter, r *http.Request) (*core.Instance, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	inst, err := h.instances.GetByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "instance not found")
		return nil, false
	}
	if err != nil {
		h.log.Error("load instance", zap.Int64("instance_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load instance")
		return nil, false
	}
	return inst, true
}

// probeError maps collector failures to HTTP statuses: bad credentials
// are the operator's problem, unreachable targets are the target's.
func (h *Handler) probeError(w http.ResponseWriter, instanceID int64, err error) {
	var connErr *core.ConnectionError
	switch {
	case errors.Is(err, core.ErrInvalidCredential):
		h.log.Warn("invalid credentials", zap.Int64("instance_id", instanceID))
		writeError(w, http.StatusUnprocessableEntity, "stored credentials could not be decrypted")
	case errors.As(err, &connErr):
		h.log.Warn("instance unreachable", zap.Int64("instance_id", instanceID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not connect to instance")
	default:
		h.log.Error("instance operation failed", zap.Int64("instance_id", instanceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
