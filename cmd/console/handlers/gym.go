package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kimhsiao/fitnix/console/internal/gym"
	"github.com/kimhsiao/fitnix/console/internal/models"
)

// GymService is the part of the gym API the control surface forwards to.
type GymService interface {
	ListMembers(ctx context.Context, opts gym.ListOptions) (gym.Page[models.Member], error)
	GetMember(ctx context.Context, id string) (models.Member, error)
	CreateMember(ctx context.Context, in gym.NewMember, out *models.Member) (gym.MutationResult, error)
	UpdateMember(ctx context.Context, id string, fields map[string]interface{}) (gym.MutationResult, error)
	DeleteMember(ctx context.Context, id string) (gym.MutationResult, error)

	ListTrainers(ctx context.Context, opts gym.ListOptions) (gym.Page[models.Trainer], error)
	CreateTrainer(ctx context.Context, in gym.NewTrainer, out *models.Trainer) (gym.MutationResult, error)
	UpdateTrainer(ctx context.Context, id string, fields map[string]interface{}) (gym.MutationResult, error)
	DeleteTrainer(ctx context.Context, id string) (gym.MutationResult, error)

	ListPackages(ctx context.Context, opts gym.ListOptions) (gym.Page[models.Package], error)
	CreatePackage(ctx context.Context, p models.Package, out *models.Package) (gym.MutationResult, error)
	UpdatePackage(ctx context.Context, id string, fields map[string]interface{}) (gym.MutationResult, error)
	DeletePackage(ctx context.Context, id string) (gym.MutationResult, error)
	PurchasePackage(ctx context.Context, packageID string, out *models.Purchase) (gym.MutationResult, error)

	ListTransactions(ctx context.Context, opts gym.ListOptions) (gym.Page[models.Transaction], error)
	ListOverdue(ctx context.Context, opts gym.ListOptions) (gym.Page[models.Transaction], error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (gym.MutationResult, error)
	FinanceReport(ctx context.Context) (models.FinanceReport, error)
	GetFeeSchedule(ctx context.Context) (models.FeeSchedule, error)
	UpdateFeeSchedule(ctx context.Context, fs models.FeeSchedule) (gym.MutationResult, error)

	DashboardMetrics(ctx context.Context) (models.DashboardMetrics, error)
	GetSettings(ctx context.Context) (models.Settings, error)
	UpdateSettings(ctx context.Context, admissionFee float64) (gym.MutationResult, error)
}

// GymHandler forwards gym reads and mutations to the Fitnix API. Mutations
// that cannot reach the API are answered 202 with the queue id.
type GymHandler struct {
	svc GymService
}

// NewGymHandler creates a new GymHandler.
func NewGymHandler(svc GymService) *GymHandler {
	return &GymHandler{svc: svc}
}

// Routes mounts the gym endpoints on r.
func (h *GymHandler) Routes(r chi.Router) {
	r.Route("/members", func(r chi.Router) {
		r.Get("/", h.ListMembers)
		r.Post("/", h.CreateMember)
		r.Get("/{id}", h.GetMember)
		r.Put("/{id}", h.UpdateMember)
		r.Delete("/{id}", h.DeleteMember)
	})
	r.Route("/trainers", func(r chi.Router) {
		r.Get("/", h.ListTrainers)
		r.Post("/", h.CreateTrainer)
		r.Put("/{id}", h.UpdateTrainer)
		r.Delete("/{id}", h.DeleteTrainer)
	})
	r.Route("/packages", func(r chi.Router) {
		r.Get("/", h.ListPackages)
		r.Post("/", h.CreatePackage)
		r.Post("/purchase", h.PurchasePackage)
		r.Put("/{id}", h.UpdatePackage)
		r.Delete("/{id}", h.DeletePackage)
	})
	r.Route("/finance", func(r chi.Router) {
		r.Get("/transactions", h.ListTransactions)
		r.Post("/transactions/{id}/mark-paid", h.MarkPaid)
		r.Get("/overdue", h.ListOverdue)
		r.Get("/reports", h.FinanceReport)
		r.Get("/settings", h.GetFeeSchedule)
		r.Put("/settings", h.UpdateFeeSchedule)
	})
	r.Get("/dashboard/metrics", h.DashboardMetrics)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
}

// mutationResponse carries the API's answer, or only the queue id when the
// call was stored for replay.
type mutationResponse struct {
	gym.MutationResult
	Data interface{} `json:"data,omitempty"`
}

// writeMutation answers 202 for a queued call and status otherwise.
func writeMutation(w http.ResponseWriter, status int, res gym.MutationResult, data interface{}, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Queued {
		writeJSON(w, http.StatusAccepted, mutationResponse{MutationResult: res})
		return
	}
	writeJSON(w, status, mutationResponse{MutationResult: res, Data: data})
}

func writeResult(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "Invalid request body")
		return false
	}
	return true
}

// listOptions reads page, per_page, status, member_id and active_only.
func listOptions(w http.ResponseWriter, r *http.Request) (gym.ListOptions, bool) {
	q := r.URL.Query()
	opts := gym.ListOptions{
		Status:   q.Get("status"),
		MemberID: q.Get("member_id"),
	}
	for key, dst := range map[string]*int{"page": &opts.Page, "per_page": &opts.PerPage} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(w, "Invalid pagination parameters")
			return opts, false
		}
		*dst = n
	}
	if v := q.Get("active_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "Invalid active_only value")
			return opts, false
		}
		opts.ActiveOnly = b
	}
	return opts, true
}

// ListMembers handles GET /api/members.
func (h *GymHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	page, err := h.svc.ListMembers(r.Context(), opts)
	writeResult(w, page, err)
}

// GetMember handles GET /api/members/{id}.
func (h *GymHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMember(r.Context(), chi.URLParam(r, "id"))
	writeResult(w, m, err)
}

// CreateMember handles POST /api/members.
func (h *GymHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var in gym.NewMember
	if !decodeBody(w, r, &in) {
		return
	}
	var created models.Member
	res, err := h.svc.CreateMember(r.Context(), in, &created)
	writeMutation(w, http.StatusCreated, res, &created, err)
}

// UpdateMember handles PUT /api/members/{id}.
func (h *GymHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var fields map[string]interface{}
	if !decodeBody(w, r, &fields) {
		return
	}
	res, err := h.svc.UpdateMember(r.Context(), chi.URLParam(r, "id"), fields)
	writeMutation(w, http.StatusOK, res, nil, err)
}

// DeleteMember handles DELETE /api/members/{id}.
func (h *GymHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeleteMember(r.Context(), chi.URLParam(r, "id"))
	writeMutation(w, http.StatusOK, res, nil, err)
}

// ListTrainers handles GET /api/trainers.
func (h *GymHandler) ListTrainers(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	page, err := h.svc.ListTrainers(r.Context(), opts)
	writeResult(w, page, err)
}

// CreateTrainer handles POST /api/trainers.
func (h *GymHandler) CreateTrainer(w http.ResponseWriter, r *http.Request) {
	var in gym.NewTrainer
	if !decodeBody(w, r, &in) {
		return
	}
	var created models.Trainer
	res, err := h.svc.CreateTrainer(r.Context(), in, &created)
	writeMutation(w, http.StatusCreated, res, &created, err)
}

// UpdateTrainer handles PUT /api/trainers/{id}.
func (h *GymHandler) UpdateTrainer(w http.ResponseWriter, r *http.Request) {
	var fields map[string]interface{}
	if !decodeBody(w, r, &fields) {
		return
	}
	res, err := h.svc.UpdateTrainer(r.Context(), chi.URLParam(r, "id"), fields)
	writeMutation(w, http.StatusOK, res, nil, err)
}

// DeleteTrainer handles DELETE /api/trainers/{id}.
func (h *GymHandler) DeleteTrainer(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeleteTrainer(r.Context(), chi.URLParam(r, "id"))
	writeMutation(w, http.StatusOK, res, nil, err)
}

// ListPackages handles GET /api/packages.
func (h *GymHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	page, err := h.svc.ListPackages(r.Context(), opts)
	writeResult(w, page, err)
}

// CreatePackage handles POST /api/packages.
func (h *GymHandler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var p models.Package
	if !decodeBody(w, r, &p) {
		return
	}
	var created models.Package
	res, err := h.svc.CreatePackage(r.Context(), p, &created)
	writeMutation(w, http.StatusCreated, res, &created, err)
}

// UpdatePackage handles PUT /api/packages/{id}.
func (h *GymHandler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	var fields map[string]interface{}
	if !decodeBody(w, r, &fields) {
		return
	}
	res, err := h.svc.UpdatePackage(r.Context(), chi.URLParam(r, "id"), fields)
	writeMutation(w, http.StatusOK, res, nil, err)
}

// DeletePackage handles DELETE /api/packages/{id}.
func (h *GymHandler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.DeletePackage(r.Context(), chi.URLParam(r, "id"))
	writeMutation(w, http.StatusOK, res, nil, err)
}

// PurchasePackage handles POST /api/packages/purchase.
func (h *GymHandler) PurchasePackage(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PackageID string `json:"package_id"`
	}
	if !decodeBody(w, r, &request) {
		return
	}
	var purchase models.Purchase
	res, err := h.svc.PurchasePackage(r.Context(), request.PackageID, &purchase)
	writeMutation(w, http.StatusOK, res, &purchase, err)
}

// ListTransactions handles GET /api/finance/transactions.
func (h *GymHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	page, err := h.svc.ListTransactions(r.Context(), opts)
	writeResult(w, page, err)
}

// ListOverdue handles GET /api/finance/overdue.
func (h *GymHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}
	page, err := h.svc.ListOverdue(r.Context(), opts)
	writeResult(w, page, err)
}

// MarkPaid handles POST /api/finance/transactions/{id}/mark-paid. An empty
// body lets the API stamp the payment time.
func (h *GymHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PaidDate *time.Time `json:"paid_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "Invalid request body")
		return
	}
	var paidAt time.Time
	if request.PaidDate != nil {
		paidAt = *request.PaidDate
	}
	res, err := h.svc.MarkPaid(r.Context(), chi.URLParam(r, "id"), paidAt)
	writeMutation(w, http.StatusOK, res, nil, err)
}

// FinanceReport handles GET /api/finance/reports.
func (h *GymHandler) FinanceReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.FinanceReport(r.Context())
	writeResult(w, report, err)
}

// GetFeeSchedule handles GET /api/finance/settings.
func (h *GymHandler) GetFeeSchedule(w http.ResponseWriter, r *http.Request) {
	fs, err := h.svc.GetFeeSchedule(r.Context())
	writeResult(w, fs, err)
}

// UpdateFeeSchedule handles PUT /api/finance/settings.
func (h *GymHandler) UpdateFeeSchedule(w http.ResponseWriter, r *http.Request) {
	var fs models.FeeSchedule
	if !decodeBody(w, r, &fs) {
		return
	}
	res, err := h.svc.UpdateFeeSchedule(r.Context(), fs)
	writeMutation(w, http.StatusOK, res, nil, err)
}

// DashboardMetrics handles GET /api/dashboard/metrics.
func (h *GymHandler) DashboardMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.DashboardMetrics(r.Context())
	writeResult(w, m, err)
}

// GetSettings handles GET /api/settings.
func (h *GymHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetSettings(r.Context())
	writeResult(w, st, err)
}

// UpdateSettings handles PUT /api/settings.
func (h *GymHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var request struct {
		AdmissionFee *float64 `json:"admission_fee"`
	}
	if !decodeBody(w, r, &request) {
		return
	}
	if request.AdmissionFee == nil {
		badRequest(w, "admission_fee is required")
		return
	}
	res, err := h.svc.UpdateSettings(r.Context(), *request.AdmissionFee)
	writeMutation(w, http.StatusOK, res, nil, err)
}
