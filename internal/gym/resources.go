package gym

import (
	"context"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/kimhsiao/fitnix/console/internal/errors"
	"github.com/kimhsiao/fitnix/console/internal/models"
)

// NewMember is the payload for creating a member account.
type NewMember struct {
	Username         string  `json:"username"`
	Password         string  `json:"password"`
	FullName         string  `json:"full_name"`
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	CNIC             string  `json:"cnic,omitempty"`
	Gender           string  `json:"gender,omitempty"`
	DateOfBirth      string  `json:"date_of_birth,omitempty"`
	AdmissionDate    string  `json:"admission_date,omitempty"`
	CurrentPackageID *string `json:"current_package_id,omitempty"`
	TrainerID        *string `json:"trainer_id,omitempty"`
}

// NewTrainer is the payload for creating a trainer. The API generates the
// trainer's login.
type NewTrainer struct {
	FullName       string  `json:"full_name,omitempty"`
	Specialization string  `json:"specialization"`
	Phone          string  `json:"phone"`
	Email          string  `json:"email"`
	Gender         string  `json:"gender,omitempty"`
	DateOfBirth    string  `json:"date_of_birth,omitempty"`
	CNIC           string  `json:"cnic,omitempty"`
	SalaryRate     float64 `json:"salary_rate,omitempty"`
	Availability   string  `json:"availability,omitempty"`
}

func pathID(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}

// target keeps a nil pointer from reaching the decoder as a non-nil interface.
func target[T any](out *T) interface{} {
	if out == nil {
		return nil
	}
	return out
}

func requireID(id string) error {
	if id == "" {
		return apperrors.New(apperrors.ErrInvalid, "id is required")
	}
	return nil
}

// ListMembers lists members.
func (s *Service) ListMembers(ctx context.Context, opts ListOptions) (Page[models.Member], error) {
	return list[models.Member](ctx, s.api, "/admin/members", "members", opts)
}

// GetMember fetches one member.
func (s *Service) GetMember(ctx context.Context, id string) (models.Member, error) {
	var m models.Member
	if err := requireID(id); err != nil {
		return m, err
	}
	err := s.api.Do(ctx, http.MethodGet, pathID("/admin/members", id), nil, &m)
	return m, err
}

// CreateMember creates a member account. out receives the created member
// unless the call was queued.
func (s *Service) CreateMember(ctx context.Context, in NewMember, out *models.Member) (MutationResult, error) {
	if in.Username == "" || in.Password == "" || in.FullName == "" {
		return MutationResult{}, apperrors.New(apperrors.ErrInvalid, "username, password and full_name are required")
	}
	return s.Mutate(ctx, http.MethodPost, "/admin/members", in, target(out))
}

// UpdateMember changes the given fields of a member.
func (s *Service) UpdateMember(ctx context.Context, id string, fields map[string]interface{}) (MutationResult, error) {
	if err := requireID(id); err != nil {
		return MutationResult{}, err
	}
	return s.Mutate(ctx, http.MethodPut, pathID("/admin/members", id), fields, nil)
}

// DeleteMember removes a member and their account.
func (s *Service) DeleteMember(ctx context.Context, id string) (MutationResult, error) {
	if err := requireID(id); err != nil {
		return MutationResult{}, err
	}
	return s.Mutate(ctx, http.MethodDelete, pathID("/admin/members", id), nil, nil)
}

// ListTrainers lists trainers.
func (s *Service) ListTrainers(ctx context.Context, opts ListOptions) (Page[models.Trainer], error) {
	return list[models.Trainer](ctx, s.api, "/admin/trainers", "trainers", opts)
}

// CreateTrainer creates a trainer profile. out receives the created trainer
// unless the call was queued.
func (s *Service) CreateTrainer(ctx context.Context, in NewTrainer, out *models.Trainer) (MutationResult, error) {
	if in.Specialization == "" || in.Phone == "" || in.Email == "" {
		return MutationResult{}, apperrors.New(apperrors.ErrInvalid, "specialization, phone and email are required")
	}
	return s.Mutate(ctx, http.MethodPost, "/admin/trainers", in, target(out))
}

// UpdateTrainer changes the given fields of a trainer.
func (s *Service) UpdateTrainer(ctx context.Context, id string, fields map[string]interface{}) (MutationResult, error) {
	if err := requireID(id); err != nil {
		return MutationResult{}, err
	}
	return s.Mutate(ctx, http.MethodPut, pathID("/admin/trainers", id), fields, nil)
}

// DeleteTrainer removes a trainer and their account.
func (s *Service) DeleteTrainer(ctx context.Context, id string) (MutationResult, error) {
	if err := requireID(id); err != nil {
		return MutationResult{}, err
	}
	return s.Mutate(ctx, http.MethodDelete, pathID("/admin/trainers", id), nil, nil)
}

// DashboardMetrics fetches the admin dashboard counts.
func (s *Service) DashboardMetrics(ctx context.Context) (models.DashboardMetrics, error) {
	var m models.DashboardMetrics
	err := s.api.Do(ctx, http.MethodGet, "/admin/dashboard/metrics", nil, &m)
	return m, err
}

// GetSettings fetches the admin settings.
func (s *Service) GetSettings(ctx context.Context) (models.Settings, error) {
	var st models.Settings
	err := s.api.Do(ctx, http.MethodGet, "/admin/settings", nil, &st)
	return st, err
}

// UpdateSettings changes the admission fee.
func (s *Service) UpdateSettings(ctx context.Context, admissionFee float64) (MutationResult, error) {
	if admissionFee < 0 {
		return MutationResult{}, apperrors.New(apperrors.ErrInvalid, "admission_fee must not be negative")
	}
	return s.Mutate(ctx, http.MethodPut, "/admin/settings", map[string]float64{"admission_fee": admissionFee}, nil)
}

// GetFeeSchedule fetches the admission fee and active package prices.
func (s *Service) GetFeeSchedule(ctx context.Context) (models.FeeSchedule, error) {
	var fs models.FeeSchedule
	err := s.api.Do(ctx, http.MethodGet, "/finance/settings", nil, &fs)
	return fs, err
}

// UpdateFeeSchedule changes the admission fee and package prices in one call.
func (s *Service) UpdateFeeSchedule(ctx context.Context, fs models.FeeSchedule) (MutationResult, error) {
	if fs.AdmissionFee == nil && len(fs.Packages) == 0 {
		return MutationResult{}, apperrors.New(apperrors.ErrInvalid, "nothing to update")
	}
	for _, p := range fs.Packages {
		if p.ID == "" || p.Price < 0 {
			return MutationResult{}, apperrors.New(apperrors.ErrInvalid, "packages need an id and a non-negative price")
		}
	}
	return s.Mutate(ctx, http.MethodPut, "/finance/settings", fs, nil)
}

// ListPackages lists packages, cheapest first.
func (s *Service) ListPackages(ctx context.Context, opts ListOptions) (Page[models.Package], error) {
	return list[models.Package](ctx, s.api, "/packages/", "packages", opts)
}

// CreatePackage creates a package. out receives the created package unless
// the call was queued.
func (s *Service) CreatePackage(ctx context.Context, p models.Package, out *models.Package) (MutationResult, error) {
	if p.Name == "" || p.DurationDays <= 0 || p.Price <= 0 {
		return MutationResult{}, apperrors.New(apperrors.ErrInvalid, "name, positive duration_days and positive price are required")
	}
	return s.Mutate(ctx, http.MethodPost, "/packages/", p, target(out))
}

// UpdatePackage changes the given fields of a package.
func (s *Service) UpdatePackage(ctx context.Context, id string, fields map[string]interface{}) (MutationResult, error) {
	if err := requireID(id); err != nil {
		return MutationResult{}, err
	}
	return s.Mutate(ctx, http.MethodPut, pathID("/packages", id), fields, nil)
}

// DeletePackage removes a package.
func (s *Service) DeletePackage(ctx context.Context, id string) (MutationResult, error) {
	if err := requireID(id); err != nil {
		return MutationResult{}, err
	}
	return s.Mutate(ctx, http.MethodDelete, pathID("/packages", id), nil, nil)
}

// PurchasePackage moves the signed-in member onto a package. out receives
// the new package dates unless the call was queued.
func (s *Service) PurchasePackage(ctx context.Context, packageID string, out *models.Purchase) (MutationResult, error) {
	if err := requireID(packageID); err != nil {
		return MutationResult{}, err
	}
	return s.Mutate(ctx, http.MethodPost, "/packages/purchase", map[string]string{"package_id": packageID}, target(out))
}

// ListTransactions lists finance transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, opts ListOptions) (Page[models.Transaction], error) {
	return list[models.Transaction](ctx, s.api, "/finance/transactions", "transactions", opts)
}

// ListOverdue lists overdue transactions, oldest due date first.
func (s *Service) ListOverdue(ctx context.Context, opts ListOptions) (Page[models.Transaction], error) {
	return list[models.Transaction](ctx, s.api, "/finance/overdue", "overdue_payments", opts)
}

// FinanceReport fetches revenue and outstanding totals.
func (s *Service) FinanceReport(ctx context.Context) (models.FinanceReport, error) {
	var r models.FinanceReport
	err := s.api.Do(ctx, http.MethodGet, "/finance/reports", nil, &r)
	return r, err
}

// MarkPaid records a payment. A zero paidAt lets the server use its clock.
func (s *Service) MarkPaid(ctx context.Context, id string, paidAt time.Time) (MutationResult, error) {
	if err := requireID(id); err != nil {
		return MutationResult{}, err
	}
	body := map[string]string{}
	if !paidAt.IsZero() {
		body["paid_date"] = paidAt.UTC().Format(time.RFC3339)
	}
	return s.Mutate(ctx, http.MethodPost, pathID("/finance/transactions", id)+"/mark-paid", body, nil)
}
