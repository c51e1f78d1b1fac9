package models

// Member is a gym member as listed by /admin/members.
type Member struct {
	ID                string  `json:"id"`
	UserID            string  `json:"user_id,omitempty"`
	Username          string  `json:"username,omitempty"`
	MemberNumber      int     `json:"member_number,omitempty"`
	FullName          string  `json:"full_name"`
	Phone             string  `json:"phone,omitempty"`
	CNIC              string  `json:"cnic,omitempty"`
	Email             string  `json:"email,omitempty"`
	Gender            string  `json:"gender,omitempty"`
	DateOfBirth       *string `json:"date_of_birth,omitempty"`
	AdmissionDate     *string `json:"admission_date,omitempty"`
	AdmissionFeePaid  bool    `json:"admission_fee_paid"`
	CurrentPackageID  *string `json:"current_package_id,omitempty"`
	TrainerID         *string `json:"trainer_id,omitempty"`
	PackageStartDate  *string `json:"package_start_date,omitempty"`
	PackageExpiryDate *string `json:"package_expiry_date,omitempty"`
	IsFrozen          bool    `json:"is_frozen"`
}

// Trainer is a trainer profile as listed by /admin/trainers.
type Trainer struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id,omitempty"`
	Username       string  `json:"username,omitempty"`
	FullName       string  `json:"full_name"`
	Phone          string  `json:"phone,omitempty"`
	Email          string  `json:"email,omitempty"`
	Specialization string  `json:"specialization,omitempty"`
	SalaryRate     float64 `json:"salary_rate"`
	HireDate       string  `json:"hire_date,omitempty"`
	Availability   string  `json:"availability,omitempty"`
}

// Package is a membership package offered by the gym.
type Package struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name"`
	DurationDays int     `json:"duration_days"`
	Price        float64 `json:"price"`
	Description  string  `json:"description,omitempty"`
	IsActive     bool    `json:"is_active"`
}

// TransactionStatus is the payment state of a Transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionOverdue   TransactionStatus = "OVERDUE"
)

// Transaction is a finance record as listed by /finance/transactions.
type Transaction struct {
	ID              string            `json:"id"`
	MemberID        string            `json:"member_id"`
	Amount          float64           `json:"amount"`
	TransactionType string            `json:"transaction_type"`
	Status          TransactionStatus `json:"status"`
	DueDate         *string           `json:"due_date,omitempty"`
	PaidDate        *string           `json:"paid_date,omitempty"`
	TrainerFee      float64           `json:"trainer_fee"`
	PackagePrice    float64           `json:"package_price"`
	DiscountAmount  float64           `json:"discount_amount"`
	DiscountType    string            `json:"discount_type,omitempty"`
	CreatedAt       string            `json:"created_at,omitempty"`
}

// Settings are the admin-wide defaults served by /admin/settings.
type Settings struct {
	AdmissionFee    float64 `json:"admission_fee"`
	PackagePrice    float64 `json:"package_price"`
	PackageDuration int     `json:"package_duration"`
}

// FeeSchedule is the finance view of fees: the admission fee and the
// active packages with their prices.
type FeeSchedule struct {
	AdmissionFee *float64  `json:"admission_fee,omitempty"`
	Packages     []Package `json:"packages,omitempty"`
}

// DashboardMetrics are the headline counts on the admin dashboard.
type DashboardMetrics struct {
	TotalMembers         int `json:"total_members"`
	OverduePaymentsCount int `json:"overdue_payments_count"`
	DailyAttendanceCount int `json:"daily_attendance_count"`
	LiveFloorCount       int `json:"live_floor_count"`
}

// FinanceReport sums transaction amounts and counts by status.
type FinanceReport struct {
	TotalRevenue               float64 `json:"total_revenue"`
	PendingPayments            float64 `json:"pending_payments"`
	OverduePayments            float64 `json:"overdue_payments"`
	CompletedTransactionsCount int     `json:"completed_transactions_count"`
	PendingTransactionsCount   int     `json:"pending_transactions_count"`
	OverdueTransactionsCount   int     `json:"overdue_transactions_count"`
}

// Purchase is the outcome of a member buying a package.
type Purchase struct {
	PackageID         string `json:"package_id"`
	PackageName       string `json:"package_name,omitempty"`
	PackageStartDate  string `json:"package_start_date,omitempty"`
	PackageExpiryDate string `json:"package_expiry_date,omitempty"`
}
