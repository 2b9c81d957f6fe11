package credit

import "time"

type CreditRequest struct {
	ID                   int64     `gorm:"primaryKey"`
	PatientID            int64     `gorm:"column:patient_id;not null;index"`
	ClinicID             int64     `gorm:"column:clinic_id;not null;index"`
	RequestedAmount      float64   `gorm:"column:requested_amount;not null"`
	Installments         int       `gorm:"column:installments;not null"`
	TreatmentDescription string    `gorm:"column:treatment_description;not null"`
	Status               string    `gorm:"column:status;not null;default:pending"`
	Notes                *string   `gorm:"column:notes"`
	CreatedAt            time.Time `gorm:"column:created_at"`
	UpdatedAt            time.Time `gorm:"column:updated_at"`
}

func (CreditRequest) TableName() string { return "credit_requests" }

type CreditOffer struct {
	ID              int64     `gorm:"primaryKey"`
	CreditRequestID int64     `gorm:"column:credit_request_id;not null;index"`
	BankName        string    `gorm:"column:bank_name;not null"`
	ApprovedAmount  float64   `gorm:"column:approved_amount;not null"`
	InterestRate    float64   `gorm:"column:interest_rate;not null"`
	Installments    int       `gorm:"column:installments;not null"`
	Conditions      *string   `gorm:"column:conditions"`
	MonthlyPayment  float64   `gorm:"column:monthly_payment;not null"`
	TotalAmount     float64   `gorm:"column:total_amount;not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (CreditOffer) TableName() string { return "credit_offers" }

type CreditAnalysis struct {
	ID              int64     `gorm:"primaryKey"`
	CreditRequestID int64     `gorm:"column:credit_request_id;not null;index"`
	AnalystID       int64     `gorm:"column:analyst_id;not null"`
	AnalysisType    string    `gorm:"column:analysis_type;not null"`
	Decision        string    `gorm:"column:decision;not null"`
	Comments        string    `gorm:"column:comments;not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (CreditAnalysis) TableName() string { return "credit_analysis" }

type CreditDocument struct {
	ID              int64     `gorm:"primaryKey"`
	CreditRequestID int64     `gorm:"column:credit_request_id;not null;index"`
	UploadedBy      int64     `gorm:"column:uploaded_by;not null"`
	DocumentType    string    `gorm:"column:document_type;not null"`
	FileName        string    `gorm:"column:file_name;not null"`
	FileURL         string    `gorm:"column:file_url;not null"`
	StorageKey      string    `gorm:"column:storage_key;not null"`
	FileSize        int64     `gorm:"column:file_size"`
	MimeType        string    `gorm:"column:mime_type"`
	Verified        bool      `gorm:"column:verified;default:false"`
	UploadedAt      time.Time `gorm:"column:uploaded_at"`
}

func (CreditDocument) TableName() string { return "credit_documents" }

type Clinic struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Email     string    `gorm:"column:email"`
	Phone     string    `gorm:"column:phone"`
	City      string    `gorm:"column:city"`
	State     string    `gorm:"column:state"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Clinic) TableName() string { return "clinics" }

type ClinicUser struct {
	ClinicID int64 `gorm:"column:clinic_id;primaryKey"`
	UserID   int64 `gorm:"column:user_id;primaryKey"`
}

func (ClinicUser) TableName() string { return "clinic_users" }
