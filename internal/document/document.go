package document

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	errors "github.com/frahmantamala/dental-credit/internal"
	"github.com/frahmantamala/dental-credit/internal/core/common/validation"
	datamodel "github.com/frahmantamala/dental-credit/internal/core/datamodel/credit"
)

const (
	TypeCPF          = "cpf"
	TypeIncomeProof  = "income_proof"
	TypeAddressProof = "address_proof"
	TypePhoto        = "photo"
	TypeOther        = "other"

	DefaultMaxSize int64 = 10 << 20
)

var Types = []string{TypeCPF, TypeIncomeProof, TypeAddressProof, TypePhoto, TypeOther}

var ErrDocumentNotFound = errors.NewNotFoundError("document not found", errors.ErrCodeDocumentNotFound)

type Document struct {
	ID              int64     `json:"id"`
	CreditRequestID int64     `json:"credit_request_id"`
	UploadedBy      int64     `json:"uploaded_by"`
	DocumentType    string    `json:"document_type"`
	FileName        string    `json:"file_name"`
	FileURL         string    `json:"file_url"`
	FileSize        int64     `json:"file_size"`
	MimeType        string    `json:"mime_type"`
	Verified        bool      `json:"verified"`
	UploadedAt      time.Time `json:"uploaded_at"`
}

type UploadDTO struct {
	DocumentType string
	FileName     string
	MimeType     string
	Size         int64
}

func (d *UploadDTO) Normalize() {
	d.DocumentType = strings.TrimSpace(strings.ToLower(d.DocumentType))
	d.FileName = filepath.Base(strings.TrimSpace(d.FileName))
	if d.FileName == "." || d.FileName == string(filepath.Separator) {
		d.FileName = ""
	}
	if d.MimeType == "" {
		d.MimeType = "application/octet-stream"
	}
}

func (d UploadDTO) Validate(maxSize int64) error {
	v := validation.NewValidator()
	v.Field("document_type", d.DocumentType).
		RequiredWithCode(errors.ErrCodeInvalidDocument).
		OneOf(Types, errors.ErrCodeInvalidDocument)
	v.Field("file_name", d.FileName).
		RequiredWithCode(errors.ErrCodeInvalidDocument).
		MaxLength(255)
	v.Field("file_size", d.Size).
		Positive(errors.ErrCodeInvalidDocument).
		MaxInt(maxSize, errors.ErrCodeInvalidDocument)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type RepositoryAPI interface {
	Create(ctx context.Context, doc *datamodel.CreditDocument) error
	GetByID(ctx context.Context, id int64) (*datamodel.CreditDocument, error)
	ListByRequest(ctx context.Context, requestID int64) ([]*datamodel.CreditDocument, error)
	Delete(ctx context.Context, id int64) error
	MarkVerified(ctx context.Context, id int64) error
}

// Storage keeps document bodies. Put returns the public URL and the number of bytes written.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, int64, error)
	Delete(ctx context.Context, key string) error
}

func FromDataModel(d *datamodel.CreditDocument) *Document {
	return &Document{
		ID:              d.ID,
		CreditRequestID: d.CreditRequestID,
		UploadedBy:      d.UploadedBy,
		DocumentType:    d.DocumentType,
		FileName:        d.FileName,
		FileURL:         d.FileURL,
		FileSize:        d.FileSize,
		MimeType:        d.MimeType,
		Verified:        d.Verified,
		UploadedAt:      d.UploadedAt,
	}
}

func ToRecord(d *datamodel.CreditDocument) map[string]interface{} {
	return map[string]interface{}{
		"id":                d.ID,
		"credit_request_id": d.CreditRequestID,
		"uploaded_by":       d.UploadedBy,
		"document_type":     d.DocumentType,
		"file_name":         d.FileName,
		"verified":          d.Verified,
	}
}

// extension keeps a short alphanumeric suffix of name, or nothing.
func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
