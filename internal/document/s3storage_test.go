package document_test

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/dental-credit/internal/core/user"
	"github.com/frahmantamala/dental-credit/internal/credit"
	"github.com/frahmantamala/dental-credit/internal/document"
)

type storedObject struct {
	body        string
	contentType string
	length      int64
}

type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]storedObject
	deleted []string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]storedObject{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket = aws.ToString(in.Bucket)
	f.objects[aws.ToString(in.Key)] = storedObject{
		body:        string(raw),
		contentType: aws.ToString(in.ContentType),
		length:      aws.ToInt64(in.ContentLength),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

var _ = Describe("S3Storage", func() {
	var (
		client *fakeS3
		ctx    context.Context
	)

	BeforeEach(func() {
		client = newFakeS3()
		ctx = context.Background()
	})

	It("uploads with length and content type and returns the public URL", func() {
		storage, err := document.NewS3Storage(client, "dental-docs", "us-east-1", "https://cdn.example.com/docs/")
		Expect(err).ToNot(HaveOccurred())

		url, n, err := storage.Put(ctx, "credit-requests/10/a.pdf", strings.NewReader("hello"), "application/pdf")
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(int64(5)))
		Expect(url).To(Equal("https://cdn.example.com/docs/credit-requests/10/a.pdf"))

		Expect(client.bucket).To(Equal("dental-docs"))
		obj := client.objects["credit-requests/10/a.pdf"]
		Expect(obj.body).To(Equal("hello"))
		Expect(obj.contentType).To(Equal("application/pdf"))
		Expect(obj.length).To(Equal(int64(5)))
	})

	It("falls back to the bucket URL without a base URL", func() {
		storage, err := document.NewS3Storage(client, "dental-docs", "sa-east-1", "")
		Expect(err).ToNot(HaveOccurred())

		url, _, err := storage.Put(ctx, "k.pdf", strings.NewReader("x"), "")
		Expect(err).ToNot(HaveOccurred())
		Expect(url).To(Equal("https://dental-docs.s3.sa-east-1.amazonaws.com/k.pdf"))
	})

	It("deletes by key", func() {
		storage, err := document.NewS3Storage(client, "dental-docs", "us-east-1", "")
		Expect(err).ToNot(HaveOccurred())
		_, _, err = storage.Put(ctx, "k.pdf", strings.NewReader("x"), "")
		Expect(err).ToNot(HaveOccurred())

		Expect(storage.Delete(ctx, "k.pdf")).To(Succeed())
		Expect(client.objects).To(BeEmpty())
		Expect(client.deleted).To(Equal([]string{"k.pdf"}))
	})

	It("refuses keys that escape the prefix", func() {
		storage, err := document.NewS3Storage(client, "dental-docs", "us-east-1", "")
		Expect(err).ToNot(HaveOccurred())
		_, _, err = storage.Put(ctx, "../etc/passwd", strings.NewReader("x"), "")
		Expect(err).To(HaveOccurred())
		Expect(client.objects).To(BeEmpty())
	})

	It("requires a bucket", func() {
		_, err := document.NewS3Storage(client, "", "us-east-1", "")
		Expect(err).To(HaveOccurred())
	})

	Describe("behind the document service", func() {
		var (
			svc     *document.Service
			repo    *memoryRepository
			patient = user.Actor{ID: 7, Role: user.RolePatient}
		)

		BeforeEach(func() {
			storage, err := document.NewS3Storage(client, "dental-docs", "us-east-1", "https://cdn.example.com")
			Expect(err).ToNot(HaveOccurred())
			repo = newMemoryRepository()
			requests := requestStore{10: {ID: 10, PatientID: 7, ClinicID: 3, Status: string(credit.StatusPending)}}
			clock := fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			svc = document.NewService(repo, requests, storage, 16, &recordingPublisher{}, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
		})

		It("stores the upload in the bucket", func() {
			doc, err := svc.Upload(ctx, patient, 10, document.UploadDTO{
				DocumentType: "cpf", FileName: "scan.pdf", MimeType: "application/pdf", Size: 5,
			}, strings.NewReader("hello"))
			Expect(err).ToNot(HaveOccurred())
			Expect(doc.FileURL).To(HavePrefix("https://cdn.example.com/credit-requests/10/"))
			Expect(client.objects).To(HaveLen(1))
		})

		It("reports a bucket failure without recording the document", func() {
			client.putErr = stderrors.New("access denied")
			_, err := svc.Upload(ctx, patient, 10, document.UploadDTO{
				DocumentType: "cpf", FileName: "scan.pdf", MimeType: "application/pdf", Size: 5,
			}, strings.NewReader("hello"))
			Expect(err).To(HaveOccurred())
			Expect(repo.rows).To(BeEmpty())
		})
	})
})
