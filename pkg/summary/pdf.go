package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
)

// ErrPDFTooLarge is returned by a streamed body once it passes the file limit.
var ErrPDFTooLarge = errors.New("pdf exceeds the file size limit")

// Presigner presigns S3 downloads. *s3.PresignClient satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// PDFBackend is the slice of the API client the resolver needs.
type PDFBackend interface {
	DonorDocuments(ctx context.Context, donorID models.ID) ([]models.Document, error)
	DocumentPDF(ctx context.Context, documentID models.ID) (*http.Response, error)
}

// PDFSource is either a URL the browser loads directly or a body streamed
// through the dashboard with the session's bearer token.
type PDFSource struct {
	RedirectURL   string
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Filename      string
}

type PDFResolver struct {
	presigner Presigner
	ttl       time.Duration
	maxBytes  int64
}

// NewPDFResolver builds a resolver. A nil presigner streams s3:// documents
// through the API like any backend-hosted file.
func NewPDFResolver(presigner Presigner, ttl time.Duration, maxBytes int64) *PDFResolver {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PDFResolver{presigner: presigner, ttl: ttl, maxBytes: maxBytes}
}

// ResolveDocument finds documentID among the donor's documents and resolves
// its source.
func (r *PDFResolver) ResolveDocument(ctx context.Context, api PDFBackend, donorID, documentID models.ID) (*PDFSource, error) {
	docs, err := api.DonorDocuments(ctx, donorID)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if d.ID == documentID {
			return r.Resolve(ctx, api, d)
		}
	}
	return nil, &apperr.NotFoundError{Resource: "document " + documentID.String()}
}

func (r *PDFResolver) Resolve(ctx context.Context, api PDFBackend, doc models.Document) (*PDFSource, error) {
	name := doc.OriginalFilename
	if name == "" {
		name = doc.Filename
	}
	location := strings.TrimSpace(doc.FilePath)

	switch {
	case strings.HasPrefix(location, "s3://") && r.presigner != nil:
		bucket, key, err := parseS3URL(location)
		if err != nil {
			return nil, err
		}
		req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket:                     aws.String(bucket),
			Key:                        aws.String(key),
			ResponseContentType:        aws.String("application/pdf"),
			ResponseContentDisposition: aws.String(fmt.Sprintf("inline; filename=%q", name)),
		}, func(o *s3.PresignOptions) { o.Expires = r.ttl })
		if err != nil {
			return nil, fmt.Errorf("presigning %s: %w", location, err)
		}
		return &PDFSource{RedirectURL: req.URL, Filename: name}, nil
	case strings.HasPrefix(location, "https://"), strings.HasPrefix(location, "http://"):
		return &PDFSource{RedirectURL: location, Filename: name}, nil
	}

	resp, err := api.DocumentPDF(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if r.maxBytes > 0 && resp.ContentLength > r.maxBytes {
		resp.Body.Close()
		return nil, &apperr.APIError{StatusCode: http.StatusRequestEntityTooLarge, Message: ErrPDFTooLarge.Error()}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/pdf"
	}
	body := resp.Body
	if r.maxBytes > 0 {
		body = &cappedBody{rc: resp.Body, remaining: r.maxBytes}
	}
	return &PDFSource{Body: body, ContentType: ct, ContentLength: resp.ContentLength, Filename: name}, nil
}

func parseS3URL(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", location, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 location %q needs a bucket and key", location)
	}
	return u.Host, key, nil
}

// cappedBody fails the read that crosses the limit instead of truncating.
type cappedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (c *cappedBody) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		var probe [1]byte
		if n, _ := c.rc.Read(probe[:]); n > 0 {
			return 0, ErrPDFTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.rc.Read(p)
	c.remaining -= int64(n)
	return n, err
}

func (c *cappedBody) Close() error { return c.rc.Close() }

// NewS3Presigner loads the default AWS configuration for region. When
// AWS_ENDPOINT_URL is set (localstack, minio) path-style addressing is used
// against that endpoint.
func NewS3Presigner(ctx context.Context, region string) (*s3.PresignClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	endpoint := os.Getenv("AWS_ENDPOINT_URL")
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Log.WithFields(map[string]interface{}{
		"region":   region,
		"endpoint": endpoint,
	}).Info("S3 presigner configured")
	return s3.NewPresignClient(client), nil
}
