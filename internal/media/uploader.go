package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUploadFailed wraps every failure of the media store.
var ErrUploadFailed = errors.New("media upload failed")

// Uploader stores a binary file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, fileName string, file io.Reader) (string, error)
}

// Transformation describes the delivery variant of a stored image.
type Transformation struct {
	Quality string
	Format  string
	Width   int
}

// String renders the transformation in the CDN's `tr` parameter syntax.
func (t Transformation) String() string {
	parts := make([]string, 0, 3)
	if t.Quality != "" {
		parts = append(parts, "q-"+t.Quality)
	}
	if t.Format != "" {
		parts = append(parts, "f-"+t.Format)
	}
	if t.Width > 0 {
		parts = append(parts, "w-"+strconv.Itoa(t.Width))
	}
	return strings.Join(parts, ",")
}

// MessageImage is applied to every image attached to a message.
var MessageImage = Transformation{Quality: "auto", Format: "webp", Width: 1280}

// CDNUploader talks to an ImageKit-compatible upload API.
type CDNUploader struct {
	uploadURL   string
	urlEndpoint string
	privateKey  string
	folder      string
	client      *resty.Client
}

// NewCDNUploader builds an uploader. urlEndpoint is the public delivery base URL.
func NewCDNUploader(uploadURL, urlEndpoint, privateKey, folder string) *CDNUploader {
	return &CDNUploader{
		uploadURL:   uploadURL,
		urlEndpoint: strings.TrimRight(urlEndpoint, "/"),
		privateKey:  privateKey,
		folder:      folder,
		client:      resty.New().SetTimeout(30*time.Second).SetBasicAuth(privateKey, ""),
	}
}

type uploadResult struct {
	FileID   string `json:"fileId"`
	FilePath string `json:"filePath"`
	URL      string `json:"url"`
}

type uploadError struct {
	Message string `json:"message"`
}

// Upload sends the file to the store and returns the transformed delivery URL.
func (u *CDNUploader) Upload(ctx context.Context, fileName string, file io.Reader) (string, error) {
	if u.privateKey == "" {
		return "", fmt.Errorf("%w: media store not configured", ErrUploadFailed)
	}

	form := map[string]string{"fileName": fileName}
	if u.folder != "" {
		form["folder"] = u.folder
	}

	var result uploadResult
	var failure uploadError
	resp, err := u.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetFileReader("file", fileName, file).
		ForceContentType("application/json").
		SetResult(&result).
		SetError(&failure).
		Post(u.uploadURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: status=%d %s", ErrUploadFailed, resp.StatusCode(), failure.Message)
	}
	if result.FilePath == "" {
		return "", fmt.Errorf("%w: response has no file path", ErrUploadFailed)
	}
	return u.DeliveryURL(result.FilePath, MessageImage), nil
}

// DeliveryURL builds the public URL of a stored file with the transformation applied.
func (u *CDNUploader) DeliveryURL(filePath string, tr Transformation) string {
	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}
	raw := u.urlEndpoint + filePath
	if params := tr.String(); params != "" {
		q := url.Values{}
		q.Set("tr", params)
		raw += "?" + q.Encode()
	}
	return raw
}
