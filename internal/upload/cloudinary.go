package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/deusflow/dispatch/internal/retry"
)

// Cloudinary performs unsigned uploads with an upload preset.
type Cloudinary struct {
	baseURL   string
	cloudName string
	preset    string
	client    *http.Client
}

func NewCloudinary(baseURL, cloudName, preset string, client *http.Client) *Cloudinary {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Cloudinary{
		baseURL:   strings.TrimRight(baseURL, "/"),
		cloudName: cloudName,
		preset:    preset,
		client:    client,
	}
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Cloudinary) Upload(ctx context.Context, name string, png []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", path.Base(name)+".png")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	if err := mw.WriteField("upload_preset", c.preset); err != nil {
		return "", err
	}
	if err := mw.WriteField("public_id", name); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.baseURL, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading upload response: %w", err)
	}

	var out cloudinaryResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("cloudinary upload failed with status %d", resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			err = fmt.Errorf("cloudinary upload failed with status %d: %s", resp.StatusCode, out.Error.Message)
		}
		// a bad preset or cloud name will not fix itself
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return "", retry.Permanent(err)
		}
		return "", err
	}
	if out.SecureURL == "" {
		return "", fmt.Errorf("cloudinary response has no secure_url")
	}
	return out.SecureURL, nil
}
