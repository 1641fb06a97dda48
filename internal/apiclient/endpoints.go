package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/clipqueue/client/internal/models"
)

// UserExistence is the reply of the email existence check.
type UserExistence struct {
	DoesUserExist bool `json:"does_user_exist"`
	OAuthEnabled  bool `json:"oauth_enabled"`
}

// UploadTarget is a single-use destination for a file transfer.
type UploadTarget struct {
	UploadURL      string `json:"upload_url"`
	UploadFilename string `json:"upload_filename"`
}

// EnqueuePayload is the body sent to the enqueue endpoint: the user's
// options plus fixed processing levels.
type EnqueuePayload struct {
	models.QueueOptions
	ProfanityFilterStrength string `json:"profanity_filter_strength"`
	TimestampAccuracy       string `json:"timestamp_accuracy"`
}

// ErrMissingField indicates a successful reply lacked a required field.
var ErrMissingField = errors.New("response missing required field")

// CheckUserExists reports whether an account exists for email.
func (c *Client) CheckUserExists(ctx context.Context, email string) (UserExistence, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/public/account/v3/does_user_exist/"+url.PathEscape(email), nil)
	if err != nil {
		return UserExistence{}, err
	}
	var out UserExistence
	if err := resp.Decode(&out); err != nil {
		return UserExistence{}, err
	}
	return out, nil
}

// CreateAccount registers an email/password account.
func (c *Client) CreateAccount(ctx context.Context, email, password string) error {
	_, err := c.Request(ctx, http.MethodPost, "/public/account/v2/create", map[string]string{
		"user_email":    email,
		"user_password": password,
	})
	return err
}

// ResetPassword asks the backend to send a password reset email.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	_, err := c.Request(ctx, http.MethodPatch, "/public/account/password/v2/reset/"+url.PathEscape(email), nil)
	return err
}

// RequestUploadTarget obtains a pre-signed upload destination for a file with the given SHA-1.
func (c *Client) RequestUploadTarget(ctx context.Context, sha1Hex string) (UploadTarget, error) {
	resp, err := c.Request(ctx, http.MethodPost, "/videos/v2/upload", map[string]string{"file_sha1": sha1Hex})
	if err != nil {
		return UploadTarget{}, err
	}
	var out UploadTarget
	if err := resp.Decode(&out); err != nil {
		return UploadTarget{}, err
	}
	if out.UploadURL == "" || out.UploadFilename == "" {
		return UploadTarget{}, ErrMissingField
	}
	return out, nil
}

// ClearPartialUploads drops any uploads that never got enqueued.
func (c *Client) ClearPartialUploads(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodDelete, "/videos/v2/upload", nil)
	return err
}

// Enqueue registers a video for processing.
func (c *Client) Enqueue(ctx context.Context, payload EnqueuePayload) error {
	_, err := c.Request(ctx, http.MethodPost, "/videos/v2/enqueue", payload)
	return err
}

// RequestDownloadURL returns a time-limited URL for a processed video.
func (c *Client) RequestDownloadURL(ctx context.Context, videoID string) (string, error) {
	resp, err := c.Request(ctx, http.MethodPatch, "/videos/v2/download", map[string]string{"video_id": videoID})
	if err != nil {
		return "", err
	}
	var out struct {
		DownloadURL string `json:"download_url"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.DownloadURL == "" {
		return "", ErrMissingField
	}
	return out.DownloadURL, nil
}

// DeleteVideo removes a video from the backend.
func (c *Client) DeleteVideo(ctx context.Context, videoID string) error {
	_, err := c.Request(ctx, http.MethodDelete, "/videos/v2/delete", map[string]string{"video_id": videoID})
	return err
}

// CheckoutSession creates a payment checkout session and returns its URL.
func (c *Client) CheckoutSession(ctx context.Context, billingPeriod, plan string) (string, error) {
	path := "/payments/v2/checkout/" + url.PathEscape(billingPeriod) + "/" + url.PathEscape(plan)
	resp, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		SessionURL string `json:"session_url"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.SessionURL == "" {
		return "", ErrMissingField
	}
	return out.SessionURL, nil
}

// ManageSubscription returns the billing portal URL.
func (c *Client) ManageSubscription(ctx context.Context) (string, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/payments/subscription/v2/manage", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		PortalURL string `json:"portal_url"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.PortalURL == "" {
		return "", ErrMissingField
	}
	return out.PortalURL, nil
}

// DeleteAccount removes the authenticated account and all its videos.
func (c *Client) DeleteAccount(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodDelete, "/account/v2/delete", nil)
	return err
}
