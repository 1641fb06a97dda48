package auth

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/clipqueue/client/internal/apiclient"
	"github.com/clipqueue/client/internal/logging"
	"github.com/clipqueue/client/internal/models"
	"github.com/clipqueue/client/internal/notify"
)

// AccountAPI captures the backend account endpoints used by the auth flows.
type AccountAPI interface {
	CheckUserExists(ctx context.Context, email string) (apiclient.UserExistence, error)
	CreateAccount(ctx context.Context, email, password string) error
	ResetPassword(ctx context.Context, email string) error
	ClearPartialUploads(ctx context.Context) error
	DeleteAccount(ctx context.Context) error
	CheckoutSession(ctx context.Context, billingPeriod, plan string) (string, error)
	ManageSubscription(ctx context.Context) (string, error)
}

// PasswordAuthenticator exchanges credentials for a session token.
type PasswordAuthenticator interface {
	AuthWithPassword(ctx context.Context, email, password string) (string, models.UserProfile, error)
}

// Clearer drops cached user data on logout.
type Clearer interface {
	Clear()
}

var (
	// ErrInvalidEmail indicates the email failed local validation.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword indicates the password failed local validation.
	ErrWeakPassword = errors.New("password does not meet requirements")
	// ErrEmailNotVerified indicates the account exists but its email is unverified.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrWrongPassword indicates sign-in was rejected.
	ErrWrongPassword = errors.New("wrong password")
)

// Service implements the account flows on top of the backend and the session.
type Service struct {
	api      AccountAPI
	auth     PasswordAuthenticator
	session  *Session
	store    Clearer
	notifier notify.Notifier

	mu          sync.Mutex
	logoutTimer *time.Timer
}

// NewService wires the account flows.
func NewService(api AccountAPI, authenticator PasswordAuthenticator, session *Session, store Clearer, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Service{api: api, auth: authenticator, session: session, store: store, notifier: notifier}
}

// VerifyUser checks whether creds.Email already has an account and returns
// the next credential state. The password is always cleared.
func (s *Service) VerifyUser(ctx context.Context, creds Credentials) Credentials {
	valid := true
	next := Credentials{Email: creds.Email, IsEmailValid: &valid}

	existence, err := s.api.CheckUserExists(ctx, creds.Email)
	if err != nil {
		logging.FromContext(ctx).Error("check user exists failed", "error", err)
		notify.Error(ctx, s.notifier, "There was an issue connecting with our servers. Please try again.")
		return next
	}

	next.EmailSignIn = true
	next.UserExists = existence.DoesUserExist
	next.OAuthEnabled = existence.OAuthEnabled
	return next
}

// SignUp creates an email/password account. The user must verify their email before signing in.
func (s *Service) SignUp(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		notify.Error(ctx, s.notifier, "Please enter a valid email address")
		return ErrInvalidEmail
	}
	if msg := VerifyPassword(password); msg != "" {
		notify.Error(ctx, s.notifier, msg)
		return ErrWeakPassword
	}

	return notify.Track(ctx, s.notifier, notify.Messages{
		Pending: "Creating account...",
		Success: "Account successfully created! Verify your email to login",
		Error:   "Error creating your account. Contact support for more information",
	}, func(ctx context.Context) error {
		return s.api.CreateAccount(ctx, email, password)
	})
}

// SignIn authenticates with email and password and stores the session.
func (s *Service) SignIn(ctx context.Context, email, password string) (models.UserProfile, error) {
	token, profile, err := s.auth.AuthWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		logging.FromContext(ctx).Warn("sign in failed", "error", err)
		if httpStatus(err) == http.StatusForbidden {
			notify.Error(ctx, s.notifier, "Please verify your email before signing in")
			return models.UserProfile{}, ErrEmailNotVerified
		}
		notify.Error(ctx, s.notifier, "Wrong Password")
		return models.UserProfile{}, errors.Join(ErrWrongPassword, err)
	}

	if err := s.session.Set(ctx, SessionRecord{Token: token, UserID: profile.ID, Email: profile.Email}); err != nil {
		return models.UserProfile{}, err
	}
	notify.Success(ctx, s.notifier, "Logged in!")
	return profile, nil
}

// RequestPasswordReset asks the backend to email a reset link.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	err := s.api.ResetPassword(ctx, strings.TrimSpace(email))
	if err != nil {
		logging.FromContext(ctx).Error("reset password failed", "error", err)
		notify.Error(ctx, s.notifier, "Error sending password reset email. Please, contact our support")
		return err
	}
	notify.Success(ctx, s.notifier, "Successfully sent password reset email!")
	return nil
}

// Logout clears partial uploads, the session token and any cached user data.
func (s *Service) Logout(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	logger.Warn("logging out")

	s.mu.Lock()
	if s.logoutTimer != nil {
		s.logoutTimer.Stop()
		s.logoutTimer = nil
	}
	s.mu.Unlock()

	if s.session.Authenticated() {
		if err := s.api.ClearPartialUploads(ctx); err != nil {
			logger.Warn("clear partial uploads failed", "error", err)
		}
	}
	err := s.session.Clear(ctx)
	if s.store != nil {
		s.store.Clear()
	}
	return err
}

// ForceLogoutAfter schedules a "Timed Out" logout after delay, replacing any
// pending one. The returned channel closes once the logout has run.
func (s *Service) ForceLogoutAfter(ctx context.Context, delay time.Duration) <-chan struct{} {
	done := make(chan struct{})
	logger := logging.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logoutTimer != nil {
		s.logoutTimer.Stop()
	}
	s.logoutTimer = time.AfterFunc(delay, func() {
		defer close(done)
		notify.Error(ctx, s.notifier, "Timed Out")
		s.mu.Lock()
		s.logoutTimer = nil
		s.mu.Unlock()
		if err := s.Logout(context.WithoutCancel(ctx)); err != nil {
			logger.Error("forced logout failed", "error", err)
		}
	})
	return done
}

// DeleteAccount removes the account and logs out on success.
func (s *Service) DeleteAccount(ctx context.Context) error {
	err := notify.Track(ctx, s.notifier, notify.Messages{
		Pending: "Deleting account...",
		Error:   "Error deleting your account. Please, contact our support",
	}, s.api.DeleteAccount)
	if err != nil {
		return err
	}
	return s.Logout(ctx)
}

// CheckoutURL returns a payment checkout session URL.
func (s *Service) CheckoutURL(ctx context.Context, billingPeriod, plan string) (string, error) {
	var sessionURL string
	err := notify.Track(ctx, s.notifier, notify.Messages{
		Pending: "Redirecting to checkout...",
		Error:   "Error redirecting to checkout. Please, contact our support",
	}, func(ctx context.Context) error {
		var err error
		sessionURL, err = s.api.CheckoutSession(ctx, billingPeriod, plan)
		return err
	})
	return sessionURL, err
}

// PortalURL returns the subscription management portal URL.
func (s *Service) PortalURL(ctx context.Context) (string, error) {
	var portalURL string
	err := notify.Track(ctx, s.notifier, notify.Messages{
		Pending: "Redirecting to stripe portal session...",
		Error:   "Error generating stripe portal session. Please, contact our support",
	}, func(ctx context.Context) error {
		var err error
		portalURL, err = s.api.ManageSubscription(ctx)
		return err
	})
	return portalURL, err
}

func httpStatus(err error) int {
	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		return withStatus.HTTPStatus()
	}
	return apiclient.StatusCode(err)
}
