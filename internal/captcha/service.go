package captcha

import (
	"bytes"
	"context"
	"crypto/subtle"
	"strings"

	"github.com/google/uuid"
	"github.com/mojocn/base64Captcha"

	"github.com/lumenwerk/gatehouse/internal/apperror"
	"github.com/lumenwerk/gatehouse/internal/config"
)

// Service generates captcha images and verifies submitted answers.
type Service struct {
	store  Store
	cfg    config.CaptchaConfig
	driver *base64Captcha.DriverDigit
}

// NewService creates a captcha service with a digit driver sized from config.
func NewService(store Store, cfg config.CaptchaConfig) *Service {
	return &Service{
		store:  store,
		cfg:    cfg,
		driver: base64Captcha.NewDriverDigit(cfg.Height, cfg.Width, cfg.Length, 0.7, 80),
	}
}

// NewKey issues a fresh challenge key for the client to attach its
// captcha request to.
func (s *Service) NewKey() string {
	return uuid.NewString()
}

// Generate renders a new digit challenge for the given key and stores the
// answer. Requesting a new image for the same key replaces the previous
// answer, so only the latest image counts. Returns the rendered PNG.
func (s *Service) Generate(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, apperror.NewValidation("captcha key is required")
	}

	_, content, answer := s.driver.GenerateIdQuestionAnswer()
	item, err := s.driver.DrawCaptcha(content)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	var buf bytes.Buffer
	if _, err := item.WriteTo(&buf); err != nil {
		return nil, apperror.NewInternal(err)
	}

	if err := s.store.Save(ctx, key, answer, s.cfg.TTL); err != nil {
		return nil, apperror.NewInternal(err)
	}
	return buf.Bytes(), nil
}

// Verify consumes the challenge for the key and checks the answer. The
// challenge is destroyed whether or not the answer matches, so every
// attempt requires a fresh image.
func (s *Service) Verify(ctx context.Context, key, answer string) error {
	if key == "" || answer == "" {
		return apperror.NewValidation("captcha key and answer are required")
	}

	stored, ok, err := s.store.Consume(ctx, key)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if !ok {
		return apperror.NewValidation("captcha expired or not found")
	}

	given := strings.ToLower(strings.TrimSpace(answer))
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(stored)), []byte(given)) != 1 {
		return apperror.NewValidation("captcha answer is incorrect")
	}
	return nil
}
