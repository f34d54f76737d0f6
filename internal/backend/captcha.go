package backend

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/fastscan/internal/model"
)

// CaptchaTTL bounds how long an unanswered challenge stays valid.
const CaptchaTTL = 10 * time.Minute

// Captchas issues and checks single-use arithmetic challenges.
type Captchas struct {
	store *Store
	intn  func(int) int
}

func NewCaptchas(store *Store) *Captchas {
	return &Captchas{store: store, intn: rand.IntN}
}

// New stores a fresh "What is a + b?" challenge.
func (c *Captchas) New(ctx context.Context) (*model.CaptchaChallenge, error) {
	a, b := c.intn(10)+1, c.intn(10)+1
	id := uuid.NewString()
	if err := c.store.InsertCaptcha(ctx, id, a+b); err != nil {
		return nil, err
	}
	return &model.CaptchaChallenge{ID: id, Question: fmt.Sprintf("What is %d + %d?", a, b)}, nil
}

// Verify consumes the challenge and reports whether answer is right. Unknown
// and expired ids are wrong answers.
func (c *Captchas) Verify(ctx context.Context, id, answer string) (bool, error) {
	want, err := c.store.TakeCaptcha(ctx, id, CaptchaTTL)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	got, err := strconv.Atoi(strings.TrimSpace(answer))
	return err == nil && got == want, nil
}
