package payment

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kampus-akademi/backend/internal/apperr"
)

const stateIssuer = "kampus-checkout"

// OrderState is the order context carried through the processor in the OAuth2 state parameter.
type OrderState struct {
	OrderID    string `json:"orderId"`
	CourseID   string `json:"courseId"`
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	Locale     string `json:"locale"`
	Amount     string `json:"amount"`
	CourseName string `json:"courseName"`
}

type stateClaims struct {
	OrderState
	jwt.RegisteredClaims
}

// StateCodec signs and verifies state blobs with HS256.
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateCodec creates a codec. A zero ttl means blobs never expire.
func NewStateCodec(secret string, ttl time.Duration) *StateCodec {
	return &StateCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Encode returns a signed, URL-safe blob for s.
func (c *StateCodec) Encode(s OrderState) (string, error) {
	now := c.now()
	claims := stateClaims{
		OrderState: s,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   stateIssuer,
			Subject:  s.OrderID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies blob and returns its order state. Any failure is an InvalidState error.
func (c *StateCodec) Decode(blob string) (*OrderState, error) {
	if blob == "" {
		return nil, apperr.InvalidState(errors.New("empty state"))
	}
	var claims stateClaims
	_, err := jwt.ParseWithClaims(blob, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, apperr.InvalidState(err)
	}
	if claims.OrderID == "" || claims.CourseID == "" {
		return nil, apperr.InvalidState(errors.New("state missing order context"))
	}
	s := claims.OrderState
	return &s, nil
}
