package direct

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"lumigram/internal/gateway"
)

// account is a credentials row. Profiles live in the profiles table and are
// provisioned by the session store; accounts only carry what auth needs.
type account struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// Auth implements gateway.Authenticator against the local accounts table,
// issuing HS256 access tokens.
type Auth struct {
	db     *sqlx.DB
	secret []byte
	maxAge time.Duration

	mu      sync.RWMutex
	session *gateway.Session
	subs    []func(*gateway.Session)
}

func NewAuth(db *sqlx.DB, jwtSecret string, accessTokenMaxAge time.Duration) *Auth {
	return &Auth{
		db:     db,
		secret: []byte(jwtSecret),
		maxAge: accessTokenMaxAge,
	}
}

// CurrentSession returns the held session, or (nil, nil) when signed out or
// expired.
func (a *Auth) CurrentSession(ctx context.Context) (*gateway.Session, error) {
	a.mu.RLock()
	s := a.session
	a.mu.RUnlock()
	if s == nil || s.Expired() {
		return nil, nil
	}
	return s, nil
}

// SignIn verifies credentials and issues a session. The error does not reveal
// whether the email exists.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*gateway.Session, error) {
	var acc account
	err := a.db.GetContext(ctx, &acc,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: invalid credentials", gateway.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("look up account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: invalid credentials", gateway.ErrUnauthorized)
	}

	session, err := a.issueSession(acc.ID, acc.Email)
	if err != nil {
		return nil, err
	}
	a.setSession(session)
	return session, nil
}

// SignUp creates an account and signs it in.
func (a *Auth) SignUp(ctx context.Context, email, password string) (*gateway.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash) VALUES ($1, $2, $3)`, id, email, string(hash))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: email already registered", gateway.ErrConflict)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	session, err := a.issueSession(id, email)
	if err != nil {
		return nil, err
	}
	a.setSession(session)
	return session, nil
}

// SignOut clears the held session. There is nothing to revoke server-side;
// tokens simply expire.
func (a *Auth) SignOut(ctx context.Context) error {
	a.setSession(nil)
	return nil
}

// OnChange registers a callback fired on sign-in and sign-out.
func (a *Auth) OnChange(fn func(*gateway.Session)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, fn)
}

func (a *Auth) issueSession(userID, email string) (*gateway.Session, error) {
	expiresAt := time.Now().Add(a.maxAge)
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &gateway.Session{
		UserID:      userID,
		Email:       email,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// ParseToken validates an access token issued by this Auth and rebuilds the
// session it describes. Used to restore a persisted session across runs.
func (a *Auth) ParseToken(tokenString string) (*gateway.Session, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", gateway.ErrUnauthorized)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", gateway.ErrUnauthorized)
	}
	email, _ := claims["email"].(string)

	session := &gateway.Session{UserID: sub, Email: email, AccessToken: tokenString}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		session.ExpiresAt = exp.Time
	}
	return session, nil
}

// RestoreSession adopts a previously issued token after validating it.
func (a *Auth) RestoreSession(tokenString string) error {
	session, err := a.ParseToken(tokenString)
	if err != nil {
		return err
	}
	if session.Expired() {
		return fmt.Errorf("%w: token expired", gateway.ErrUnauthorized)
	}
	a.setSession(session)
	return nil
}

func (a *Auth) setSession(s *gateway.Session) {
	a.mu.Lock()
	a.session = s
	subs := make([]func(*gateway.Session), len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
