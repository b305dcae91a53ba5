package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"kedeaceh/pos/internal/domain"
)

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, email string, password string) error
}

type credential struct {
	password    string
	role        string
	displayName string
	active      bool
	created     time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	// context.Background() is appropriate here because this is a startup
	// operation that runs before any request context exists.
	manager.bootstrapUsers(context.Background())
	return manager
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// TODO: bootstrapUsers is called on every login to pick up users added
	// outside this process. Acceptable for a single-shop deployment but
	// should use a bounded context rather than context.Background().
	a.bootstrapUsers(context.Background())
	email := strings.ToLower(strings.TrimSpace(req.Email))
	a.mu.RLock()
	cred, ok := a.users[email]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	valid := verifyPassword(cred.password, req.Password)
	if !valid {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(email, cred.role, cred.displayName, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		DisplayName: cred.displayName,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Email: sub, Role: claims.Role, DisplayName: claims.DisplayName}, nil
}

func (a *AuthManager) sign(email, role, displayName string, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "kedeaceh",
		},
		Role:        role,
		DisplayName: displayName,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateUser(req domain.UserCreateRequest) (domain.UserInfo, error) {
	// context.Background() is correct here: CreateUser is an owner
	// operation that does not carry a request context through the
	// AuthManager API.
	a.bootstrapUsers(context.Background())
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.UserInfo{}, fmt.Errorf("valid email required")
	}
	if strings.TrimSpace(req.Password) == "" || len(req.Password) < 6 {
		return domain.UserInfo{}, fmt.Errorf("password must be at least 6 characters")
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleKasir
	}
	if role != domain.RoleOwner && role != domain.RoleKasir {
		return domain.UserInfo{}, fmt.Errorf("unknown role %q", role)
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = email[:strings.Index(email, "@")]
	}

	a.mu.RLock()
	_, exists := a.users[email]
	a.mu.RUnlock()
	if exists {
		return domain.UserInfo{}, fmt.Errorf("email already registered")
	}

	now := time.Now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserInfo{}, fmt.Errorf("failed to hash password")
	}

	if a.userStore != nil {
		err := a.userStore.CreateUser(context.Background(), domain.UserAccount{
			Email:       email,
			Password:    passwordHash,
			Role:        role,
			DisplayName: displayName,
			Active:      true,
			CreatedAt:   now,
		})
		if err != nil {
			return domain.UserInfo{}, err
		}
	}

	a.mu.Lock()
	a.users[email] = credential{
		password:    passwordHash,
		role:        role,
		displayName: displayName,
		active:      true,
		created:     now,
	}
	a.mu.Unlock()

	return domain.UserInfo{
		Email:       email,
		Role:        role,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   now,
	}, nil
}

func (a *AuthManager) ListUsers() []domain.UserInfo {
	a.bootstrapUsers(context.Background())
	a.mu.RLock()
	result := make([]domain.UserInfo, 0, len(a.users))
	for email, user := range a.users {
		result = append(result, domain.UserInfo{
			Email:       email,
			Role:        user.role,
			DisplayName: user.displayName,
			Active:      user.active,
			CreatedAt:   user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Email < result[j].Email
	})
	return result
}

// bootstrapUsers loads accounts from the user store into the in-memory
// credential cache. It also upgrades any legacy plain-text passwords to
// bcrypt hashes in the store.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		email := strings.ToLower(strings.TrimSpace(user.Email))
		if email == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, email, hashed)
			}
		}
		a.users[email] = credential{
			password:    password,
			role:        user.Role,
			displayName: user.DisplayName,
			active:      user.Active,
			created:     user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
