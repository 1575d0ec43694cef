package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/pkg/password"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct {
	byID map[string]*model.User
	err  error
}

func (f *fakeUsers) FindByUsernameOrEmail(ctx context.Context, value string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if u.Username == value || u.Email == value {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[id], nil
}

func newFixture(t *testing.T, opts ...Option) (*Issuer, *fakeUsers) {
	t.Helper()
	hasher := password.NewBcrypt(bcrypt.MinCost)
	hash, err := hasher.Hash("secret")
	require.NoError(t, err)
	users := &fakeUsers{byID: map[string]*model.User{
		"u1": {ID: "u1", Username: "alice", Email: "alice@example.com", Password: hash, Role: model.RoleBasic},
	}}
	issuer, err := NewIssuer(users, hasher, "test-secret", 0, opts...)
	require.NoError(t, err)
	return issuer, users
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	_, err := NewIssuer(&fakeUsers{}, password.NewBcrypt(bcrypt.MinCost), "", time.Hour)
	assert.Error(t, err)
}

func TestAuthenticate_ByUsernameAndEmail(t *testing.T) {
	issuer, _ := newFixture(t)

	for _, login := range []string{"alice", "alice@example.com"} {
		res, err := issuer.Authenticate(context.Background(), login, "secret")
		require.NoError(t, err, login)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, "u1", res.User.ID)
		assert.WithinDuration(t, time.Now().Add(DefaultTTL), res.ExpiresAt, time.Minute)
	}
}

func TestAuthenticate_UniformFailure(t *testing.T) {
	issuer, _ := newFixture(t)

	_, errWrongPass := issuer.Authenticate(context.Background(), "alice", "nope")
	_, errUnknown := issuer.Authenticate(context.Background(), "mallory", "secret")

	assert.True(t, errors.Is(errWrongPass, apperr.ErrInvalidCredentials))
	assert.True(t, errors.Is(errUnknown, apperr.ErrInvalidCredentials))
	assert.Equal(t, errWrongPass.Error(), errUnknown.Error())
}

func TestAuthenticate_StoreErrorPropagates(t *testing.T) {
	issuer, users := newFixture(t)
	users.err = errors.New("db down")

	_, err := issuer.Authenticate(context.Background(), "alice", "secret")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestValidate_RoundTrip(t *testing.T) {
	issuer, users := newFixture(t)
	token, _, err := issuer.Issue(users.byID["u1"])
	require.NoError(t, err)

	id, err := issuer.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, model.RoleBasic, id.Role)
}

func TestValidate_RoleComesFromStore(t *testing.T) {
	issuer, users := newFixture(t)
	users.byID["u1"].Role = model.RoleAdmin
	token, _, err := issuer.Issue(users.byID["u1"])
	require.NoError(t, err)

	users.byID["u1"].Role = model.RoleBasic
	id, err := issuer.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleBasic, id.Role)
}

func TestValidate_Rejects(t *testing.T) {
	issuer, users := newFixture(t)
	valid, _, err := issuer.Issue(users.byID["u1"])
	require.NoError(t, err)

	other, err := NewIssuer(users, password.NewBcrypt(bcrypt.MinCost), "other-secret", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue(users.byID["u1"])
	require.NoError(t, err)

	past := time.Now().Add(-10 * time.Hour)
	expiredIssuer, _ := newFixture(t, WithClock(func() time.Time { return past }))
	expired, _, err := expiredIssuer.Issue(users.byID["u1"])
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, customClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	noSubjectToken, err := noSubject.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	ghost, _, err := issuer.Issue(&model.User{ID: "ghost", Role: model.RoleAdmin})
	require.NoError(t, err)

	cases := map[string]string{
		"malformed":    "not-a-token",
		"wrong secret": foreign,
		"expired":      expired,
		"alg none":     unsigned,
		"no subject":   noSubjectToken,
		"missing user": ghost,
		"tampered":     valid[:len(valid)-2] + "xx",
		"empty":        "",
	}
	for name, token := range cases {
		_, err := issuer.Validate(context.Background(), token)
		assert.True(t, errors.Is(err, apperr.ErrInvalidToken), "%s: got %v", name, err)
	}
}
