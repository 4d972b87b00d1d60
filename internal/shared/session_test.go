package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "shop_session", "secret", time.Hour, false), mr
}

func roundTrip(t *testing.T, sm *SessionManager, sess *Session) *Session {
	t.Helper()
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	return loaded
}

func TestSessionPersistsValuesAndFlashes(t *testing.T) {
	sm, _ := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	sess.SetUser("42")
	sess.Set("theme", "dark")
	sess.AddFlash(FlashMessage{Kind: "success", Message: "Saved"})

	loaded := roundTrip(t, sm, sess)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "42", loaded.User())
	assert.Equal(t, "dark", loaded.Get("theme"))
	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Saved", flash.Message)
	assert.Nil(t, loaded.PopFlash())
}

func TestSessionUnknownCookieStartsFresh(t *testing.T) {
	sm, _ := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "attacker-chosen"})

	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
	assert.Empty(t, sess.User())
}

func TestSessionRenewDropsPreviousKey(t *testing.T) {
	sm, mr := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess = roundTrip(t, sm, sess)
	oldID := sess.ID
	require.True(t, mr.Exists("session:"+oldID))

	sm.Renew(sess)
	sess.SetUser("7")
	loaded := roundTrip(t, sm, sess)

	assert.NotEqual(t, oldID, loaded.ID)
	assert.Equal(t, "7", loaded.User())
	assert.False(t, mr.Exists("session:"+oldID))
}

func TestSessionDestroyRemovesKeyAndCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess = roundTrip(t, sm, sess)

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	assert.False(t, mr.Exists("session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestSessionJSONValues(t *testing.T) {
	sm, _ := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, sess.SetJSON("profile", payload{Name: "Ada"}))

	var out payload
	ok, err := sess.GetJSON("profile", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ada", out.Name)

	ok, err = sess.GetJSON("missing", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newTestManager(t)
	csrf := NewCSRFManager("csrf-secret")
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, token+"x"), ErrCSRFTokenMismatch)

	sm.Renew(sess)
	rotated, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, rotated)
}

type friendlyErr struct{ msg string }

func (e friendlyErr) Error() string       { return "internal: " + e.msg }
func (e friendlyErr) UserMessage() string { return e.msg }

func TestUserSafeMessage(t *testing.T) {
	assert.Equal(t, "Email already taken", UserSafeMessage(fmt.Errorf("register: %w", friendlyErr{msg: "Email already taken"}), "fallback"))
	assert.Equal(t, "fallback", UserSafeMessage(errors.New("dial tcp: refused"), "fallback"))
}
