package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
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
	return NewSessionManager(client, "sid", "secret", time.Hour, false), mr
}

func roundTrip(t *testing.T, sm *SessionManager, cookie *http.Cookie, fn func(*Session)) (*Session, *http.Cookie) {
	t.Helper()
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	if fn != nil {
		fn(sess)
	}
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, req, sess))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return sess, cookies[0]
}

func TestSessionPersistsValuesAndFlashes(t *testing.T) {
	sm, mr := newTestManager(t)

	first, cookie := roundTrip(t, sm, nil, func(s *Session) {
		s.Set(CSRFSessionKey, "tok")
		s.AddFlash(FlashMessage{Kind: "success", Message: "Imported"})
	})
	assert.True(t, strings.HasPrefix(cookie.Value, first.ID+"."))
	assert.True(t, mr.Exists("stockroom:session:"+first.ID))
	ttl := mr.TTL("stockroom:session:" + first.ID)
	assert.Equal(t, time.Hour, ttl)

	second, _ := roundTrip(t, sm, cookie, func(s *Session) {
		assert.Equal(t, "tok", s.Get(CSRFSessionKey))
		flash := s.PopFlash()
		require.NotNil(t, flash)
		assert.Equal(t, "Imported", flash.Message)
		assert.Nil(t, s.PopFlash())
	})
	assert.Equal(t, first.ID, second.ID)

	roundTrip(t, sm, cookie, func(s *Session) {
		assert.Nil(t, s.PopFlash())
	})
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	sm, _ := newTestManager(t)
	first, cookie := roundTrip(t, sm, nil, nil)

	forged := &http.Cookie{Name: "sid", Value: "someone-else." + strings.SplitN(cookie.Value, ".", 2)[1]}
	sess, _ := roundTrip(t, sm, forged, nil)
	assert.NotEqual(t, "someone-else", sess.ID)
	assert.NotEqual(t, first.ID, sess.ID)
}

func TestSessionDestroy(t *testing.T) {
	sm, mr := newTestManager(t)
	first, cookie := roundTrip(t, sm, nil, nil)

	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sm.Destroy(sess)
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, req, sess))

	assert.False(t, mr.Exists("stockroom:session:"+first.ID))
	assert.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)
}

func TestSessionCorruptPayload(t *testing.T) {
	sm, mr := newTestManager(t)
	first, cookie := roundTrip(t, sm, nil, nil)
	require.NoError(t, mr.Set("stockroom:session:"+first.ID, "{not json"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	_, err := sm.Load(context.Background(), req)
	assert.ErrorIs(t, err, ErrSessionCorrupt)
}

func TestCSRFManager(t *testing.T) {
	m := NewCSRFManager("k")
	sess := &Session{ID: "abc"}

	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, m.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, token+"x"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), &Session{ID: "other"}, token), ErrCSRFTokenMissing)

	_, err = m.EnsureToken(context.Background(), nil)
	assert.Error(t, err)
}
