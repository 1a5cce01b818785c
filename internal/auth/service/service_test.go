package service

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/internal/auth/session"
	"github.com/aussiebroadwan/authflow/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/authflow/internal/auth/wire"
	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"github.com/aussiebroadwan/authflow/pkg/authsdk/authsdktest"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv      *authsdktest.Server
	client   *authsdk.Client
	sessions *session.Store
	account  *AccountService
	recovery *RecoveryService
}

// newFixture returns services over a fake API with a signed-in user whose
// cookies are held by the client. Session expiry clears the store, as the
// application wires it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{srv: authsdktest.NewServer(t)}
	f.srv.Handle(http.MethodPost, authsdk.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		f.srv.StartSession(w)
		authsdktest.LoginOK(w, authsdktest.SampleUser())
	})

	f.client = f.srv.Client()
	f.sessions = session.NewStore(memory.NewStore(), session.Options{Logger: slogx.Discard()})
	require.NoError(t, f.sessions.Hydrate(ctx))
	f.client.OnSessionExpired = func(ctx context.Context) { _ = f.sessions.Clear(ctx) }

	res, err := f.client.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.sessions.SetAuthenticated(ctx, wire.Profile(*res.User)))

	f.account = &AccountService{API: f.client, Sessions: f.sessions, Logger: slogx.Discard()}
	f.recovery = &RecoveryService{API: f.client, Sessions: f.sessions, Logger: slogx.Discard()}
	return f
}

func TestTerminateSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		call   func(*AccountService, context.Context) error
		// keepsOnFailure is set when a failed call leaves the user signed in.
		keepsOnFailure bool
	}{
		{"logout", http.MethodPost, authsdk.PathLogout, (*AccountService).Logout, false},
		{"logout all", http.MethodPost, authsdk.PathLogoutAll, (*AccountService).LogoutAll, false},
		{"delete account", http.MethodDelete, authsdk.PathDeleteAccount, (*AccountService).DeleteAccount, true},
	}

	for _, tt := range tests {
		t.Run(tt.name+" succeeds", func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.srv.Handle(tt.method, tt.path, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
				authsdktest.Message(w, http.StatusOK, "done")
			}))

			require.NoError(t, tt.call(f.account, context.Background()))
			require.False(t, f.sessions.Authenticated())
			require.Equal(t, 1, f.srv.Hits(tt.method, tt.path))
		})

		t.Run(tt.name+" fails on server", func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.srv.Handle(tt.method, tt.path, func(w http.ResponseWriter, r *http.Request) {
				authsdktest.Message(w, http.StatusInternalServerError, "database down")
			})

			err := tt.call(f.account, context.Background())
			require.Equal(t, domain.KindServer, domain.KindOf(err))
			require.Equal(t, tt.keepsOnFailure, f.sessions.Authenticated())
		})
	}
}

func TestDeleteAccountRejectedKeepsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodDelete, authsdk.PathDeleteAccount, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		authsdktest.Message(w, http.StatusForbidden, "account has active subscription")
	}))
	before, ok := f.sessions.User()
	require.True(t, ok)

	err := f.account.DeleteAccount(context.Background())
	require.Equal(t, domain.KindAuthFailure, domain.KindOf(err))
	require.Equal(t, "account has active subscription", domain.Message(err))

	require.True(t, f.sessions.Authenticated())
	after, ok := f.sessions.User()
	require.True(t, ok)
	require.Equal(t, before, after)
	require.Equal(t, 1, f.srv.Hits(http.MethodDelete, authsdk.PathDeleteAccount))
}

func TestLogoutWithExpiredSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodPost, authsdk.PathLogout, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		authsdktest.Message(w, http.StatusOK, "done")
	}))
	f.srv.ExpireAccess()
	f.srv.FailRefresh()

	require.NoError(t, f.account.Logout(context.Background()))
	require.False(t, f.sessions.Authenticated())
}

func TestDeleteAccountWithExpiredSessionReportsIt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodDelete, authsdk.PathDeleteAccount, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		authsdktest.Message(w, http.StatusOK, "deleted")
	}))
	f.srv.ExpireAccess()
	f.srv.FailRefresh()

	err := f.account.DeleteAccount(context.Background())
	require.ErrorIs(t, err, authsdk.ErrSessionExpired)
	require.False(t, f.sessions.Authenticated())
}

func TestRefreshProfileMergesServerUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodGet, authsdk.PathProfile, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		u := authsdktest.SampleUser()
		u.Name = "Ada King"
		u.TwoFactorEnabled = true
		authsdktest.UserOK(w, u)
	}))

	profile, err := f.account.RefreshProfile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Ada King", profile.Name)
	require.True(t, profile.TwoFactorEnabled)

	stored, ok := f.sessions.User()
	require.True(t, ok)
	require.Equal(t, profile, stored)
}

func TestRefreshProfileAfterUserSwitch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	other := domain.UserProfile{ID: "01J0000000000000000000OTHER", Name: "Grace Hopper", Username: "grace", Email: "grace@example.com"}

	// The signed-in user changes while the profile request is in flight.
	var switchErr error
	f.srv.Handle(http.MethodGet, authsdk.PathProfile, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		switchErr = f.sessions.SetAuthenticated(ctx, other)
		u := authsdktest.SampleUser()
		u.Name = "Ada King"
		authsdktest.UserOK(w, u)
	}))

	profile, err := f.account.RefreshProfile(ctx)
	require.NoError(t, err)
	require.NoError(t, switchErr)
	require.Equal(t, other, profile)

	stored, ok := f.sessions.User()
	require.True(t, ok)
	require.Equal(t, other, stored)
}

func TestRefreshProfileAfterLogout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	var clearErr error
	f.srv.Handle(http.MethodGet, authsdk.PathProfile, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		clearErr = f.sessions.Clear(ctx)
		authsdktest.UserOK(w, authsdktest.SampleUser())
	}))

	_, err := f.account.RefreshProfile(ctx)
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	require.NoError(t, clearErr)
	require.Equal(t, domain.Session{}, f.sessions.Snapshot())
}

func TestRefreshFailureDuringProfileFetch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodGet, authsdk.PathProfile, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		authsdktest.UserOK(w, authsdktest.SampleUser())
	}))
	f.srv.ExpireAccess()
	f.srv.FailRefresh()

	_, err := f.account.RefreshProfile(context.Background())
	require.ErrorIs(t, err, authsdk.ErrSessionExpired)
	require.Equal(t, domain.KindSessionExpired, domain.KindOf(err))

	// The caller sees the profile failure, not the refresh failure.
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "jwt expired", apiErr.Message)

	require.Equal(t, domain.Session{}, f.sessions.Snapshot())
}

func TestRequiresSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.sessions.Clear(context.Background()))

	_, err := f.account.RefreshProfile(context.Background())
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
	require.ErrorIs(t, f.account.ChangePassword(context.Background(), "secret1", "secret2"), domain.ErrNotAuthenticated)
	require.Zero(t, f.srv.Hits(http.MethodGet, authsdk.PathProfile))
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodPut, authsdk.PathUpdateProfile, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		var upd authsdk.ProfileUpdate
		require.NoError(t, authsdktest.Decode(r, &upd))
		u := authsdktest.SampleUser()
		if upd.Email != nil {
			u.Email = *upd.Email
		}
		authsdktest.UserOK(w, u)
	}))

	bad := "not-an-email"
	_, err := f.account.UpdateProfile(context.Background(), authsdk.ProfileUpdate{Email: &bad})
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
	require.Zero(t, f.srv.Hits(http.MethodPut, authsdk.PathUpdateProfile))

	good := " Ada.King@Example.com "
	profile, err := f.account.UpdateProfile(context.Background(), authsdk.ProfileUpdate{Email: &good})
	require.NoError(t, err)
	require.Equal(t, "ada.king@example.com", profile.Email)
	require.True(t, f.sessions.Authenticated())
}

func TestProfilePicture(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodPut, authsdk.PathUpdateProfilePic, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("profilePic")
		require.NoError(t, err)
		u := authsdktest.SampleUser()
		u.ProfilePic = "https://cdn.example.com/" + header.Filename
		authsdktest.UserOK(w, u)
	}))
	f.srv.Handle(http.MethodDelete, authsdk.PathDeleteProfilePic, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		u := authsdktest.SampleUser()
		u.ProfilePic = ""
		authsdktest.UserOK(w, u)
	}))

	profile, err := f.account.UploadProfilePic(context.Background(), "me.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/me.png", profile.AvatarURL)

	profile, err = f.account.DeleteProfilePic(context.Background())
	require.NoError(t, err)
	require.Empty(t, profile.AvatarURL)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodPost, authsdk.PathChangePassword, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		authsdktest.Message(w, http.StatusOK, "Password changed")
	}))

	ctx := context.Background()
	for _, tc := range []struct{ current, next string }{
		{"", "secret2"},
		{"secret1", "short"},
		{"secret1", "secret1"},
	} {
		err := f.account.ChangePassword(ctx, tc.current, tc.next)
		require.Equal(t, domain.KindValidation, domain.KindOf(err), "%+v", tc)
	}
	require.Zero(t, f.srv.Hits(http.MethodPost, authsdk.PathChangePassword))

	require.NoError(t, f.account.ChangePassword(ctx, "secret1", "secret2"))
	bodies := f.srv.Bodies(http.MethodPost, authsdk.PathChangePassword)
	require.Len(t, bodies, 1)
	require.JSONEq(t, `{"currentPassword":"secret1","newPassword":"secret2"}`, bodies[0])
}

func TestSignUp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodPost, authsdk.PathSignUp, func(w http.ResponseWriter, r *http.Request) {
		authsdktest.Message(w, http.StatusCreated, "Check your inbox")
	})

	valid := authsdk.SignUpRequest{
		Name:            "Grace Hopper",
		Username:        "grace",
		Password:        "cobol1959",
		ConfirmPassword: "cobol1959",
		Email:           " Grace@Example.com",
		Phone:           "+61400000001",
	}

	invalid := []func(*authsdk.SignUpRequest){
		func(r *authsdk.SignUpRequest) { r.Name = "" },
		func(r *authsdk.SignUpRequest) { r.Username = " " },
		func(r *authsdk.SignUpRequest) { r.Email = "grace" },
		func(r *authsdk.SignUpRequest) { r.Password, r.ConfirmPassword = "abc", "abc" },
		func(r *authsdk.SignUpRequest) { r.ConfirmPassword = "cobol1960" },
		func(r *authsdk.SignUpRequest) { r.Phone = "" },
	}
	for i, mutate := range invalid {
		req := valid
		mutate(&req)
		_, err := f.recovery.SignUp(context.Background(), req)
		require.Equal(t, domain.KindValidation, domain.KindOf(err), "case %d", i)
	}
	require.Zero(t, f.srv.Hits(http.MethodPost, authsdk.PathSignUp))

	msg, err := f.recovery.SignUp(context.Background(), valid)
	require.NoError(t, err)
	require.Equal(t, "Check your inbox", msg)
	require.Contains(t, f.srv.Bodies(http.MethodPost, authsdk.PathSignUp)[0], `"email":"grace@example.com"`)
}

func TestResetPassword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodGet, authsdk.PathValidateResetToken, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/good-token") {
			authsdktest.Message(w, http.StatusBadRequest, "Invalid or expired reset link.")
			return
		}
		authsdktest.Message(w, http.StatusOK, "valid")
	})
	f.srv.Handle(http.MethodPost, authsdk.PathResetPassword, func(w http.ResponseWriter, r *http.Request) {
		authsdktest.Message(w, http.StatusOK, "Password reset")
	})

	ctx := context.Background()

	err := f.recovery.ResetPassword(ctx, "good-token", "newpass1", "newpass2")
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	err = f.recovery.ResetPassword(ctx, "bad-token", "newpass1", "newpass1")
	require.Equal(t, domain.KindAuthFailure, domain.KindOf(err))
	require.Zero(t, f.srv.Hits(http.MethodPost, authsdk.PathResetPassword), "an invalid token never reaches the reset call")

	require.NoError(t, f.recovery.ResetPassword(ctx, "good-token", "newpass1", "newpass1"))
	require.JSONEq(t,
		`{"resetToken":"good-token","newPassword":"newpass1","confirmPassword":"newpass1"}`,
		f.srv.Bodies(http.MethodPost, authsdk.PathResetPassword)[0])
}

func TestForgotPassword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodPost, authsdk.PathForgotPassword, func(w http.ResponseWriter, r *http.Request) {
		authsdktest.Message(w, http.StatusOK, "sent")
	})

	require.Equal(t, domain.KindValidation, domain.KindOf(f.recovery.ForgotPassword(context.Background(), "nope")))
	require.NoError(t, f.recovery.ForgotPassword(context.Background(), "ADA@example.com"))
	require.JSONEq(t, `{"email":"ada@example.com"}`, f.srv.Bodies(http.MethodPost, authsdk.PathForgotPassword)[0])
}

func verifyHandler(ok bool, gate <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gate != nil {
			<-gate
		}
		if !ok {
			authsdktest.Message(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}
		authsdktest.JSON(w, http.StatusOK, map[string]any{
			"message": "Email verified",
			"data":    map[string]any{"emailVerified": true},
		})
	}
}

func TestVerifyEmailIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.sessions.UpdateProfile(ctx, domain.SetEmailVerified(false)))
	f.srv.Handle(http.MethodPost, authsdk.PathVerifyEmail, verifyHandler(true, nil))

	res, err := f.recovery.VerifyEmail(ctx, "mail-token")
	require.NoError(t, err)
	require.True(t, res.EmailVerified)

	again, err := f.recovery.VerifyEmail(ctx, "mail-token")
	require.NoError(t, err)
	require.Equal(t, res, again)
	require.Equal(t, 1, f.srv.Hits(http.MethodPost, authsdk.PathVerifyEmail))

	u, _ := f.sessions.User()
	require.True(t, u.EmailVerified)
}

func TestVerifyEmailConcurrentCallsShareOneRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	gate := make(chan struct{})
	f.srv.Handle(http.MethodPost, authsdk.PathVerifyEmail, verifyHandler(true, gate))

	const n = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.recovery.VerifyEmail(context.Background(), "mail-token"); err == nil {
				succeeded.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool {
		return f.srv.Hits(http.MethodPost, authsdk.PathVerifyEmail) == 1
	}, time.Second, 5*time.Millisecond)
	// Let the stragglers join the in-flight call before it completes.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, int32(n), succeeded.Load())
	require.Equal(t, 1, f.srv.Hits(http.MethodPost, authsdk.PathVerifyEmail))
}

func TestVerifyEmailRemembersRejection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodPost, authsdk.PathVerifyEmail, verifyHandler(false, nil))

	_, err := f.recovery.VerifyEmail(context.Background(), "stale-token")
	require.Equal(t, domain.KindAuthFailure, domain.KindOf(err))
	_, err = f.recovery.VerifyEmail(context.Background(), "stale-token")
	require.Equal(t, domain.KindAuthFailure, domain.KindOf(err))
	require.Equal(t, 1, f.srv.Hits(http.MethodPost, authsdk.PathVerifyEmail))

	// A different token is a different operation.
	_, _ = f.recovery.VerifyEmail(context.Background(), "other-token")
	require.Equal(t, 2, f.srv.Hits(http.MethodPost, authsdk.PathVerifyEmail))
}

func TestVerifyEmailTransportErrorIsRetryable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Close()

	_, err := f.recovery.VerifyEmail(context.Background(), "mail-token")
	require.Equal(t, domain.KindTransport, domain.KindOf(err))

	f.recovery.mu.Lock()
	defer f.recovery.mu.Unlock()
	require.Empty(t, f.recovery.verified)
}

func TestKeepAliveRefreshesProfile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.srv.Handle(http.MethodGet, authsdk.PathProfile, f.srv.Authed(func(w http.ResponseWriter, r *http.Request) {
		u := authsdktest.SampleUser()
		u.Name = "Refreshed"
		authsdktest.UserOK(w, u)
	}))

	keeper := NewKeepAliveService(f.account, slogx.Discard(), 10*time.Millisecond)
	keeper.Start()
	defer keeper.Stop()

	require.Eventually(t, func() bool {
		u, ok := f.sessions.User()
		return ok && u.Name == "Refreshed"
	}, time.Second, 5*time.Millisecond)
}

func TestKeepAliveIdleWithoutSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.sessions.Clear(context.Background()))

	keeper := NewKeepAliveService(f.account, slogx.Discard(), 5*time.Millisecond)
	keeper.Start()
	time.Sleep(30 * time.Millisecond)
	keeper.Stop()

	require.Zero(t, f.srv.Hits(http.MethodGet, authsdk.PathProfile))
}
