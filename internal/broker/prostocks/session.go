package prostocks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/logger"
	"prostocks-dashboard/internal/metrics"
	"prostocks-dashboard/internal/types"
)

// SessionManager owns the QuickAuth handshake and the resulting session
// token. There is exactly one active session per manager; a successful
// login overwrites whatever token was held before.
type SessionManager struct {
	creds types.Credentials
	rc    *restClient

	mu    sync.RWMutex
	token string
}

var _ interfaces.SessionProvider = (*SessionManager)(nil)

func NewSessionManager(creds types.Credentials) *SessionManager {
	return &SessionManager{
		creds: creds,
		rc:    newRESTClient(creds.BaseURL),
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Login performs the hashed-credential handshake: SHA-256 of the plaintext
// password, SHA-256 of "uid|api_key" as the app signing key. Succeeds only
// when the vendor answers stat "Ok" with a token.
func (m *SessionManager) Login(ctx context.Context) (types.Session, error) {
	payload := map[string]string{
		"uid":        m.creds.UserID,
		"pwd":        sha256Hex(m.creds.Password),
		"factor2":    m.creds.Factor2,
		"vc":         m.creds.VendorCode,
		"appkey":     sha256Hex(m.creds.UserID + "|" + m.creds.APIKey),
		"imei":       m.creds.IMEI,
		"apkversion": m.creds.APKVersion,
		"source":     "API",
	}

	body, err := m.rc.postJData(ctx, "/QuickAuth", payload, "")
	if err != nil {
		return types.Session{}, err
	}

	var resp struct {
		Stat       string `json:"stat"`
		SUserToken string `json:"susertoken"`
		EMsg       string `json:"emsg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.Session{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if resp.Stat != "Ok" {
		metrics.LoginsFailed.Inc()
		return types.Session{}, fmt.Errorf("%w: %s", ErrRejected, resp.EMsg)
	}
	if resp.SUserToken == "" {
		return types.Session{}, fmt.Errorf("%w: stat Ok without susertoken", ErrMalformed)
	}

	m.mu.Lock()
	m.token = resp.SUserToken
	m.mu.Unlock()

	metrics.Logins.Inc()
	logger.SessionEvent(ctx, m.creds.UserID, "login")
	return types.Session{Token: resp.SUserToken, UserID: m.creds.UserID}, nil
}

// Token returns the current session token; false before the first
// successful login or after logout.
func (m *SessionManager) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Logout drops the token locally. The vendor invalidates server-side on
// its own schedule.
func (m *SessionManager) Logout() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

// UserID reports the identity this session authenticates.
func (m *SessionManager) UserID() string {
	return m.creds.UserID
}
