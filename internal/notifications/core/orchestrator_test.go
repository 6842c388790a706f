package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certsentry/internal/types"
)

type mockChannelRepo struct {
	channels map[string]*types.ChannelInstance
	params   map[string]map[string]string
	secrets  map[string]map[string]string
}

func (m *mockChannelRepo) GetChannel(_ context.Context, id string) (*types.ChannelInstance, error) {
	ch, ok := m.channels[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundChannel, "channel not found", nil)
	}
	return ch, nil
}

func (m *mockChannelRepo) GetChannelParams(_ context.Context, id string) (map[string]string, error) {
	return m.params[id], nil
}

func (m *mockChannelRepo) GetChannelSecrets(_ context.Context, id string) (map[string]string, error) {
	return m.secrets[id], nil
}

type mockAudit struct {
	mu      sync.Mutex
	entries []*types.AuditEntry
	err     error
}

func (m *mockAudit) Record(_ context.Context, entry *types.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

// mockDispatcher counts deliveries and fails for channel IDs in failFor.
type mockDispatcher struct {
	channelType types.ChannelType

	mu      sync.Mutex
	calls   map[string]int
	failFor map[string]error
	secrets map[string]types.SecretString
}

func newMockDispatcher(t types.ChannelType) *mockDispatcher {
	return &mockDispatcher{
		channelType: t,
		calls:       make(map[string]int),
		failFor:     make(map[string]error),
	}
}

func (m *mockDispatcher) Type() types.ChannelType { return m.channelType }

func (m *mockDispatcher) Deliver(_ context.Context, ch *types.ChannelInstance, _ map[string]string, secrets map[string]types.SecretString, _ *types.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[ch.ID]++
	m.secrets = secrets
	if err, ok := m.failFor[ch.ID]; ok {
		return "", err
	}
	return fmt.Sprintf("dest-%s", ch.ID), nil
}

// prefixCipher "decrypts" by stripping an enc: prefix, failing otherwise.
type prefixCipher struct{}

func (prefixCipher) Decrypt(ciphertext string) (types.SecretString, error) {
	plain, ok := strings.CutPrefix(ciphertext, "enc:")
	if !ok {
		return "", errors.New("authentication failed")
	}
	return types.SecretString(plain), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type nopLogger struct{}

func (nopLogger) Info(string, ...any)      {}
func (nopLogger) Error(string, ...any)     {}
func (nopLogger) Warn(string, ...any)      {}
func (nopLogger) With(...any) types.Logger { return nopLogger{} }

func enabledChannel(id string, ct types.ChannelType) *types.ChannelInstance {
	return &types.ChannelInstance{ID: id, Name: "ch-" + id, Type: ct, Enabled: true}
}

func testCert(channelIDs ...string) *types.Certificate {
	return &types.Certificate{
		ID:           "cert-1",
		Name:         "api.example.com",
		ExpiresAt:    "2026-09-06",
		OwnerEmails:  "ops@example.com",
		AlertModelID: "model-1",
		ChannelIDs:   channelIDs,
	}
}

func testModel() *types.AlertModel {
	return &types.AlertModel{
		ID:              "model-1",
		Name:            "expiry-14d",
		TemplateSubject: "{{name}} expires in {{days_left}} days",
		TemplateBody:    "Renew before {{expires_at}}",
	}
}

func newTestOrchestrator(repo *mockChannelRepo, audit *mockAudit, dispatchers ...types.ChannelDispatcher) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		Channels: repo,
		Registry: NewRegistry(dispatchers...),
		Cipher:   prefixCipher{},
		Audit:    audit,
		Clock:    fixedClock{t: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
		Logger:   nopLogger{},
	})
}

func TestSendAlertsNoChannelsIsNoop(t *testing.T) {
	audit := &mockAudit{}
	o := newTestOrchestrator(&mockChannelRepo{}, audit)

	err := o.SendAlerts(context.Background(), testCert(), testModel(), 14, "scheduler")

	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, types.AuditNotificationSkipped, audit.entries[0].Action)
	assert.Contains(t, audit.entries[0].Note, "no channels linked")
	assert.Contains(t, audit.entries[0].Note, "alert_model=expiry-14d")
	assert.Contains(t, audit.entries[0].Note, "days_left=14")
}

func TestSendAlertsSingleChannelSuccess(t *testing.T) {
	disp := newMockDispatcher(types.ChannelSlackWebhook)
	repo := &mockChannelRepo{
		channels: map[string]*types.ChannelInstance{
			"c1": enabledChannel("c1", types.ChannelSlackWebhook),
		},
		secrets: map[string]map[string]string{
			"c1": {"webhook_url": "enc:https://hooks.slack.com/x"},
		},
	}
	audit := &mockAudit{}
	o := newTestOrchestrator(repo, audit, disp)

	err := o.SendAlerts(context.Background(), testCert("c1"), testModel(), 14, "scheduler")

	require.NoError(t, err)
	assert.Equal(t, 1, disp.calls["c1"])
	// Secrets arrive decrypted.
	assert.Equal(t, "https://hooks.slack.com/x", disp.secrets["webhook_url"].Unmask())

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, types.AuditNotificationSent, entry.Action)
	assert.Equal(t, "scheduler", entry.Actor)
	assert.Equal(t, "certificate", entry.Entity)
	assert.Equal(t, "cert-1", entry.EntityID)
	assert.Contains(t, entry.Note, "sent=[ch-c1->dest-c1]")
	assert.Contains(t, entry.Note, "failed=[]")
}

func TestSendAlertsDeduplicatesChannels(t *testing.T) {
	disp := newMockDispatcher(types.ChannelSlackWebhook)
	repo := &mockChannelRepo{
		channels: map[string]*types.ChannelInstance{
			"c1": enabledChannel("c1", types.ChannelSlackWebhook),
			"c2": enabledChannel("c2", types.ChannelSlackWebhook),
		},
	}
	audit := &mockAudit{}
	o := newTestOrchestrator(repo, audit, disp)

	err := o.SendAlerts(context.Background(), testCert("c1", "c1", "c2"), testModel(), 7, "scheduler")

	require.NoError(t, err)
	assert.Equal(t, 1, disp.calls["c1"])
	assert.Equal(t, 1, disp.calls["c2"])
	require.Len(t, audit.entries, 1)
}

func TestSendAlertsPartialFailureStillSucceeds(t *testing.T) {
	disp := newMockDispatcher(types.ChannelTelegramBot)
	disp.failFor["c1"] = errors.New("chat not found")
	disp.failFor["c2"] = errors.New("connection timeout")
	repo := &mockChannelRepo{
		channels: map[string]*types.ChannelInstance{
			"c1": enabledChannel("c1", types.ChannelTelegramBot),
			"c2": enabledChannel("c2", types.ChannelTelegramBot),
			"c3": enabledChannel("c3", types.ChannelTelegramBot),
		},
	}
	audit := &mockAudit{}
	o := newTestOrchestrator(repo, audit, disp)

	err := o.SendAlerts(context.Background(), testCert("c1", "c2", "c3"), testModel(), 0, "scheduler")

	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	note := audit.entries[0].Note
	assert.Contains(t, note, "sent=[ch-c3->dest-c3]")
	assert.Contains(t, note, "ch-c1: chat not found")
	assert.Contains(t, note, "ch-c2: connection timeout")
}

func TestSendAlertsAllChannelsFailed(t *testing.T) {
	disp := newMockDispatcher(types.ChannelSlackWebhook)
	disp.failFor["c1"] = errors.New("webhook returned 404")
	repo := &mockChannelRepo{
		channels: map[string]*types.ChannelInstance{
			"c1": enabledChannel("c1", types.ChannelSlackWebhook),
		},
	}
	audit := &mockAudit{}
	o := newTestOrchestrator(repo, audit, disp)

	err := o.SendAlerts(context.Background(), testCert("c1"), testModel(), 3, "scheduler")

	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDispatchAllFailed, appErr.Code)
	assert.Contains(t, err.Error(), "webhook returned 404")

	// The audit entry is written even when the call fails.
	require.Len(t, audit.entries, 1)
	assert.Equal(t, types.AuditNotificationSent, audit.entries[0].Action)
}

func TestSendAlertsDisabledChannelCountsAsFailure(t *testing.T) {
	disp := newMockDispatcher(types.ChannelSlackWebhook)
	disabled := enabledChannel("c1", types.ChannelSlackWebhook)
	disabled.Enabled = false
	repo := &mockChannelRepo{
		channels: map[string]*types.ChannelInstance{"c1": disabled},
	}
	audit := &mockAudit{}
	o := newTestOrchestrator(repo, audit, disp)

	err := o.SendAlerts(context.Background(), testCert("c1"), testModel(), 3, "scheduler")

	require.Error(t, err)
	assert.Zero(t, disp.calls["c1"])
	require.Len(t, audit.entries, 1)
	assert.Contains(t, audit.entries[0].Note, "channel is disabled")
}

func TestSendAlertsSoftDeletedChannelCountsAsFailure(t *testing.T) {
	disp := newMockDispatcher(types.ChannelSlackWebhook)
	deleted := enabledChannel("c1", types.ChannelSlackWebhook)
	deletedAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	deleted.DeletedAt = &deletedAt
	repo := &mockChannelRepo{
		channels: map[string]*types.ChannelInstance{"c1": deleted},
	}
	o := newTestOrchestrator(repo, &mockAudit{}, disp)

	err := o.SendAlerts(context.Background(), testCert("c1"), testModel(), 3, "scheduler")

	require.Error(t, err)
	assert.Zero(t, disp.calls["c1"])
}

func TestSendAlertsUnknownChannelTypeFails(t *testing.T) {
	repo := &mockChannelRepo{
		channels: map[string]*types.ChannelInstance{
			"c1": enabledChannel("c1", types.ChannelSlackWebhook),
		},
	}
	audit := &mockAudit{}
	// Registry has no slack dispatcher registered.
	o := newTestOrchestrator(repo, audit, newMockDispatcher(types.ChannelTelegramBot))

	err := o.SendAlerts(context.Background(), testCert("c1"), testModel(), 3, "scheduler")

	require.Error(t, err)
	require.Len(t, audit.entries, 1)
	assert.Contains(t, audit.entries[0].Note, "unsupported channel type")
}

func TestSendAlertsDecryptFailureDoesNotLeakCiphertext(t *testing.T) {
	disp := newMockDispatcher(types.ChannelSlackWebhook)
	repo := &mockChannelRepo{
		channels: map[string]*types.ChannelInstance{
			"c1": enabledChannel("c1", types.ChannelSlackWebhook),
		},
		secrets: map[string]map[string]string{
			"c1": {"webhook_url": "corrupted-ciphertext-value"},
		},
	}
	audit := &mockAudit{}
	o := newTestOrchestrator(repo, audit, disp)

	err := o.SendAlerts(context.Background(), testCert("c1"), testModel(), 3, "scheduler")

	require.Error(t, err)
	assert.Zero(t, disp.calls["c1"])
	assert.NotContains(t, err.Error(), "corrupted-ciphertext-value")
	require.Len(t, audit.entries, 1)
	assert.NotContains(t, audit.entries[0].Note, "corrupted-ciphertext-value")
}

func TestSendAlertsWithoutClockStampsAuditEntries(t *testing.T) {
	audit := &mockAudit{}
	o := NewOrchestrator(OrchestratorConfig{
		Channels: &mockChannelRepo{},
		Registry: NewRegistry(),
		Cipher:   prefixCipher{},
		Audit:    audit,
		Logger:   nopLogger{},
	})

	err := o.SendAlerts(context.Background(), testCert(), testModel(), 14, "scheduler")

	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	assert.False(t, audit.entries[0].CreatedAt.IsZero())
}

func TestSendAlertsAuditFailureIsSwallowed(t *testing.T) {
	disp := newMockDispatcher(types.ChannelSlackWebhook)
	repo := &mockChannelRepo{
		channels: map[string]*types.ChannelInstance{
			"c1": enabledChannel("c1", types.ChannelSlackWebhook),
		},
	}
	audit := &mockAudit{err: errors.New("db down")}
	o := newTestOrchestrator(repo, audit, disp)

	err := o.SendAlerts(context.Background(), testCert("c1"), testModel(), 3, "scheduler")

	require.NoError(t, err)
	assert.Equal(t, 1, disp.calls["c1"])
}
