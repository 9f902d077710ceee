package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventFillsRequestContext(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("User-Agent", "lexvault-cli/1.2")
	r.Header.Set("X-Request-ID", "req-7")

	e := NewEvent(EventTypeAuthLoginFailed, EventStatusFailure, r)
	assert.Equal(t, EventTypeAuthLoginFailed, e.EventType)
	assert.Equal(t, EventStatusFailure, e.Status)
	assert.Equal(t, "203.0.113.9", e.IPAddress)
	assert.Equal(t, "lexvault-cli/1.2", e.UserAgent)
	assert.Equal(t, "req-7", e.RequestID)
	assert.Equal(t, "POST", e.Method)
	assert.Equal(t, "/api/auth/login", e.Path)
	assert.False(t, e.Timestamp.IsZero())
}

func TestNewEventNilRequest(t *testing.T) {
	e := NewEvent(EventTypeGhostExpired, EventStatusSuccess, nil)
	assert.Empty(t, e.Path)
	assert.False(t, e.Timestamp.IsZero())
}

func TestMemoryLogger(t *testing.T) {
	l := NewMemoryLogger()
	require.NoError(t, l.Log(context.Background(), NewEvent(EventTypeAuthLogin, EventStatusSuccess, nil)))
	require.NoError(t, l.Log(context.Background(), NewEvent(EventTypeAuthLogout, EventStatusSuccess, nil)))
	events := l.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeAuthLogin, events[0].EventType)
}

type failingSink struct{}

func (failingSink) Log(context.Context, *Event) error { return errors.New("sink down") }
func (failingSink) Close() error                      { return nil }

func TestMultiLoggerReachesAllSinks(t *testing.T) {
	buf := NewMemoryLogger()
	multi := NewMultiLogger(failingSink{}, buf)

	err := multi.Log(context.Background(), NewEvent(EventTypeAuthzTenantDenied, EventStatusDenied, nil))
	assert.Error(t, err, "first sink error surfaces")
	assert.Len(t, buf.Events(), 1, "later sinks still receive the event")
}

func TestDBLoggerLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS security_events`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO security_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: EventTypeAuthzTenantDenied,
		Status:    EventStatusDenied,
		UserID:    "user-1",
		FirmID:    "firm-1",
		Reason:    "TENANT_ACCESS_DENIED",
	}
	require.NoError(t, logger.Log(context.Background(), event))
	assert.Equal(t, int64(11), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
