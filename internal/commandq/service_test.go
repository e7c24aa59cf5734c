package commandq

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sprout/config"
	"sprout/internal/cmdschema"
	"sprout/internal/faults"
	"sprout/internal/models"
	"sprout/internal/presence"
	"sprout/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testAccount = "acct-1"
	otherAcct   = "acct-2"
	testDevice  = "dev-1"
	testSecret  = "key-dev-1"
)

type memBus struct {
	mu   sync.Mutex
	msgs []string
}

func (b *memBus) Publish(topic string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, topic)
}
func (b *memBus) Close() {}

func (b *memBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.msgs...)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// single connection keeps the shared in-memory DB alive and serializes access
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(
		&models.Device{}, &models.Zone{}, &models.ApiCredential{},
		&models.Command{}, &models.CommandAudit{},
		&models.SensorReading{}, &models.FreshnessCache{}, &models.Alert{},
	))
	return gdb
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *memBus) {
	t.Helper()
	gdb := openTestDB(t)
	require.NoError(t, gdb.Create(&models.Device{UUID: testDevice, AccountID: testAccount, Name: "garden-esp32"}).Error)
	require.NoError(t, gdb.Create(&models.ApiCredential{Secret: testSecret, DeviceUUID: testDevice, AccountID: testAccount, Active: true}).Error)

	bus := &memBus{}
	svc := NewService(
		NewRepo(gdb),
		repo.NewDeviceStore(gdb),
		repo.NewCredentialStore(gdb),
		presence.NewTracker(presence.DefaultThresholds()),
		bus,
		config.Default().Gateway,
	)
	return svc, gdb, bus
}

func enqueue(t *testing.T, svc *Service, cmdType, priority string, params map[string]any) *models.Command {
	t.Helper()
	cmd, err := svc.Enqueue(EnqueueInput{
		AccountID:   testAccount,
		DeviceID:    testDevice,
		CommandType: cmdType,
		Parameters:  params,
		Priority:    priority,
	})
	require.NoError(t, err)
	return cmd
}

func TestEnqueueValidationFailsWithoutWrite(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	_, err := svc.Enqueue(EnqueueInput{
		AccountID:   testAccount,
		DeviceID:    testDevice,
		CommandType: cmdschema.PumpDuration,
		Parameters:  map[string]any{"duration": 500.0},
	})
	require.Error(t, err)
	assert.Equal(t, faults.Validation, faults.KindOf(err))
	assert.NotEmpty(t, faults.DetailsOf(err))

	var n int64
	require.NoError(t, gdb.Model(&models.Command{}).Count(&n).Error)
	assert.Zero(t, n, "validation failure must not create a command")
}

func TestEnqueueOwnershipChecks(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Enqueue(EnqueueInput{AccountID: testAccount, DeviceID: "ghost", CommandType: cmdschema.PumpOff})
	assert.Equal(t, faults.NotFound, faults.KindOf(err))

	_, err = svc.Enqueue(EnqueueInput{AccountID: otherAcct, DeviceID: testDevice, CommandType: cmdschema.PumpOff})
	assert.Equal(t, faults.Forbidden, faults.KindOf(err))
}

func TestEnqueuePublishesEventAndEstimate(t *testing.T) {
	svc, _, bus := newTestService(t)

	cmd := enqueue(t, svc, cmdschema.PumpDuration, models.PriorityHigh, map[string]any{"duration": 10000.0})
	assert.Equal(t, models.StatusPending, cmd.Status)
	assert.Equal(t, int64(10000), cmd.EstimatedMS)
	assert.Contains(t, bus.topics(), "commands/created")
}

func TestRetrieveAuth(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	_, err := svc.Retrieve(testDevice, "wrong-key", 5, "")
	assert.Equal(t, faults.Unauthorized, faults.KindOf(err))

	// a valid credential for another device must not read this queue
	require.NoError(t, gdb.Create(&models.Device{UUID: "dev-2", AccountID: testAccount}).Error)
	require.NoError(t, gdb.Create(&models.ApiCredential{Secret: "key-dev-2", DeviceUUID: "dev-2", AccountID: testAccount, Active: true}).Error)
	_, err = svc.Retrieve(testDevice, "key-dev-2", 5, "")
	assert.Equal(t, faults.Forbidden, faults.KindOf(err))

	// inactive credential
	require.NoError(t, gdb.Model(&models.ApiCredential{}).Where("secret = ?", testSecret).Update("active", false).Error)
	_, err = svc.Retrieve(testDevice, testSecret, 5, "")
	assert.Equal(t, faults.Unauthorized, faults.KindOf(err))
}

func TestRetrieveOrdering(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	base := time.Now().UTC().Add(-time.Hour)
	mk := func(priority string, at time.Time) *models.Command {
		cmd := enqueue(t, svc, cmdschema.GetStatus, priority, nil)
		require.NoError(t, gdb.Model(&models.Command{}).Where("uuid = ?", cmd.UUID).
			Update("created_at", at).Error)
		return cmd
	}
	normal1 := mk(models.PriorityNormal, base.Add(1*time.Minute))
	urgent2 := mk(models.PriorityUrgent, base.Add(2*time.Minute))
	low3 := mk(models.PriorityLow, base.Add(3*time.Minute))
	normal4 := mk(models.PriorityNormal, base.Add(4*time.Minute))

	res, err := svc.Retrieve(testDevice, testSecret, 10, "")
	require.NoError(t, err)
	require.Len(t, res.Commands, 4)

	got := make([]string, 0, 4)
	for _, c := range res.Commands {
		got = append(got, c.UUID)
	}
	// priority DESC, then creation ASC within a band
	assert.Equal(t, []string{urgent2.UUID, normal1.UUID, normal4.UUID, low3.UUID}, got)

	for _, c := range res.Commands {
		assert.Equal(t, models.StatusInProgress, c.Status)
		assert.NotNil(t, c.RetrievedAt)
	}
	assert.Zero(t, res.TotalPending)
}

func TestRetrieveSkipsFutureScheduled(t *testing.T) {
	svc, _, _ := newTestService(t)

	future := time.Now().UTC().Add(time.Hour)
	_, err := svc.Enqueue(EnqueueInput{
		AccountID:    testAccount,
		DeviceID:     testDevice,
		CommandType:  cmdschema.SystemReboot,
		ScheduledFor: &future,
	})
	require.NoError(t, err)

	res, err := svc.Retrieve(testDevice, testSecret, 5, "")
	require.NoError(t, err)
	assert.Empty(t, res.Commands)
	assert.Equal(t, int64(1), res.TotalPending)
}

func TestRetrievePriorityFilter(t *testing.T) {
	svc, _, _ := newTestService(t)

	enqueue(t, svc, cmdschema.PumpOff, models.PriorityLow, nil)
	urgent := enqueue(t, svc, cmdschema.PumpOff, models.PriorityUrgent, nil)

	res, err := svc.Retrieve(testDevice, testSecret, 5, models.PriorityUrgent)
	require.NoError(t, err)
	require.Len(t, res.Commands, 1)
	assert.Equal(t, urgent.UUID, res.Commands[0].UUID)

	_, err = svc.Retrieve(testDevice, testSecret, 5, "asap")
	assert.Equal(t, faults.Validation, faults.KindOf(err))
}

// Concurrent retrievers racing on the same pending queue must never receive
// the same command twice.
func TestRetrieveAtMostOnce(t *testing.T) {
	svc, _, _ := newTestService(t)

	const pending = 6
	for i := 0; i < pending; i++ {
		enqueue(t, svc, cmdschema.GetStatus, models.PriorityNormal, nil)
	}

	const retrievers = 4
	var wg sync.WaitGroup
	results := make([][]models.Command, retrievers)
	errs := make([]error, retrievers)
	for i := 0; i < retrievers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Retrieve(testDevice, testSecret, pending, "")
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = res.Commands
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	total := 0
	for _, batch := range results {
		for _, c := range batch {
			assert.False(t, seen[c.UUID], "command %s returned twice", c.UUID)
			seen[c.UUID] = true
			total++
		}
	}
	assert.LessOrEqual(t, total, pending)
	assert.Len(t, seen, total)

	// nothing newly pending: an empty list, not an error
	res, err := svc.Retrieve(testDevice, testSecret, pending, "")
	require.NoError(t, err)
	assert.Empty(t, res.Commands)
}

func TestReportFinalizes(t *testing.T) {
	svc, _, _ := newTestService(t)

	cmd := enqueue(t, svc, cmdschema.PumpDuration, models.PriorityHigh, map[string]any{"duration": 10000.0})
	res, err := svc.Retrieve(testDevice, testSecret, 5, "")
	require.NoError(t, err)
	require.Len(t, res.Commands, 1)

	done, err := svc.Report(ReportInput{
		CommandID:        cmd.UUID,
		Secret:           testSecret,
		Status:           models.StatusExecuted,
		ExecutionDetails: map[string]any{"pumped_ms": 10000.0},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, done.Status)
	assert.NotNil(t, done.ExecutedAt)
	assert.NotNil(t, done.CompletedAt)

	// end-to-end: the queue is drained
	res, err = svc.Retrieve(testDevice, testSecret, 5, "")
	require.NoError(t, err)
	assert.Empty(t, res.Commands)
}

func TestReportOnTerminalIsInvalidTransition(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	cmd := enqueue(t, svc, cmdschema.PumpOff, "", nil)
	_, err := svc.Retrieve(testDevice, testSecret, 5, "")
	require.NoError(t, err)
	_, err = svc.Report(ReportInput{CommandID: cmd.UUID, Secret: testSecret, Status: models.StatusExecuted})
	require.NoError(t, err)

	_, err = svc.Report(ReportInput{CommandID: cmd.UUID, Secret: testSecret, Status: models.StatusFailed})
	require.Error(t, err)
	assert.Equal(t, faults.InvalidTransition, faults.KindOf(err))

	var stored models.Command
	require.NoError(t, gdb.Where("uuid = ?", cmd.UUID).First(&stored).Error)
	assert.Equal(t, models.StatusExecuted, stored.Status, "terminal state must not regress")
}

func TestReportRejectsNonTerminalStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	cmd := enqueue(t, svc, cmdschema.PumpOff, "", nil)

	_, err := svc.Report(ReportInput{CommandID: cmd.UUID, Secret: testSecret, Status: "running"})
	assert.Equal(t, faults.Validation, faults.KindOf(err))

	_, err = svc.Report(ReportInput{CommandID: "nope", Secret: testSecret, Status: models.StatusExecuted})
	assert.Equal(t, faults.NotFound, faults.KindOf(err))
}

func TestCancelOnlyPending(t *testing.T) {
	svc, _, _ := newTestService(t)

	cmd := enqueue(t, svc, cmdschema.PumpOff, "", nil)
	cancelled, err := svc.Cancel(cmd.UUID, testAccount)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, testAccount, cancelled.CancelledBy)

	// in_progress commands cannot be cancelled, only timed out or off-set
	cmd2 := enqueue(t, svc, cmdschema.PumpOn, "", nil)
	_, err = svc.Retrieve(testDevice, testSecret, 5, "")
	require.NoError(t, err)
	_, err = svc.Cancel(cmd2.UUID, testAccount)
	assert.Equal(t, faults.InvalidTransition, faults.KindOf(err))

	_, err = svc.Cancel(cmd2.UUID, otherAcct)
	assert.Equal(t, faults.Forbidden, faults.KindOf(err))
}

func TestSweepTimesOutStaleInProgress(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	cmd := enqueue(t, svc, cmdschema.PumpDuration, "", map[string]any{"duration": 1000.0})
	fresh := enqueue(t, svc, cmdschema.UpdateFirmware, "", map[string]any{"version": "v1.2.3"})
	_, err := svc.Retrieve(testDevice, testSecret, 5, "")
	require.NoError(t, err)

	// estimate 1000ms * factor 3 => stale after 3s; firmware estimate is 2m
	n, err := svc.SweepTimeouts(time.Now().UTC().Add(10 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var stored models.Command
	require.NoError(t, gdb.Where("uuid = ?", cmd.UUID).First(&stored).Error)
	assert.Equal(t, models.StatusTimeout, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	stored = models.Command{}
	require.NoError(t, gdb.Where("uuid = ?", fresh.UUID).First(&stored).Error)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	// a late device report after timeout is an invalid transition
	_, err = svc.Report(ReportInput{CommandID: cmd.UUID, Secret: testSecret, Status: models.StatusExecuted})
	assert.Equal(t, faults.InvalidTransition, faults.KindOf(err))
}

func TestAuditTrail(t *testing.T) {
	svc, gdb, _ := newTestService(t)

	cmd := enqueue(t, svc, cmdschema.PumpOff, "", nil)
	_, err := svc.Retrieve(testDevice, testSecret, 5, "")
	require.NoError(t, err)
	_, err = svc.Report(ReportInput{CommandID: cmd.UUID, Secret: testSecret, Status: models.StatusExecuted})
	require.NoError(t, err)

	var audits []models.CommandAudit
	require.NoError(t, gdb.Where("command_id = ?", cmd.UUID).Order("id").Find(&audits).Error)
	require.Len(t, audits, 3)
	assert.Equal(t, models.StatusPending, audits[0].ToStatus)
	assert.Equal(t, models.StatusInProgress, audits[1].ToStatus)
	assert.Equal(t, models.StatusExecuted, audits[2].ToStatus)
}
